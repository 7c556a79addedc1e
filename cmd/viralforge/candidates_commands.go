package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"viralforge/internal/budget"
	"viralforge/internal/candidates"
	"viralforge/internal/logging"
	"viralforge/internal/score"
	"viralforge/internal/store"
)

func newCandidatesCommand(ctx *commandContext) *cobra.Command {
	candidatesCmd := &cobra.Command{
		Use:     "candidates",
		Aliases: []string{"candidate"},
		Short:   "Import, list and score observed videos",
	}
	candidatesCmd.AddCommand(newCandidatesImportCommand(ctx))
	candidatesCmd.AddCommand(newCandidatesListCommand(ctx))
	candidatesCmd.AddCommand(newCandidatesScoreCommand(ctx))
	return candidatesCmd
}

func newCandidatesImportCommand(ctx *commandContext) *cobra.Command {
	var dataset, feed, platform, charge string
	var profileID int64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import candidates from a scraper dataset or a feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			var src candidates.Source
			switch {
			case dataset != "" && feed != "":
				return fmt.Errorf("use either --dataset or --feed, not both")
			case dataset != "":
				src = candidates.NewJSONSource(dataset, platform)
			case feed != "":
				src = candidates.NewFeedSource(feed, platform)
			default:
				return fmt.Errorf("one of --dataset or --feed is required")
			}

			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			if profileID > 0 {
				profile, err := st.GetProfile(cmd.Context(), profileID)
				if err != nil {
					return err
				}
				if profile == nil {
					return fmt.Errorf("profile %d not found", profileID)
				}
			}

			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			service := strings.ToLower(strings.TrimSpace(charge))

			logger := ctx.cliLogger()
			importer := candidates.NewImporter(st, ledger, logger)
			report, err := importer.Import(cmd.Context(), src, candidates.Options{
				ProfileID:     profileID,
				ChargeService: service,
			})
			if err != nil {
				return err
			}
			if report.Stored > 0 {
				if err := ledger.Count(cmd.Context(), budget.CounterCandidatesCollected, int64(report.Stored)); err != nil {
					logging.WarnWithContext(logger, "daily counter not updated", "counter_update_failed",
						logging.String("counter", budget.CounterCandidatesCollected),
						logging.Error(err),
					)
				}
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fetched %d, stored %d, passed %d, queued %d, gated out %d, failed %d\n",
				report.Fetched, report.Stored, report.Passed, report.Queued, report.GatedOut, report.Failed)
			if service != "" {
				fmt.Fprintf(out, "Charged %s to %s\n", report.Cost, service)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "Path to a scraper dataset export (JSON array or JSON lines)")
	cmd.Flags().StringVar(&feed, "feed", "", "RSS/Atom feed URL or file")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform to assume when items do not name one")
	cmd.Flags().Int64Var(&profileID, "profile", 0, "Profile whose baselines score the items")
	cmd.Flags().StringVar(&charge, "charge", "", "Ledger service to bill per imported item (e.g. apify)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newCandidatesListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var profileID int64
	var platform string
	var minScore float64
	var passing bool
	var limit uint64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates, highest score first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			filter := store.CandidateFilter{
				ProfileID: profileID,
				Platform:  platform,
				MinScore:  minScore,
				OnlyPass:  passing,
				Limit:     limit,
			}
			for _, s := range statuses {
				filter.Statuses = append(filter.Statuses, store.CandidateStatus(strings.TrimSpace(s)))
			}
			items, err := st.ListCandidates(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No candidates match")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, c := range items {
				rows = append(rows, []string{
					strconv.FormatInt(c.ID, 10),
					c.Platform,
					c.ExternalID,
					strconv.FormatInt(c.Views, 10),
					fmt.Sprintf("%.3f", c.Score),
					yesNo(c.Passes),
					string(c.Status),
					truncate(c.Caption, 40),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Platform", "External ID", "Views", "Score", "Pass", "Status", "Caption"},
				rows, 0, 3, 4))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().Int64Var(&profileID, "profile", 0, "Filter by profile id")
	cmd.Flags().StringVar(&platform, "platform", "", "Filter by platform")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Only candidates scoring at least this")
	cmd.Flags().BoolVar(&passing, "passing", false, "Only candidates that pass the gate")
	cmd.Flags().Uint64Var(&limit, "limit", 50, "Maximum rows")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newCandidatesScoreCommand(ctx *commandContext) *cobra.Command {
	var views, likes, comments int64
	var posted string
	var profileID int64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score engagement counters without storing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var postedAt *time.Time
			if posted != "" {
				ts, err := time.Parse(time.RFC3339, posted)
				if err != nil {
					ts, err = time.Parse(time.DateOnly, posted)
				}
				if err != nil {
					return fmt.Errorf("invalid --posted %q: use RFC3339 or YYYY-MM-DD", posted)
				}
				postedAt = &ts
			}
			var baselines *score.Baselines
			if profileID > 0 {
				st, err := ctx.openStore()
				if err != nil {
					return err
				}
				profile, err := st.GetProfile(cmd.Context(), profileID)
				if err != nil {
					return err
				}
				if profile == nil {
					return fmt.Errorf("profile %d not found", profileID)
				}
				baselines = &profile.Baselines
			}
			engine := store.ScoreEngine(cfg)
			result := engine.Evaluate(score.Counters{Views: views, Likes: likes, Comments: comments}, postedAt, baselines)
			if asJSON {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Normalized views:      %.3f\n", result.NormalizedViews)
			fmt.Fprintf(out, "Normalized engagement: %.3f\n", result.NormalizedEngagement)
			fmt.Fprintf(out, "Recency:               %.3f\n", result.Recency)
			fmt.Fprintf(out, "Score:                 %.3f (threshold %.3f)\n", result.Score, engine.Threshold())
			fmt.Fprintf(out, "Passes:                %s\n", yesNo(result.Passes))
			return nil
		},
	}
	cmd.Flags().Int64Var(&views, "views", 0, "View count")
	cmd.Flags().Int64Var(&likes, "likes", 0, "Like count")
	cmd.Flags().Int64Var(&comments, "comments", 0, "Comment count")
	cmd.Flags().StringVar(&posted, "posted", "", "Publish time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().Int64Var(&profileID, "profile", 0, "Use this profile's baselines")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
