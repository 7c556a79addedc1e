package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"viralforge/internal/production"
	"viralforge/internal/store"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Inspect production jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var strategyID int64
	var limit uint64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List production jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			filter := store.JobFilter{StrategyID: strategyID, Limit: limit}
			for _, s := range statuses {
				filter.Statuses = append(filter.Statuses, production.Status(strings.TrimSpace(s)))
			}
			jobs, err := st.ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No production jobs")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					strconv.FormatInt(job.StrategyID, 10),
					string(job.Status),
					job.TotalCost.String(),
					strconv.Itoa(job.SegmentsFailed),
					job.FinalRef,
					job.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Strategy", "Status", "Cost", "Failed segments", "Final", "Created"},
				rows, 1, 3, 4))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by job status")
	cmd.Flags().Int64Var(&strategyID, "strategy", 0, "Filter by strategy id")
	cmd.Flags().Uint64Var(&limit, "limit", 20, "Maximum rows")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a production job with its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			job, err := st.GetJob(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}
			if asJSON {
				return writeJSON(cmd, job)
			}
			out := cmd.OutOrStdout()
			printJob(out, job)
			if len(job.Segments) > 0 {
				rows := make([][]string, 0, len(job.Segments))
				for _, seg := range job.Segments {
					detail := seg.Ref
					if seg.Error != "" {
						detail = seg.Error
					}
					rows = append(rows, []string{
						strconv.Itoa(seg.Index),
						strconv.Itoa(seg.Scene),
						strconv.FormatFloat(seg.Seconds, 'f', -1, 64),
						seg.Status,
						seg.Cost.String(),
						truncate(detail, 60),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"#", "Scene", "Seconds", "Status", "Cost", "Detail"}, rows, 0, 1, 2, 4))
			}
			if len(job.History) > 0 {
				fmt.Fprintln(out, "History:")
				for _, change := range job.History {
					fmt.Fprintf(out, "  %s  %s\n", change.At.Local().Format("2006-01-02 15:04:05"), change.Status)
				}
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}
