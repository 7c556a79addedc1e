package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"viralforge/internal/pipeline"
	"viralforge/internal/store"
)

func newStrategyCommand(ctx *commandContext) *cobra.Command {
	strategyCmd := &cobra.Command{
		Use:     "strategy",
		Aliases: []string{"strategies"},
		Short:   "Review generated content strategies",
	}
	strategyCmd.AddCommand(newStrategyListCommand(ctx))
	strategyCmd.AddCommand(newStrategyShowCommand(ctx))
	strategyCmd.AddCommand(newStrategyApproveCommand(ctx))
	strategyCmd.AddCommand(newStrategyRejectCommand(ctx))
	return strategyCmd
}

func newStrategyListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List strategies, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			filter := make([]store.StrategyStatus, 0, len(statuses))
			for _, s := range statuses {
				filter = append(filter, store.StrategyStatus(strings.TrimSpace(s)))
			}
			items, err := st.ListStrategies(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No strategies")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, s := range items {
				rows = append(rows, []string{
					strconv.FormatInt(s.ID, 10),
					strconv.FormatInt(s.CandidateID, 10),
					string(s.Status),
					truncate(s.Title, 48),
					s.JobID,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Candidate", "Status", "Title", "Job"}, rows, 0, 1))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending_approval, approved, rejected, produced)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newStrategyShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <strategy-id>",
		Short: "Show a strategy's script and scene prompts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "strategy")
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			strategy, err := st.GetStrategy(cmd.Context(), id)
			if err != nil {
				return err
			}
			if strategy == nil {
				return fmt.Errorf("strategy %d not found", id)
			}
			if asJSON {
				return writeJSON(cmd, strategy)
			}
			plan, err := pipeline.DecodePlan(strategy.Payload)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Strategy #%d: %s\n", strategy.ID, strategy.Title)
			fmt.Fprintf(out, "Candidate:   #%d\n", strategy.CandidateID)
			fmt.Fprintf(out, "Status:      %s\n", strategy.Status)
			if plan.Concept != "" {
				fmt.Fprintf(out, "Concept:     %s\n", plan.Concept)
			}
			if plan.PostingTime != "" {
				fmt.Fprintf(out, "Post at:     %s\n", plan.PostingTime)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Script:")
			fmt.Fprintln(out, plan.Script())
			fmt.Fprintln(out)

			prompts := plan.Prompts()
			rows := make([][]string, 0, len(prompts))
			for _, p := range prompts {
				rows = append(rows, []string{strconv.Itoa(p.Scene), strconv.FormatFloat(p.Seconds, 'f', -1, 64), truncate(p.Text, 72)})
			}
			fmt.Fprintln(out, renderTable([]string{"Scene", "Seconds", "Prompt"}, rows, 0, 1))
			if len(plan.Hashtags) > 0 {
				fmt.Fprintf(out, "Hashtags: %s\n", strings.Join(plan.Hashtags, " "))
			}
			if err := plan.Check(); err != nil {
				fmt.Fprintf(out, "Not producible: %v\n", err)
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newStrategyApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <strategy-id>...",
		Short: "Approve pending strategies and queue their production",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "strategy")
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				taskID, err := st.ApproveStrategy(cmd.Context(), id)
				if err != nil {
					return describeTransitionError(id, "approve", err)
				}
				fmt.Fprintf(out, "Strategy #%d approved; production task #%d queued\n", id, taskID)
			}
			return nil
		},
	}
}

func newStrategyRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <strategy-id>...",
		Short: "Reject pending strategies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "strategy")
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := st.RejectStrategy(cmd.Context(), id); err != nil {
					return describeTransitionError(id, "reject", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Strategy #%d rejected\n", id)
			}
			return nil
		},
	}
}

func describeTransitionError(id int64, verb string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("strategy %d not found", id)
	case errors.Is(err, store.ErrInvalidTransition):
		return fmt.Errorf("cannot %s strategy %d: it is not pending approval", verb, id)
	default:
		return err
	}
}
