package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"viralforge/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:     "deps",
		Aliases: []string{"doctor"},
		Short:   "Check directories, binaries, the ledger backend and model access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			fmt.Fprintln(out, renderSectionHeader("Environment", colorize))
			for _, r := range results {
				fmt.Fprintln(out, renderStatusLine(r.Name, passKind(r.Passed, false), r.Detail, colorize))
			}

			var optional int
			for _, status := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				if !status.Optional {
					continue
				}
				if optional == 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderSectionHeader("Optional", colorize))
				}
				optional++
				detail := status.Description
				if !status.Available {
					detail = status.Detail
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, passKind(status.Available, true), detail, colorize))
			}

			if !offline {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Models", colorize))
				llmResults := []preflight.Result{
					preflight.CheckLLM(cmd.Context(), "Analysis model", cfg.AnalysisLLM()),
					preflight.CheckLLM(cmd.Context(), "Strategy model", cfg.StrategyLLM()),
				}
				for _, r := range llmResults {
					fmt.Fprintln(out, renderStatusLine(r.Name, passKind(r.Passed, false), r.Detail, colorize))
				}
				results = append(results, llmResults...)
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the model API checks")
	return cmd
}
