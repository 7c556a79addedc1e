package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"viralforge/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var day, format, output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the daily report (spend, activity, productions, approvals)",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			if strings.TrimSpace(day) == "" {
				day = ledger.Today()
			}
			daily, err := report.Build(cmd.Context(), st, ledger, day, time.Local)
			if err != nil {
				return err
			}

			var rendered string
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "", "md", "markdown":
				rendered = daily.Markdown()
			case "html":
				if rendered, err = daily.HTML(); err != nil {
					return err
				}
			case "json":
				if output == "" {
					return writeJSON(cmd, daily)
				}
				return fmt.Errorf("--output is not supported with --format json")
			default:
				return fmt.Errorf("unsupported report format %q (md, html, json)", format)
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report for %s written to %s\n", day, output)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "Day to report (YYYY-MM-DD, default today)")
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Output format: md, html or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")
	return cmd
}
