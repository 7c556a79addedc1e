package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"viralforge/internal/budget"
)

func newBudgetCommand(ctx *commandContext) *cobra.Command {
	budgetCmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect spend against the daily and monthly limits",
	}
	budgetCmd.AddCommand(newBudgetStatusCommand(ctx))
	budgetCmd.AddCommand(newBudgetMonthCommand(ctx))
	budgetCmd.AddCommand(newBudgetEstimateCommand(ctx))
	budgetCmd.AddCommand(newBudgetPricesCommand(ctx))
	return budgetCmd
}

func newBudgetStatusCommand(ctx *commandContext) *cobra.Command {
	var day string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show spend for a day (default today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			if strings.TrimSpace(day) == "" {
				day = ledger.Today()
			}
			status, err := ledger.Status(cmd.Context(), day)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			printBudgetStatus(cmd.OutOrStdout(), "Day "+status.Period, status, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "Day to show (YYYY-MM-DD)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newBudgetMonthCommand(ctx *commandContext) *cobra.Command {
	var month string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "month",
		Short: "Show spend for a month (default this month)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			if strings.TrimSpace(month) == "" {
				month = ledger.ThisMonth()
			}
			status, err := ledger.MonthStatus(cmd.Context(), month)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			printBudgetStatus(cmd.OutOrStdout(), "Month "+status.Period, status, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month to show (YYYY-MM)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func printBudgetStatus(out io.Writer, title string, status budget.Status, colorize bool) {
	fmt.Fprintln(out, renderSectionHeader(title, colorize))
	kind := statusOK
	detail := fmt.Sprintf("%s of %s (%.1f%%)", status.Spent, status.Limit, status.PercentUsed)
	switch {
	case status.Exceeded:
		kind = statusError
		detail += ", limit exceeded"
	case status.WarningReached:
		kind = statusWarn
		detail += ", warning threshold reached"
	}
	fmt.Fprintln(out, renderStatusLine("Spent", kind, detail, colorize))
	fmt.Fprintln(out, renderStatusLine("Remaining", statusInfo, status.Remaining.String(), colorize))
	fmt.Fprintln(out, renderStatusLine("Operations", statusInfo, fmt.Sprintf("%d", status.Operations), colorize))

	if len(status.Breakdown) > 0 {
		services := slices.Sorted(maps.Keys(status.Breakdown))
		rows := make([][]string, 0, len(services))
		for _, service := range services {
			rows = append(rows, []string{service, status.Breakdown[service].String()})
		}
		fmt.Fprintln(out, renderTable([]string{"Service", "Spent"}, rows, 1))
	}
	if len(status.Counters) > 0 {
		names := slices.Sorted(maps.Keys(status.Counters))
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			rows = append(rows, []string{name, fmt.Sprintf("%d", status.Counters[name])})
		}
		fmt.Fprintln(out, renderTable([]string{"Counter", "Count"}, rows, 1))
	}
}

func newBudgetEstimateCommand(ctx *commandContext) *cobra.Command {
	var units map[string]int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Price a plan and check it against the remaining budget",
		Example: "  viralforge budget estimate --units veo=4,elevenlabs=900\n" +
			"  viralforge budget estimate --units apify=1000 --units gemini=50",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(units) == 0 {
				return fmt.Errorf("--units is required (service=count)")
			}
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			counts := make(budget.Counts, len(units))
			for service, n := range units {
				if n < 0 {
					return fmt.Errorf("units for %s must not be negative", service)
				}
				counts[strings.ToLower(strings.TrimSpace(service))] = n
			}
			estimate, err := ledger.Estimate(cmd.Context(), counts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, estimate)
			}
			out := cmd.OutOrStdout()
			services := slices.Sorted(maps.Keys(estimate.Items))
			rows := make([][]string, 0, len(services)+1)
			for _, service := range services {
				rows = append(rows, []string{service, fmt.Sprintf("%d", counts[service]), estimate.Items[service].String()})
			}
			rows = append(rows, []string{"total", "", estimate.Total.String()})
			fmt.Fprintln(out, renderTable([]string{"Service", "Units", "Cost"}, rows, 1, 2))

			colorize := shouldColorize(out)
			if estimate.Allowed {
				fmt.Fprintln(out, renderStatusLine("Verdict", statusOK, "affordable", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Verdict", statusError, estimate.Reason, colorize))
			}
			return nil
		},
	}
	cmd.Flags().StringToIntVar(&units, "units", nil, "Units per service as service=count")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newBudgetPricesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Show the unit price table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			prices := ledger.Prices()
			services := []string{
				budget.ServiceApify, budget.ServiceGemini, budget.ServiceClaude, budget.ServiceOpenAI,
				budget.ServiceVeo, budget.ServiceElevenLabs, budget.ServiceEdgeTTS,
			}
			rows := make([][]string, 0, len(services))
			for _, service := range services {
				unit, err := prices.Unit(service)
				if err != nil {
					continue
				}
				per := "call"
				switch service {
				case budget.ServiceApify:
					per = "result"
				case budget.ServiceElevenLabs:
					per = "character"
				case budget.ServiceVeo:
					per = "clip"
				}
				rows = append(rows, []string{service, unit.String(), per})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Service", "Unit price", "Per"}, rows, 1))
			return nil
		},
	}
	return cmd
}
