package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"viralforge/internal/store"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect structured model results",
	}
	resultsCmd.AddCommand(newResultsListCommand(ctx))
	return resultsCmd
}

func newResultsListCommand(ctx *commandContext) *cobra.Command {
	var strategyID int64
	var schema string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list [candidate-id]",
		Short: "List the structured model results recorded for a candidate or strategy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectType := store.SubjectCandidate
			var subjectID int64
			switch {
			case len(args) == 1 && strategyID > 0:
				return fmt.Errorf("pass a candidate id or --strategy, not both")
			case len(args) == 1:
				id, err := parseID(args[0], "candidate")
				if err != nil {
					return err
				}
				subjectID = id
			case strategyID > 0:
				subjectType = store.SubjectStrategy
				subjectID = strategyID
			default:
				return fmt.Errorf("a candidate id or --strategy is required")
			}

			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			records, err := st.ListResults(cmd.Context(), subjectType, subjectID, strings.TrimSpace(schema))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No results for %s %d\n", subjectType, subjectID)
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					strconv.FormatInt(rec.ID, 10),
					rec.Result.Schema + "@" + rec.Result.SchemaVersion,
					strconv.Itoa(rec.Result.Attempt),
					yesNo(rec.Result.Valid),
					string(rec.Result.State),
					truncate(strings.Join(rec.Result.Errors, "; "), 60),
					rec.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Schema", "Attempt", "Valid", "State", "Errors", "Created"},
				rows, 0, 2))
			return nil
		},
	}
	cmd.Flags().Int64Var(&strategyID, "strategy", 0, "List results recorded for a strategy instead")
	cmd.Flags().StringVar(&schema, "schema", "", "Only results of this schema (analysis, strategy)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}
