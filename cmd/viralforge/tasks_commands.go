package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"viralforge/internal/store"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task", "queue"},
		Short:   "Inspect and maintain the work queue",
	}
	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksRetryCommand(ctx))
	tasksCmd.AddCommand(newTasksHealthCommand(ctx))
	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued work, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			filter := make([]store.TaskStatus, 0, len(statuses))
			for _, s := range statuses {
				filter = append(filter, store.TaskStatus(strings.TrimSpace(s)))
			}
			tasks, err := st.ListTasks(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, tasks)
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			rows := make([][]string, 0, len(tasks))
			for _, task := range tasks {
				notBefore := ""
				if task.NotBefore != nil {
					notBefore = task.NotBefore.Local().Format("2006-01-02 15:04")
				}
				rows = append(rows, []string{
					strconv.FormatInt(task.ID, 10),
					string(task.Kind),
					strconv.FormatInt(task.SubjectID, 10),
					string(task.Status),
					strconv.Itoa(task.Attempts),
					notBefore,
					truncate(task.ErrorMessage, 60),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kind", "Subject", "Status", "Attempts", "Not before", "Error"},
				rows, 0, 2, 4))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, running, completed, failed, review, deferred)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newTasksRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [task-id...]",
		Short: "Requeue failed tasks (all of them when no ids are given)",
		Long:  "With ids, failed and review tasks are requeued. Without ids, every failed task is.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "task")
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			updated, err := st.RetryTasks(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case updated == 0 && len(ids) == 0:
				fmt.Fprintln(out, "No failed tasks to retry")
			case updated == 0:
				fmt.Fprintln(out, "No matching failed or review tasks")
			default:
				fmt.Fprintf(out, "Requeued %d task(s)\n", updated)
			}
			return nil
		},
	}
}

func newTasksHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the database file, schema and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			health, err := st.CheckHealth(cmd.Context())
			if asJSON {
				if jsonErr := writeJSON(cmd, health); jsonErr != nil {
					return jsonErr
				}
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("Database", colorize))
			fmt.Fprintln(out, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Readable", passKind(health.DatabaseReadable, false), yesNo(health.DatabaseReadable), colorize))
			fmt.Fprintln(out, renderStatusLine("Schema version", statusInfo, strconv.Itoa(health.SchemaVersion), colorize))
			if len(health.MissingTables) > 0 {
				fmt.Fprintln(out, renderStatusLine("Missing tables", statusError, strings.Join(health.MissingTables, ", "), colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Pending tasks", statusInfo, strconv.Itoa(health.PendingTasks), colorize))
			fmt.Fprintln(out, renderStatusLine("Running tasks", statusInfo, strconv.Itoa(health.RunningTasks), colorize))
			if health.Error != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, health.Error, colorize))
			}
			return err
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}
