package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"viralforge/internal/logging"
	"viralforge/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if lines < 0 {
				return fmt.Errorf("--lines must not be negative")
			}
			filter.MinLevel = strings.TrimSpace(filter.MinLevel)
			path := logging.FilePath(cfg)

			out := cmd.OutOrStdout()
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			printed := 0
			for _, line := range tail {
				if filter.Match(line) {
					fmt.Fprintln(out, line)
					printed++
				}
			}
			if !follow {
				if printed == 0 && offset == 0 {
					fmt.Fprintf(out, "No log output yet at %s\n", path)
				}
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, 500*time.Millisecond, func(line string) error {
				if filter.Match(line) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only lines from this component")
	cmd.Flags().StringVar(&filter.JobID, "job", "", "Only lines for this production job (prefix match)")
	cmd.Flags().StringVar(&filter.EventType, "event", "", "Only lines with this event type")
	return cmd
}
