package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"viralforge/internal/config"
	"viralforge/internal/daemon"
	"viralforge/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the background worker",
	}
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var development bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevelOverride(),
				Development: development,
			})
		},
	}
	cmd.Flags().BoolVar(&development, "dev", false, "Debug logging with source locations")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Signal a running daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			running, err := daemonRunning(cfg)
			if err != nil {
				return err
			}
			if !running {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			pid, err := readPID(daemon.PIDFilePath(cfg))
			if err != nil {
				return fmt.Errorf("daemon holds its lock but the pid file is unreadable: %w", err)
			}
			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal daemon (pid %d): %w", pid, err)
			}
			fmt.Fprintf(out, "Stopping daemon (pid %d)...\n", pid)

			deadline := time.Now().Add(timeout)
			for time.Now().Before(deadline) {
				running, err := daemonRunning(cfg)
				if err != nil {
					return err
				}
				if !running {
					fmt.Fprintln(out, "Daemon stopped")
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(200 * time.Millisecond):
				}
			}
			return fmt.Errorf("daemon (pid %d) still running after %s", pid, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "How long to wait for shutdown")
	return cmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Ask the running daemon for its status over the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := fetchDaemonStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
			fmt.Fprintln(out, renderStatusLine("Process", passKind(status.Running, false), fmt.Sprintf("pid %d", status.PID), colorize))
			workflowKind := statusOK
			workflowDetail := "running"
			if !status.Workflow.Running {
				workflowKind, workflowDetail = statusError, "stopped"
			}
			if status.Workflow.LastError != "" {
				workflowKind = statusWarn
				workflowDetail += ", last error: " + status.Workflow.LastError
			}
			fmt.Fprintln(out, renderStatusLine("Workflow", workflowKind, workflowDetail, colorize))
			for _, name := range []string{"analyst", "strategist", "producer"} {
				health, ok := status.Workflow.StageHealth[name]
				if !ok {
					continue
				}
				fmt.Fprintln(out, renderStatusLine("Stage "+name, passKind(health.Ready, false), health.Detail, colorize))
			}
			if status.Budget != nil {
				printBudgetStatus(out, "Budget "+status.Budget.Period, *status.Budget, colorize)
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

// daemonRunning probes the single-instance lock. A lock we can take means no
// daemon holds it.
func daemonRunning(cfg *config.Config) (bool, error) {
	lock := flock.New(daemon.LockFilePath(cfg))
	locked, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if locked {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", path)
	}
	return pid, nil
}

func fetchDaemonStatus(ctx context.Context, cfg *config.Config) (*daemon.Status, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api_bind is empty; the daemon HTTP API is disabled")
	}
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, "http://"+bind+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w; start it with `viralforge daemon run`", bind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon status: unexpected HTTP %d", resp.StatusCode)
	}
	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode daemon status: %w", err)
	}
	return &status, nil
}
