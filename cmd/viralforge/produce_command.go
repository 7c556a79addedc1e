package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"viralforge/internal/daemonrun"
	"viralforge/internal/pipeline"
	"viralforge/internal/production"
	"viralforge/internal/services"
	"viralforge/internal/store"
)

func newProduceCommand(ctx *commandContext) *cobra.Command {
	var strategyID int64
	var approve bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Produce an approved strategy now instead of waiting for the daemon",
		Long: "Runs narration, segment rendering and the final mix for one strategy in the\n" +
			"foreground. The budget gate still applies. A queued production task for the\n" +
			"strategy is settled with the outcome so the daemon does not repeat it; a\n" +
			"budget refusal defers it to the next budget day.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strategyID <= 0 {
				return fmt.Errorf("--strategy is required")
			}
			components, err := ctx.assemble(cmd.Context())
			if err != nil {
				return err
			}
			defer components.Close()

			job, err := produceStrategy(cmd.Context(), components, strategyID, approve)
			if job != nil {
				if asJSON {
					if jsonErr := writeJSON(cmd, job); jsonErr != nil {
						return jsonErr
					}
				} else {
					printJob(cmd.OutOrStdout(), job)
				}
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&strategyID, "strategy", 0, "Strategy to produce")
	cmd.Flags().BoolVar(&approve, "approve", false, "Approve the strategy first when it is pending")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

// produceStrategy runs the producer inline and settles the strategy's queued
// task. The latest job for the strategy is returned even when production
// failed.
func produceStrategy(ctx context.Context, c *daemonrun.Components, strategyID int64, approve bool) (*production.Job, error) {
	st := c.Store
	strategy, err := st.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, fmt.Errorf("strategy %d not found", strategyID)
	}

	var taskID int64
	switch strategy.Status {
	case store.StrategyPendingApproval:
		if !approve {
			return nil, fmt.Errorf("strategy %d is pending approval; pass --approve or run `viralforge strategy approve %d`", strategyID, strategyID)
		}
		taskID, err = st.ApproveStrategy(ctx, strategyID)
		if err != nil {
			return nil, describeTransitionError(strategyID, "approve", err)
		}
	case store.StrategyApproved:
		taskID, err = queuedProduceTask(ctx, st, strategyID)
		if err != nil {
			return nil, err
		}
	case store.StrategyProduced:
		return latestJob(ctx, st, strategyID)
	default:
		return nil, fmt.Errorf("strategy %d is %s and cannot be produced", strategyID, strategy.Status)
	}

	producer := pipeline.NewProducer(c.Deps(), c.Orchestrator, c.Logger)
	runErr := producer.Execute(ctx, &store.Task{ID: taskID, Kind: store.TaskProduce, SubjectID: strategyID})
	if taskID > 0 {
		var settleErr error
		if runErr == nil {
			settleErr = st.CompleteTask(ctx, taskID)
		} else {
			status := services.FailureStatus(runErr)
			var notBefore *time.Time
			if status == services.TaskStatusDeferred {
				resume := c.Ledger.NextDay()
				notBefore = &resume
			}
			settleErr = st.FailTask(context.WithoutCancel(ctx), taskID, store.TaskStatus(status), runErr.Error(), notBefore)
		}
		if settleErr != nil {
			runErr = errors.Join(runErr, settleErr)
		}
	}

	job, err := latestJob(ctx, st, strategyID)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	return job, runErr
}

func queuedProduceTask(ctx context.Context, st *store.Store, strategyID int64) (int64, error) {
	tasks, err := st.ListTasks(ctx, store.TaskPending, store.TaskDeferred, store.TaskFailed, store.TaskReview)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		if task.Kind == store.TaskProduce && task.SubjectID == strategyID {
			return task.ID, nil
		}
	}
	return 0, nil
}

func latestJob(ctx context.Context, st *store.Store, strategyID int64) (*production.Job, error) {
	jobs, err := st.ListJobs(ctx, store.JobFilter{StrategyID: strategyID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

func printJob(out io.Writer, job *production.Job) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderSectionHeader("Job "+job.ID, colorize))
	kind := statusInfo
	switch job.Status {
	case production.StatusCompleted:
		kind = statusOK
	case production.StatusFailed:
		kind = statusError
	case production.StatusBudgetBlocked:
		kind = statusWarn
	}
	detail := job.Error
	fmt.Fprintln(out, renderStatusLine("Status", kind, string(job.Status)+suffix(detail), colorize))
	fmt.Fprintln(out, renderStatusLine("Strategy", statusInfo, fmt.Sprintf("#%d", job.StrategyID), colorize))
	fmt.Fprintln(out, renderStatusLine("Estimate", statusInfo, job.Estimate.String(), colorize))
	fmt.Fprintln(out, renderStatusLine("Total cost", statusInfo, job.TotalCost.String(), colorize))
	if job.NarrationProvider != "" {
		fmt.Fprintln(out, renderStatusLine("Narration", statusInfo,
			fmt.Sprintf("%s, %.1fs, %s", job.NarrationProvider, job.NarrationSeconds, job.NarrationCost), colorize))
	}
	segKind := statusOK
	if job.SegmentsFailed > 0 {
		segKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Segments", segKind,
		fmt.Sprintf("%d rendered, %d failed, %s", len(job.RenderedSegments()), job.SegmentsFailed, job.SegmentsCost), colorize))
	if job.FinalRef != "" {
		fmt.Fprintln(out, renderStatusLine("Final video", statusOK,
			fmt.Sprintf("%s (%.1fs)", job.FinalRef, job.FinalSeconds), colorize))
	}
}

func suffix(detail string) string {
	if detail == "" {
		return ""
	}
	return ": " + detail
}
