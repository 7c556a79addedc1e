package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"viralforge/internal/logging"
	"viralforge/internal/services"
	"viralforge/internal/store"
)

func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, stg pipelineStage, task *store.Task, stageErr error) {
	logger = logger.With(logging.String("component", "workflow-manager"))

	status := services.FailureStatus(stageErr)
	message := classifyStageFailure(stg.name, stageErr)
	outcome := services.OutcomeOf(stageErr)

	var notBefore *time.Time
	if status == services.TaskStatusDeferred {
		resume := m.resumeAt()
		notBefore = &resume
		logger.Info("stage deferred by budget gate",
			logging.Args(append(logging.DecisionAttrs("budget_gate", "deferred", message),
				logging.Time("not_before", resume),
				logging.String(logging.FieldEventType, "stage_deferred"),
			)...)...)
	} else {
		logging.ErrorWithContext(logger, "stage failed", "stage_failure",
			logging.String("resolved_status", string(status)),
			logging.String("error_kind", string(outcome.Kind)),
			logging.String("error_message", message),
			logging.Error(stageErr),
			logging.String(logging.FieldErrorHint, failureHint(status)),
		)
		m.setLastError(stageErr)
	}

	// The stage context may be cancelled right after a failure; the status
	// write must still land.
	persistCtx := context.WithoutCancel(ctx)
	if err := m.store.FailTask(persistCtx, task.ID, store.TaskStatus(status), message, notBefore); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}
	task.Status = store.TaskStatus(status)
	task.ErrorMessage = message
	task.NotBefore = notBefore
	m.setLastTask(task)

	if status != services.TaskStatusDeferred && !reportsFailures(stg.handler) {
		m.notifyStageError(persistCtx, stg.name, task, stageErr)
	}
}

func classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", stageName)
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed", stageName)
	}
	return message
}

func failureHint(status services.TaskStatus) string {
	switch status {
	case services.TaskStatusReview:
		return "inspect the task with `viralforge tasks list --status review`, then retry it"
	default:
		return "check provider credentials and retry with `viralforge tasks retry`"
	}
}
