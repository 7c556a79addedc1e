package workflow

import (
	"context"
	"errors"
	"fmt"

	"viralforge/internal/logging"
	"viralforge/internal/notifications"
	"viralforge/internal/stage"
	"viralforge/internal/store"
)

// failureReporter is implemented by handlers that publish their own failure
// notifications.
type failureReporter interface {
	ReportsFailures() bool
}

func reportsFailures(handler stage.Handler) bool {
	reporter, ok := handler.(failureReporter)
	return ok && reporter.ReportsFailures()
}

func (m *Manager) notifyStageError(ctx context.Context, stageName string, task *store.Task, stageErr error) {
	if m.notifier == nil || stageErr == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger.With(logging.String("component", "workflow-manager")))
	contextLabel := fmt.Sprintf("%s (task #%d)", stageName, task.ID)
	if err := m.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"error":   stageErr,
		"context": contextLabel,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send error notification")
		} else {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}
}
