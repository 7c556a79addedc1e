package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"viralforge/internal/logging"
	"viralforge/internal/services"
	"viralforge/internal/store"
)

func (m *Manager) laneLogger(lane *laneState) *slog.Logger {
	name := lane.name
	if name == "" {
		name = string(lane.kind)
	}
	return m.logger.With(
		logging.String("component", fmt.Sprintf("workflow-%s-runner", name)),
		logging.String("lane", name),
	)
}

func (m *Manager) stageLogger(ctx context.Context, laneLogger *slog.Logger) *slog.Logger {
	base := laneLogger
	if base == nil {
		base = m.logger
	}
	return logging.WithContext(ctx, base)
}

func withStageContext(ctx context.Context, stageName string, task *store.Task, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if task != nil {
		ctx = services.WithTaskID(ctx, task.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
