package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"viralforge/internal/logging"
	"viralforge/internal/stage"
	"viralforge/internal/store"
)

func (m *Manager) processTask(ctx context.Context, lane *laneState, laneLogger *slog.Logger, task *store.Task) error {
	stg, ok := lane.stageForKind(task.Kind)
	if !ok || stg.handler == nil {
		err := fmt.Errorf("no stage handler for %s tasks", task.Kind)
		laneLogger.Warn("no stage configured for task kind",
			logging.String("kind", string(task.Kind)),
			logging.Int64(logging.FieldTaskID, task.ID),
		)
		if failErr := m.store.FailTask(ctx, task.ID, store.TaskFailed, err.Error(), nil); failErr != nil {
			laneLogger.Error("failed to persist missing handler failure", logging.Error(failErr))
		}
		m.setLastError(err)
		return err
	}

	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, stg.name, task, requestID)
	stageLogger := m.stageLogger(stageCtx, laneLogger)
	if aware, ok := stg.handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}
	m.setLastTask(task)

	return m.executeStage(stageCtx, stageLogger, stg, task)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, task *store.Task) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("kind", string(task.Kind)),
		logging.Int64("subject_id", task.SubjectID),
		logging.Int("attempt", task.Attempts),
	)

	execErr := m.executeWithHeartbeat(ctx, stg.handler, task)
	if execErr != nil {
		if ctx.Err() != nil {
			// Left running; the next Start returns it to pending.
			stageLogger.Debug("stage interrupted by shutdown", logging.Error(execErr))
			return context.Canceled
		}
		m.handleStageFailure(ctx, stageLogger, stg, task, execErr)
		return execErr
	}

	if err := m.store.CompleteTask(ctx, task.ID); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		if errors.Is(err, context.Canceled) {
			return err
		}
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	task.Status = store.TaskCompleted
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastTask(task)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, task *store.Task) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, task.ID)

	execErr := handler.Execute(ctx, task)
	hbCancel()
	hbWG.Wait()
	return execErr
}
