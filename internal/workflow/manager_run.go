package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"viralforge/internal/logging"
	"viralforge/internal/store"
)

// Start begins background processing. Preflight checks must pass, and tasks
// left running by a previous process are returned to pending first.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.runPreflightChecks(ctx, m.logger); err != nil {
		return err
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	lanes := make([]*laneState, 0, len(m.laneOrder))
	for _, kind := range m.laneOrder {
		lane := m.lanes[kind]
		if lane == nil || len(lane.kinds) == 0 {
			continue
		}
		lanes = append(lanes, lane)
	}
	if len(lanes) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	reset, err := m.store.ResetRunningTasks(ctx)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if reset > 0 {
		m.logger.Info("returned interrupted tasks to pending",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "tasks_reset"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, lane := range lanes {
		lane.logger = m.laneLogger(lane)
	}
	m.wg.Add(len(lanes))
	m.mu.Unlock()

	for _, lane := range lanes {
		go m.runLane(runCtx, lane)
	}

	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLane(ctx context.Context, lane *laneState) {
	defer m.wg.Done()
	if lane == nil {
		return
	}
	logger := lane.logger
	if logger == nil {
		logger = m.logger
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if lane.runReclaimer {
			if err := m.heartbeat.ReclaimStaleTasks(ctx, logger); err != nil && ctx.Err() == nil {
				logger.Warn("reclaim stale tasks failed; stuck tasks may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check database access"),
				)
			}
		}

		task, err := m.nextTaskForLane(ctx, lane)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextTaskError(ctx, logger, err)
			continue
		}
		if task == nil {
			m.waitForTaskOrShutdown(ctx)
			continue
		}

		if err := m.processTask(ctx, lane, logger, task); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) nextTaskForLane(ctx context.Context, lane *laneState) (*store.Task, error) {
	if lane == nil || len(lane.kinds) == 0 {
		return nil, nil
	}
	return m.store.ClaimNextTask(ctx, lane.kinds...)
}

func (m *Manager) handleNextTaskError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next task",
		logging.Error(err),
		logging.String(logging.FieldEventType, "task_claim_failed"),
		logging.String(logging.FieldErrorHint, "check database access"),
	)
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.retryInterval):
	}
}

func (m *Manager) waitForTaskOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.pollInterval):
	}
}
