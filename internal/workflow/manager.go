package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"viralforge/internal/config"
	"viralforge/internal/notifications"
	"viralforge/internal/store"
)

// Manager coordinates task processing using registered stage handlers.
type Manager struct {
	cfg           *config.Config
	store         *store.Store
	logger        *slog.Logger
	pollInterval  time.Duration
	retryInterval time.Duration
	notifier      notifications.Service
	resumeAt      func() time.Time

	heartbeat *HeartbeatMonitor

	lanes     map[laneKind]*laneState
	laneOrder []laneKind

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastTask *store.Task
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithResumeClock sets the function that picks when a budget-deferred task
// becomes runnable again. The daemon passes the ledger's NextDay.
func WithResumeClock(fn func() time.Time) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.resumeAt = fn
		}
	}
}

// WithPollInterval overrides the idle poll interval (used in tests).
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
			m.retryInterval = d
		}
	}
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger) *Manager {
	return NewManagerWithOptions(cfg, st, logger, notifications.NewService(cfg))
}

// NewManagerWithOptions constructs a workflow manager with full configuration.
func NewManagerWithOptions(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:           cfg,
		store:         st,
		logger:        logger,
		notifier:      notifier,
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		resumeAt:      nextMidnight,
		heartbeat: NewHeartbeatMonitor(
			st,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		lanes: make(map[laneKind]*laneState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 5 * time.Second
	}
	if m.retryInterval <= 0 {
		m.retryInterval = 10 * time.Second
	}
	return m
}

func nextMidnight() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
