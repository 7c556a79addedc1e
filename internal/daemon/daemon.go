package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"viralforge/internal/budget"
	"viralforge/internal/config"
	"viralforge/internal/logging"
	"viralforge/internal/metrics"
	"viralforge/internal/store"
	"viralforge/internal/workflow"
)

// ErrAlreadyRunning reports that another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("another viralforge daemon instance is already running")

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	ledger   *budget.Ledger
	workflow *workflow.Manager
	metrics  *metrics.Metrics
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	Budget       *budget.Status         `json:"budget,omitempty"`
	DatabasePath string                 `json:"database_path"`
	LockFilePath string                 `json:"lock_file_path"`
}

// New constructs a daemon with initialized dependencies. m may be nil, in
// which case /metrics is not served.
func New(cfg *config.Config, st *store.Store, ledger *budget.Ledger, wf *workflow.Manager, m *metrics.Metrics, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || ledger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, ledger, and workflow manager")
	}

	lockPath := LockFilePath(cfg)
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		ledger:   ledger,
		workflow: wf,
		metrics:  m,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// LockFilePath is the single-instance lock held while a daemon runs.
func LockFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "viralforged.lock")
}

// PIDFilePath is where the daemon process records its pid.
func PIDFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "viralforge.pid")
}

// Start acquires the daemon lock, then launches the API server and the
// workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		d.abortStart()
		return err
	}
	if err := d.workflow.Start(d.ctx); err != nil {
		d.api.stop()
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("viralforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("viralforge daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Addr returns the API listen address, or "" when the API is disabled or
// not started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
	today, err := d.ledger.Status(ctx, d.ledger.Today())
	if err != nil {
		d.logger.Warn("budget status unavailable", logging.Error(err))
	} else {
		status.Budget = &today
	}
	return status
}
