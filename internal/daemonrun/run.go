package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"viralforge/internal/budget"
	"viralforge/internal/config"
	"viralforge/internal/daemon"
	"viralforge/internal/logging"
	"viralforge/internal/metrics"
	"viralforge/internal/notifications"
	"viralforge/internal/objectstore"
	"viralforge/internal/pipeline"
	"viralforge/internal/production"
	"viralforge/internal/services/llm"
	"viralforge/internal/store"
	"viralforge/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Components is the assembled pipeline shared by the daemon and the one-shot
// CLI commands.
type Components struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Ledger       *budget.Ledger
	Alerts       *pipeline.AlertingLedger
	Notifier     notifications.Service
	Metrics      *metrics.Metrics
	Objects      objectstore.Store
	Orchestrator *production.Orchestrator

	closers []func() error
}

// Assemble opens the stores and wires the ledger, notifier, metrics and
// production orchestrator from cfg. Callers must Close the result.
func Assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Components{Config: cfg, Logger: logger, Metrics: metrics.New()}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	c.Store = st
	c.closers = append(c.closers, st.Close)

	ledger, closeLedger, err := budget.NewFromConfig(cfg, st,
		budget.WithLogger(logger),
		budget.WithObserver(c.Metrics.ObserveSpend),
	)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Ledger = ledger
	c.closers = append(c.closers, closeLedger)

	c.Notifier = notifications.NewService(cfg)
	c.Alerts = pipeline.NewAlertingLedger(ledger, cfg.Budget.WarningThreshold, c.Notifier, logger)

	if err := c.Metrics.Register(metrics.NewStoreCollector(st, logger)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("register store metrics: %w", err)
	}

	c.Objects, err = objectstore.Open(ctx, cfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	c.Orchestrator, err = production.NewFromConfig(cfg, c.Alerts, c.Objects, st, c.Metrics, logger)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("build production orchestrator: %w", err)
	}
	return c, nil
}

// Deps returns the shared stage dependencies.
func (c *Components) Deps() pipeline.Deps {
	return pipeline.Deps{
		Store:          c.Store,
		Ledger:         c.Alerts,
		Notifier:       c.Notifier,
		ResultObserver: c.Metrics.ObserveResult,
	}
}

// Stages builds the analyst, strategist and producer handlers.
func (c *Components) Stages() workflow.StageSet {
	cfg := c.Config
	deps := c.Deps()
	analysis := cfg.AnalysisLLM()
	strategy := cfg.StrategyLLM()
	return workflow.StageSet{
		Analyst: pipeline.NewAnalyst(deps,
			newLLMClient(analysis).Generator(pipeline.AnalystSystemPrompt), analysis.Service, c.Logger),
		Strategist: pipeline.NewStrategist(deps,
			newLLMClient(strategy).Generator(pipeline.StrategistSystemPrompt), strategy.Service,
			cfg.Workflow.AutoApproveStrategies, c.Logger),
		Producer: pipeline.NewProducer(deps, c.Orchestrator, c.Logger),
	}
}

func newLLMClient(cfg config.LLMConfig) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	})
}

// NewManager builds a workflow manager whose deferred tasks resume at the
// next budget day.
func (c *Components) NewManager() *workflow.Manager {
	mgr := workflow.NewManagerWithOptions(c.Config, c.Store, c.Logger, c.Notifier,
		workflow.WithResumeClock(c.Ledger.NextDay))
	mgr.ConfigureStages(c.Stages())
	return mgr
}

// Close releases the stores in reverse order of acquisition.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Run starts the viralforge daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if opts.Development {
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	pidPath := daemon.PIDFilePath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	components, err := Assemble(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("assemble pipeline", logging.Error(err))
		return err
	}
	defer components.Close()

	d, err := daemon.New(cfg, components.Store, components.Ledger, components.NewManager(), components.Metrics, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `viralforge deps` and check the database and lock paths"),
			logging.String(logging.FieldImpact, "no tasks will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("viralforge daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := cfg.FFmpegBinary()
	ffprobe := cfg.FFprobeBinary()
	edgeTTS := cfg.EdgeTTSBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("render_key_present", strings.TrimSpace(cfg.Render.APIKey) != ""),
		logging.String("render_mode", cfg.Render.Mode),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.Bool("edge_tts_available", binaryAvailable(edgeTTS)),
		logging.String("tts_primary", cfg.TTS.Primary),
		logging.String("tts_fallback", cfg.TTS.Fallback),
		logging.String("budget_backend", cfg.Budget.Backend),
		logging.String("storage_backend", cfg.Storage.Backend),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
