package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"viralforge/internal/budget"
	"viralforge/internal/config"
	"viralforge/internal/daemonrun"
	"viralforge/internal/logging"
	"viralforge/internal/store"
)

type commandContext struct {
	configFlag *string
	logLevel   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	store       *store.Store
	ledger      *budget.Ledger
	closeLedger func() error
}

func newCommandContext(configFlag, logLevel *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logLevel:   logLevel,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logLevelOverride returns the --log-level value, trimmed.
func (c *commandContext) logLevelOverride() string {
	if c.logLevel == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevel)
}

// cliLogger writes warnings and errors to stderr so command output stays
// parseable. --log-level lowers the threshold.
func (c *commandContext) cliLogger() *slog.Logger {
	cfg, _ := c.ensureConfig()
	level := "warn"
	if override := c.logLevelOverride(); override != "" {
		level = override
	}
	format := "console"
	if cfg != nil && cfg.Logging.Format != "" {
		format = cfg.Logging.Format
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// openStore opens the record store once per invocation.
func (c *commandContext) openStore() (*store.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	c.store = st
	return st, nil
}

// openLedger builds the spend ledger over the configured backend.
func (c *commandContext) openLedger() (*budget.Ledger, error) {
	if c.ledger != nil {
		return c.ledger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := c.openStore()
	if err != nil {
		return nil, err
	}
	ledger, closeLedger, err := budget.NewFromConfig(cfg, st, budget.WithLogger(c.cliLogger()))
	if err != nil {
		return nil, err
	}
	c.ledger = ledger
	c.closeLedger = closeLedger
	return ledger, nil
}

// assemble wires the full pipeline for commands that call paid services
// inline. The CLI's own store and ledger must not be open concurrently, so
// callers use the returned components exclusively.
func (c *commandContext) assemble(ctx context.Context) (*daemonrun.Components, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return daemonrun.Assemble(ctx, cfg, c.cliLogger())
}

func (c *commandContext) close() error {
	var errs []error
	if c.closeLedger != nil {
		errs = append(errs, c.closeLedger())
		c.closeLedger = nil
	}
	c.ledger = nil
	if c.store != nil {
		errs = append(errs, c.store.Close())
		c.store = nil
	}
	return errors.Join(errs...)
}

func parseID(value, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(value), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, value)
	}
	return id, nil
}

func parseIDs(values []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := parseID(v, what)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
