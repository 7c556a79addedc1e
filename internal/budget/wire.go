package budget

import (
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"viralforge/internal/config"
)

// PolicyFromConfig converts the configured dollar limits.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		DailyLimit:       FromDollars(cfg.Budget.DailyLimit),
		MonthlyLimit:     FromDollars(cfg.Budget.MonthlyLimit),
		WarningThreshold: cfg.Budget.WarningThreshold,
		AbortOnExceed:    cfg.Budget.AbortOnExceed,
	}
}

// NewFromConfig builds a ledger on the configured backend. local backs the
// sqlite backend; the redis backend dials its own client, which the returned
// close func releases.
func NewFromConfig(cfg *config.Config, local Store, opts ...LedgerOption) (*Ledger, func() error, error) {
	prices := NewPrices(cfg.Budget.Prices, cfg.Render.Mode)
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Budget.Backend)); backend {
	case "", config.BudgetBackendSQLite:
		if local == nil {
			return nil, nil, fmt.Errorf("budget backend %q requires the record store", config.BudgetBackendSQLite)
		}
		return NewLedger(local, PolicyFromConfig(cfg), prices, opts...), func() error { return nil }, nil
	case config.BudgetBackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Budget.RedisAddr,
			Password: cfg.Budget.RedisPassword,
			DB:       cfg.Budget.RedisDB,
		})
		ledger := NewLedger(NewRedisStore(client, cfg.Budget.RedisPrefix), PolicyFromConfig(cfg), prices, opts...)
		return ledger, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported budget backend %q", cfg.Budget.Backend)
	}
}
