package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"viralforge/internal/budget"
	"viralforge/internal/logging"
	"viralforge/internal/notifications"
	"viralforge/internal/store"
	"viralforge/internal/structured"
)

// Ledger is the slice of budget.Ledger the stages charge through.
type Ledger interface {
	CanSpend(ctx context.Context, amount budget.USD, service string) (bool, string, error)
	Record(ctx context.Context, amount budget.USD, service string) (budget.Period, error)
	Price(service string, units int) (budget.USD, error)
	Count(ctx context.Context, name string, delta int64) error
}

// Deps are shared by every stage handler.
type Deps struct {
	Store    *store.Store
	Ledger   Ledger
	Notifier notifications.Service
	// ResultObserver sees every persisted structured result.
	ResultObserver func(structured.Result)
}

func publish(ctx context.Context, logger *slog.Logger, svc notifications.Service, event notifications.Event, payload notifications.Payload) {
	if svc == nil {
		return
	}
	if err := svc.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

// meteredGenerator counts the model calls that produced text so the caller
// can charge for exactly those.
type meteredGenerator struct {
	inner structured.Generator
	calls int
}

func (m *meteredGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	raw, err := m.inner.Generate(ctx, prompt)
	if err == nil || raw != "" {
		m.calls++
	}
	return raw, err
}
