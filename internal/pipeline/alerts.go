package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"viralforge/internal/budget"
	"viralforge/internal/logging"
	"viralforge/internal/notifications"
)

// AlertingLedger wraps a Ledger and publishes a budget warning the first
// time a day's spend crosses the warning threshold, and a budget exceeded
// alert the first time the day's limit is reached.
type AlertingLedger struct {
	Ledger
	notifier  notifications.Service
	threshold float64
	logger    *slog.Logger

	mu       sync.Mutex
	warned   map[string]bool
	exceeded map[string]bool
}

// NewAlertingLedger wraps inner. threshold is the warning fraction of the
// daily limit.
func NewAlertingLedger(inner Ledger, threshold float64, notifier notifications.Service, logger *slog.Logger) *AlertingLedger {
	return &AlertingLedger{
		Ledger:    inner,
		notifier:  notifier,
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "budget-alerts"),
		warned:    make(map[string]bool),
		exceeded:  make(map[string]bool),
	}
}

// Record delegates to the wrapped ledger and alerts on threshold crossings.
func (a *AlertingLedger) Record(ctx context.Context, amount budget.USD, service string) (budget.Period, error) {
	period, err := a.Ledger.Record(ctx, amount, service)
	if err != nil || amount == 0 {
		return period, err
	}
	if event, ok := a.crossed(period); ok {
		publish(ctx, a.logger, a.notifier, event, notifications.Payload{
			"spent":  period.Total,
			"limit":  period.Limit,
			"reason": service,
		})
	}
	return period, nil
}

func (a *AlertingLedger) crossed(p budget.Period) (notifications.Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case p.Exceeded:
		if a.exceeded[p.Day] {
			return "", false
		}
		a.exceeded[p.Day] = true
		a.warned[p.Day] = true
		return notifications.EventBudgetExceeded, true
	case p.Limit > 0 && float64(p.Total)/float64(p.Limit) >= a.threshold:
		if a.warned[p.Day] {
			return "", false
		}
		a.warned[p.Day] = true
		return notifications.EventBudgetWarning, true
	}
	return "", false
}
