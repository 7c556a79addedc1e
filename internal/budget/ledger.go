package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"viralforge/internal/logging"
)

// CanSpend reasons.
const (
	ReasonOK                   = "ok"
	ReasonExceeded             = "budget exceeded"
	ReasonInsufficient         = "insufficient budget"
	ReasonWarnExceeds          = "warning: exceeds budget"
	ReasonInsufficientMonthly  = "insufficient monthly budget"
	ReasonWarnExceedsMonthly   = "warning: exceeds monthly budget"
	ReasonWarnThresholdReached = "warning: threshold reached"
)

const (
	defaultWarningThreshold    = 0.8
	defaultDailyLimitDollars   = 20.00
	defaultMonthlyLimitDollars = 500.00
)

const (
	eventSpendCheck    = "budget_check"
	eventSpendRecorded = "budget_record"
	eventSpendExceeded = "budget_exceeded"
)

// ErrNegativeAmount rejects refunds; the ledger only accumulates.
var ErrNegativeAmount = errors.New("amount must not be negative")

// Policy holds the ledger limits.
type Policy struct {
	DailyLimit       USD
	MonthlyLimit     USD
	WarningThreshold float64
	AbortOnExceed    bool
}

// DefaultPolicy returns daily 20.00, monthly 500.00, warning 0.8, hard abort.
func DefaultPolicy() Policy {
	return Policy{
		DailyLimit:       FromDollars(defaultDailyLimitDollars),
		MonthlyLimit:     FromDollars(defaultMonthlyLimitDollars),
		WarningThreshold: defaultWarningThreshold,
		AbortOnExceed:    true,
	}
}

// Status is a read-only view of a day or a month.
type Status struct {
	Period         string           `json:"period"`
	Spent          USD              `json:"spent"`
	Limit          USD              `json:"limit"`
	Remaining      USD              `json:"remaining"`
	PercentUsed    float64          `json:"percent_used"`
	Exceeded       bool             `json:"exceeded"`
	ExceededAt     *time.Time       `json:"exceeded_at,omitempty"`
	WarningReached bool             `json:"warning_reached"`
	Breakdown      map[string]USD   `json:"breakdown"`
	Operations     int64            `json:"operations"`
	Counters       map[string]int64 `json:"counters,omitempty"`
}

// Estimate is a priced plan together with the affordability verdict.
type Estimate struct {
	Quote
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Ledger enforces spend limits over a Store.
type Ledger struct {
	store    Store
	policy   Policy
	prices   Prices
	now      func() time.Time
	loc      *time.Location
	logger   *slog.Logger
	observer func(service string, amount USD)
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithClock injects the time source used to pick the current day.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLocation sets the timezone that defines day boundaries.
func WithLocation(loc *time.Location) LedgerOption {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		l.logger = logging.NewComponentLogger(logger, "budget")
	}
}

// WithObserver registers a callback invoked after each successful Record.
func WithObserver(fn func(service string, amount USD)) LedgerOption {
	return func(l *Ledger) { l.observer = fn }
}

// NewLedger constructs a ledger. Zero limits fall back to DefaultPolicy values.
func NewLedger(store Store, policy Policy, prices Prices, opts ...LedgerOption) *Ledger {
	defaults := DefaultPolicy()
	if policy.DailyLimit <= 0 {
		policy.DailyLimit = defaults.DailyLimit
	}
	if policy.MonthlyLimit <= 0 {
		policy.MonthlyLimit = defaults.MonthlyLimit
	}
	if policy.WarningThreshold <= 0 || policy.WarningThreshold > 1 {
		policy.WarningThreshold = defaults.WarningThreshold
	}
	l := &Ledger{
		store:  store,
		policy: policy,
		prices: prices,
		now:    time.Now,
		loc:    time.Local,
		logger: logging.NewComponentLogger(nil, "budget"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the configured limits.
func (l *Ledger) Policy() Policy { return l.policy }

// Prices returns the price table.
func (l *Ledger) Prices() Prices { return l.prices }

// Today returns the current day key.
func (l *Ledger) Today() string {
	return l.now().In(l.loc).Format(DayLayout)
}

// NextDay returns the start of the next budget day. Deferred work becomes
// runnable again at that instant.
func (l *Ledger) NextDay() time.Time {
	now := l.now().In(l.loc)
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, l.loc)
}

// ThisMonth returns the current month key.
func (l *Ledger) ThisMonth() string {
	return l.now().In(l.loc).Format(MonthLayout)
}

// Status reports a day's spend. It never creates a period.
func (l *Ledger) Status(ctx context.Context, day string) (Status, error) {
	if day == "" {
		day = l.Today()
	}
	period, err := l.store.Period(ctx, day)
	if err != nil {
		return Status{}, fmt.Errorf("load budget period %s: %w", day, err)
	}
	counters, err := l.store.Counters(ctx, day)
	if err != nil {
		return Status{}, fmt.Errorf("load daily counters %s: %w", day, err)
	}

	st := Status{Period: day, Limit: l.policy.DailyLimit, Breakdown: map[string]USD{}, Counters: counters}
	if period != nil {
		if period.Limit > 0 {
			st.Limit = period.Limit
		}
		st.Spent = period.Total
		st.Operations = period.Operations
		st.Exceeded = period.Exceeded
		st.ExceededAt = period.ExceededAt
		maps.Copy(st.Breakdown, period.Breakdown)
	}
	l.finish(&st)
	return st, nil
}

// MonthStatus sums the days of month (YYYY-MM) against the monthly limit.
func (l *Ledger) MonthStatus(ctx context.Context, month string) (Status, error) {
	if month == "" {
		month = l.ThisMonth()
	}
	from, to, err := MonthBounds(month)
	if err != nil {
		return Status{}, fmt.Errorf("parse month %q: %w", month, err)
	}
	periods, err := l.store.PeriodsBetween(ctx, from, to)
	if err != nil {
		return Status{}, fmt.Errorf("load budget periods for %s: %w", month, err)
	}
	st := Status{Period: month, Limit: l.policy.MonthlyLimit, Breakdown: map[string]USD{}}
	for _, p := range periods {
		st.Spent += p.Total
		st.Operations += p.Operations
		for service, amount := range p.Breakdown {
			st.Breakdown[service] += amount
		}
	}
	st.Exceeded = st.Spent >= st.Limit
	l.finish(&st)
	return st, nil
}

func (l *Ledger) finish(st *Status) {
	st.Remaining = max(st.Limit-st.Spent, 0)
	if st.Limit > 0 {
		st.PercentUsed = float64(st.Spent) / float64(st.Limit) * 100
		st.WarningReached = float64(st.Spent)/float64(st.Limit) >= l.policy.WarningThreshold
	}
}

// CanSpend reports whether amount may be spent today. It never mutates the ledger.
func (l *Ledger) CanSpend(ctx context.Context, amount USD, service string) (bool, string, error) {
	if amount < 0 {
		return false, "", ErrNegativeAmount
	}
	allowed, reason, err := l.canSpend(ctx, amount)
	if err != nil {
		return false, "", err
	}
	level := slog.LevelDebug
	if !allowed || reason != ReasonOK {
		level = slog.LevelInfo
	}
	l.logger.Log(ctx, level, "budget check",
		logging.Args(append(logging.DecisionAttrs("budget_check", verdict(allowed), reason),
			logging.String("service", service),
			logging.String("amount", amount.String()),
			logging.String(logging.FieldEventType, eventSpendCheck),
		)...)...)
	return allowed, reason, nil
}

func (l *Ledger) canSpend(ctx context.Context, amount USD) (bool, string, error) {
	day, err := l.Status(ctx, l.Today())
	if err != nil {
		return false, "", err
	}
	if day.Exceeded {
		return false, ReasonExceeded, nil
	}
	if day.Limit-day.Spent < amount {
		if l.policy.AbortOnExceed {
			return false, ReasonInsufficient, nil
		}
		return true, ReasonWarnExceeds, nil
	}
	month, err := l.MonthStatus(ctx, l.ThisMonth())
	if err != nil {
		return false, "", err
	}
	if month.Limit-month.Spent < amount {
		if l.policy.AbortOnExceed {
			return false, ReasonInsufficientMonthly, nil
		}
		return true, ReasonWarnExceedsMonthly, nil
	}
	if day.Limit > 0 && float64(day.Spent+amount)/float64(day.Limit) >= l.policy.WarningThreshold {
		return true, ReasonWarnThresholdReached, nil
	}
	return true, ReasonOK, nil
}

// Record adds amount to today's period for service. Zero amounts are not
// written and return the current period. Store failures are returned as-is;
// a write is never rejected for exceeding the limit.
func (l *Ledger) Record(ctx context.Context, amount USD, service string) (Period, error) {
	if amount < 0 {
		return Period{}, ErrNegativeAmount
	}
	day := l.Today()
	if amount == 0 {
		current, err := l.store.Period(ctx, day)
		if err != nil {
			return Period{}, fmt.Errorf("load budget period %s: %w", day, err)
		}
		if current == nil {
			return Period{Day: day, Limit: l.policy.DailyLimit, MonthlyLimit: l.policy.MonthlyLimit, Breakdown: map[string]USD{}}, nil
		}
		return *current, nil
	}

	at := l.now().UTC()
	period, err := l.store.Apply(ctx, Charge{
		Day:          day,
		Service:      service,
		Amount:       amount,
		DailyLimit:   l.policy.DailyLimit,
		MonthlyLimit: l.policy.MonthlyLimit,
		At:           at,
	})
	if err != nil {
		logging.ErrorWithContext(l.logger, "budget record failed", eventSpendRecorded,
			logging.String("service", service),
			logging.String("amount", amount.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the ledger store; spend may be unaccounted"),
		)
		return Period{}, fmt.Errorf("record %s spend for %s: %w", amount, service, err)
	}

	l.logger.Info("spend recorded",
		logging.String("service", service),
		logging.String("amount", amount.String()),
		logging.String("total", period.Total.String()),
		logging.Int64("operations", period.Operations),
		logging.String(logging.FieldEventType, eventSpendRecorded),
	)
	if period.ExceededAt != nil && period.ExceededAt.Equal(at) {
		logging.WarnWithContext(l.logger, "daily budget exceeded", eventSpendExceeded,
			logging.String("total", period.Total.String()),
			logging.String("limit", period.Limit.String()),
			logging.String(logging.FieldImpact, "further paid work is refused until tomorrow"),
			logging.String(logging.FieldErrorHint, "raise budget.daily_limit or wait for the next day"),
		)
	}
	if l.observer != nil {
		l.observer(service, amount)
	}
	return period, nil
}

// Estimate prices counts and checks affordability of the total.
func (l *Ledger) Estimate(ctx context.Context, counts Counts) (Estimate, error) {
	quote, err := l.prices.Quote(counts)
	if err != nil {
		return Estimate{}, err
	}
	allowed, reason, err := l.CanSpend(ctx, quote.Total, "estimate")
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Quote: quote, Allowed: allowed, Reason: reason}, nil
}

// Price returns the cost of units of service.
func (l *Ledger) Price(service string, units int) (USD, error) {
	return l.prices.Price(service, units)
}

// Count increments a daily activity counter.
func (l *Ledger) Count(ctx context.Context, name string, delta int64) error {
	if delta == 0 {
		return nil
	}
	if err := l.store.IncrementCounter(ctx, l.Today(), name, delta); err != nil {
		return fmt.Errorf("increment counter %s: %w", name, err)
	}
	return nil
}

func verdict(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "refused"
}
