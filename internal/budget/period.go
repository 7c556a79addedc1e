package budget

import (
	"context"
	"time"
)

// Day and month key layouts.
const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// Daily counter names.
const (
	CounterVideosAnalyzed      = "videos_analyzed"
	CounterStrategiesGenerated = "strategies_generated"
	CounterVideosProduced      = "videos_produced"
	CounterRenderGenerations   = "render_generations"
	CounterTTSCharacters       = "tts_characters"
	CounterCandidatesCollected = "candidates_collected"
)

// Period is one day's spend record.
type Period struct {
	Day          string         `json:"day"`
	Limit        USD            `json:"limit"`
	MonthlyLimit USD            `json:"monthly_limit"`
	Total        USD            `json:"total"`
	Breakdown    map[string]USD `json:"breakdown"`
	Operations   int64          `json:"operations"`
	Exceeded     bool           `json:"exceeded"`
	ExceededAt   *time.Time     `json:"exceeded_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Charge is one atomic ledger increment. Limits are applied only when the
// period does not exist yet.
type Charge struct {
	Day          string
	Service      string
	Amount       USD
	DailyLimit   USD
	MonthlyLimit USD
	At           time.Time
}

// PeriodStore persists periods. Apply must perform the increment and the
// exceeded check as one atomic step: create the period if missing, add Amount
// to the service and the total, bump the operation counter, and set Exceeded
// (with ExceededAt, once) when the total reaches the period limit.
type PeriodStore interface {
	Period(ctx context.Context, day string) (*Period, error)
	PeriodsBetween(ctx context.Context, fromDay, toDay string) ([]Period, error)
	Apply(ctx context.Context, charge Charge) (Period, error)
}

// CounterStore tracks named daily activity counters.
type CounterStore interface {
	IncrementCounter(ctx context.Context, day, name string, delta int64) error
	Counters(ctx context.Context, day string) (map[string]int64, error)
}

// Store is the persistence port the Ledger needs.
type Store interface {
	PeriodStore
	CounterStore
}

// applyCharge mutates p as Apply requires. Implementations that hold a lock or
// a transaction around the read may share it.
func applyCharge(p *Period, charge Charge) {
	if p.Breakdown == nil {
		p.Breakdown = make(map[string]USD)
	}
	p.Breakdown[charge.Service] += charge.Amount
	p.Total += charge.Amount
	p.Operations++
	p.UpdatedAt = charge.At
	if !p.Exceeded && p.Total >= p.Limit {
		at := charge.At
		p.Exceeded = true
		p.ExceededAt = &at
	}
}

func newPeriod(charge Charge) *Period {
	return &Period{
		Day:          charge.Day,
		Limit:        charge.DailyLimit,
		MonthlyLimit: charge.MonthlyLimit,
		Breakdown:    make(map[string]USD),
		CreatedAt:    charge.At,
		UpdatedAt:    charge.At,
	}
}

// MonthBounds returns the first and last day keys of month (YYYY-MM).
func MonthBounds(month string) (string, string, error) {
	start, err := time.Parse(MonthLayout, month)
	if err != nil {
		return "", "", err
	}
	end := start.AddDate(0, 1, -1)
	return start.Format(DayLayout), end.Format(DayLayout), nil
}

// DaysBetween lists day keys from fromDay to toDay inclusive.
func DaysBetween(fromDay, toDay string) ([]string, error) {
	from, err := time.Parse(DayLayout, fromDay)
	if err != nil {
		return nil, err
	}
	to, err := time.Parse(DayLayout, toDay)
	if err != nil {
		return nil, err
	}
	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayLayout))
	}
	return days, nil
}

func clonePeriod(p *Period) Period {
	out := *p
	out.Breakdown = make(map[string]USD, len(p.Breakdown))
	for k, v := range p.Breakdown {
		out.Breakdown[k] = v
	}
	if p.ExceededAt != nil {
		at := *p.ExceededAt
		out.ExceededAt = &at
	}
	return out
}
