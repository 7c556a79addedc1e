package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"viralforge/internal/budget"
)

var _ budget.Store = (*Store)(nil)

const periodColumns = "day, daily_limit, monthly_limit, total, operations, exceeded, exceeded_at, created_at, updated_at"

// Period loads one day's spend record; nil when nothing was spent that day.
func (s *Store) Period(ctx context.Context, day string) (*budget.Period, error) {
	p, err := loadPeriod(ctx, s.db, day)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load period %s: %w", day, err)
	}
	return p, nil
}

// PeriodsBetween returns the periods from fromDay to toDay inclusive.
func (s *Store) PeriodsBetween(ctx context.Context, fromDay, toDay string) ([]budget.Period, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day FROM budget_periods WHERE day >= ? AND day <= ? ORDER BY day`, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	var days []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			rows.Close()
			return nil, err
		}
		days = append(days, day)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	out := make([]budget.Period, 0, len(days))
	for _, day := range days {
		p, err := s.Period(ctx, day)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Apply records a charge in one transaction: the period row is created with
// the charge's limits when missing, the service and total are incremented
// and the exceeded flag is latched the first time the total reaches the
// limit.
func (s *Store) Apply(ctx context.Context, charge budget.Charge) (budget.Period, error) {
	var out budget.Period
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		at := formatTime(charge.At)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO budget_periods (day, daily_limit, monthly_limit, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?)`,
			charge.Day, int64(charge.DailyLimit), int64(charge.MonthlyLimit), at, at); err != nil {
			return fmt.Errorf("create period: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE budget_periods SET total = total + ?, operations = operations + 1, updated_at = ? WHERE day = ?`,
			int64(charge.Amount), at, charge.Day); err != nil {
			return fmt.Errorf("update period total: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budget_breakdown (day, service, amount) VALUES (?, ?, ?)
             ON CONFLICT(day, service) DO UPDATE SET amount = amount + excluded.amount`,
			charge.Day, charge.Service, int64(charge.Amount)); err != nil {
			return fmt.Errorf("update breakdown: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE budget_periods SET exceeded = 1, exceeded_at = ?
             WHERE day = ? AND exceeded = 0 AND total >= daily_limit`,
			at, charge.Day); err != nil {
			return fmt.Errorf("latch exceeded: %w", err)
		}
		p, err := loadPeriod(ctx, tx, charge.Day)
		if err != nil {
			return err
		}
		out = *p
		return nil
	})
	if err != nil {
		return budget.Period{}, fmt.Errorf("apply charge: %w", err)
	}
	return out, nil
}

// IncrementCounter adds delta to a named daily counter.
func (s *Store) IncrementCounter(ctx context.Context, day, name string, delta int64) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO daily_counters (day, name, value) VALUES (?, ?, ?)
         ON CONFLICT(day, name) DO UPDATE SET value = value + excluded.value`,
		day, name, delta)
	if err != nil {
		return fmt.Errorf("increment counter %s: %w", name, err)
	}
	return nil
}

// Counters returns every counter recorded for day.
func (s *Store) Counters(ctx context.Context, day string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM daily_counters WHERE day = ?`, day)
	if err != nil {
		return nil, fmt.Errorf("load counters: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			name  string
			value int64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadPeriod(ctx context.Context, q querier, day string) (*budget.Period, error) {
	var (
		p                      budget.Period
		limit, monthly, total  int64
		exceeded               int
		exceededAt             sql.NullString
		createdRaw, updatedRaw string
	)
	err := q.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM budget_periods WHERE day = ?`, day).Scan(
		&p.Day, &limit, &monthly, &total, &p.Operations, &exceeded, &exceededAt, &createdRaw, &updatedRaw)
	if err != nil {
		return nil, err
	}
	p.Limit = budget.USD(limit)
	p.MonthlyLimit = budget.USD(monthly)
	p.Total = budget.USD(total)
	p.Exceeded = exceeded != 0
	p.ExceededAt = parseNullTime(exceededAt)
	p.CreatedAt = parseTime(createdRaw)
	p.UpdatedAt = parseTime(updatedRaw)
	p.Breakdown = make(map[string]budget.USD)

	rows, err := q.QueryContext(ctx, `SELECT service, amount FROM budget_breakdown WHERE day = ?`, day)
	if err != nil {
		return nil, fmt.Errorf("load breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			service string
			amount  int64
		)
		if err := rows.Scan(&service, &amount); err != nil {
			return nil, err
		}
		p.Breakdown[service] = budget.USD(amount)
	}
	return &p, rows.Err()
}
