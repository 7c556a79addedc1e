package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"viralforge/internal/production"
)

// SaveJob upserts a production job snapshot. It satisfies
// production.JobStore.
func (s *Store) SaveJob(ctx context.Context, job *production.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("save job: id is required")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	var strategy any
	if job.StrategyID > 0 {
		strategy = job.StrategyID
	}
	created := job.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err = s.execWithRetry(ctx, `
INSERT INTO production_jobs (id, strategy_id, status, error, total_cost, final_ref, data_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    error = excluded.error,
    total_cost = excluded.total_cost,
    final_ref = excluded.final_ref,
    data_json = excluded.data_json,
    updated_at = excluded.updated_at`,
		job.ID, strategy, string(job.Status), nullableString(job.Error), int64(job.TotalCost),
		nullableString(job.FinalRef), string(data), formatTime(created), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads a job by id; nil when missing.
func (s *Store) GetJob(ctx context.Context, id string) (*production.Job, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data_json FROM production_jobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return decodeJob(data)
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Statuses   []production.Status
	StrategyID int64
	Limit      uint64
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]production.Job, error) {
	query := sq.Select("data_json").From("production_jobs").OrderBy("created_at DESC", "id DESC")
	if len(filter.Statuses) > 0 {
		values := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			values = append(values, string(st))
		}
		query = query.Where(sq.Eq{"status": values})
	}
	if filter.StrategyID > 0 {
		query = query.Where(sq.Eq{"strategy_id": filter.StrategyID})
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []production.Job
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		job, err := decodeJob(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func decodeJob(data string) (*production.Job, error) {
	var job production.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
