package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const strategyColumns = "id, candidate_id, result_id, title, payload_json, status, job_id, created_at, updated_at"

// ErrInvalidTransition reports a status change the row's current state
// does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// CreateStrategy stores a validated strategy awaiting approval and marks its
// candidate strategized.
func (s *Store) CreateStrategy(ctx context.Context, candidateID, resultID int64, title string, payload json.RawMessage) (*Strategy, error) {
	if len(payload) == 0 {
		return nil, errors.New("create strategy: payload is required")
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		var result any
		if resultID > 0 {
			result = resultID
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO strategies (candidate_id, result_id, title, payload_json, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			candidateID, result, title, string(payload), string(StrategyPendingApproval), now, now)
		if err != nil {
			return fmt.Errorf("insert strategy: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE candidates SET status = ?, updated_at = ? WHERE id = ?`,
			string(CandidateStrategized), now, candidateID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetStrategy(ctx, id)
}

// GetStrategy fetches a strategy by id; nil when missing.
func (s *Store) GetStrategy(ctx context.Context, id int64) (*Strategy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+strategyColumns+` FROM strategies WHERE id = ?`, id)
	st, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy: %w", err)
	}
	return st, nil
}

// ListStrategies returns strategies, newest first, optionally by status.
func (s *Store) ListStrategies(ctx context.Context, statuses ...StrategyStatus) ([]Strategy, error) {
	query := sq.Select(strategyColumns).From("strategies").OrderBy("id DESC")
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, st := range statuses {
			values = append(values, string(st))
		}
		query = query.Where(sq.Eq{"status": values})
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build strategy query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()
	var out []Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// ApproveStrategy marks a pending strategy approved and enqueues its
// production task in one transaction. It returns the task id.
func (s *Store) ApproveStrategy(ctx context.Context, id int64) (int64, error) {
	var taskID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		if err := transitionStrategy(ctx, tx, id, StrategyPendingApproval, StrategyApproved, now); err != nil {
			return err
		}
		var err error
		taskID, err = enqueueTaskTx(ctx, tx, TaskProduce, id, now)
		return err
	})
	return taskID, err
}

// RejectStrategy marks a pending strategy rejected.
func (s *Store) RejectStrategy(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return transitionStrategy(ctx, tx, id, StrategyPendingApproval, StrategyRejected, s.timestamp())
	})
}

// MarkStrategyProduced links a completed production job and moves the
// strategy and its candidate to produced.
func (s *Store) MarkStrategyProduced(ctx context.Context, id int64, jobID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		if err := transitionStrategy(ctx, tx, id, StrategyApproved, StrategyProduced, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE strategies SET job_id = ? WHERE id = ?`, jobID, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE candidates SET status = ?, updated_at = ?
             WHERE id = (SELECT candidate_id FROM strategies WHERE id = ?)`,
			string(CandidateProduced), now, id)
		return err
	})
}

// SetStrategyJob records the job attempting to produce a strategy.
func (s *Store) SetStrategyJob(ctx context.Context, id int64, jobID string) error {
	_, err := s.execWithRetry(ctx, `UPDATE strategies SET job_id = ?, updated_at = ? WHERE id = ?`,
		nullableString(jobID), s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("set strategy job: %w", err)
	}
	return nil
}

func transitionStrategy(ctx context.Context, tx *sql.Tx, id int64, from, to StrategyStatus, now string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE strategies SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now, id, string(from))
	if err != nil {
		return fmt.Errorf("update strategy status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM strategies WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("strategy %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("strategy %d %s -> %s: %w", id, current, to, ErrInvalidTransition)
}

func scanStrategy(scanner rowScanner) (*Strategy, error) {
	var (
		st                     Strategy
		resultID               sql.NullInt64
		payload, status        string
		jobID                  sql.NullString
		createdRaw, updatedRaw string
	)
	if err := scanner.Scan(&st.ID, &st.CandidateID, &resultID, &st.Title, &payload, &status, &jobID,
		&createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	st.ResultID = resultID.Int64
	st.Payload = json.RawMessage(payload)
	st.Status = StrategyStatus(status)
	st.JobID = jobID.String
	st.CreatedAt = parseTime(createdRaw)
	st.UpdatedAt = parseTime(updatedRaw)
	return &st, nil
}
