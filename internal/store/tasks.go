package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const taskColumns = "id, kind, subject_id, status, attempts, error_message, not_before, last_heartbeat, created_at, updated_at"

// EnqueueTask adds a pending task unless an unfinished task of the same kind
// already exists for the subject, in which case that task's id is returned.
func (s *Store) EnqueueTask(ctx context.Context, kind TaskKind, subjectID int64) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = enqueueTaskTx(ctx, tx, kind, subjectID, s.timestamp())
		return err
	})
	return id, err
}

func enqueueTaskTx(ctx context.Context, tx *sql.Tx, kind TaskKind, subjectID int64, now string) (int64, error) {
	var existing int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM tasks WHERE kind = ? AND subject_id = ? AND status IN (?, ?, ?) ORDER BY id LIMIT 1`,
		string(kind), subjectID, string(TaskPending), string(TaskRunning), string(TaskDeferred),
	).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("check existing task: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (kind, subject_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		string(kind), subjectID, string(TaskPending), now, now)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

// ClaimNextTask atomically moves the oldest runnable task of one of kinds to
// running. Deferred tasks become runnable once not_before has passed. It
// returns nil when nothing is runnable.
func (s *Store) ClaimNextTask(ctx context.Context, kinds ...TaskKind) (*Task, error) {
	var task *Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		task = nil
		now := s.timestamp()
		query := sq.Select(taskColumns).From("tasks").
			Where(sq.Or{
				sq.Eq{"status": string(TaskPending)},
				sq.And{sq.Eq{"status": string(TaskDeferred)}, sq.LtOrEq{"not_before": now}},
			}).
			OrderBy("id ASC").Limit(1)
		if len(kinds) > 0 {
			values := make([]string, 0, len(kinds))
			for _, k := range kinds {
				values = append(values, string(k))
			}
			query = query.Where(sq.Eq{"kind": values})
		}
		stmt, args, err := query.ToSql()
		if err != nil {
			return err
		}
		claimed, err := scanTask(tx.QueryRowContext(ctx, stmt, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select runnable task: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, attempts = attempts + 1, not_before = NULL, last_heartbeat = ?, updated_at = ? WHERE id = ?`,
			string(TaskRunning), now, now, claimed.ID); err != nil {
			return fmt.Errorf("claim task: %w", err)
		}
		claimed.Status = TaskRunning
		claimed.Attempts++
		claimed.NotBefore = nil
		at := parseTime(now)
		claimed.LastHeartbeat = &at
		task = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask fetches a task by id; nil when missing.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// CompleteTask marks a task completed.
func (s *Store) CompleteTask(ctx context.Context, id int64) error {
	now := s.timestamp()
	_, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, error_message = NULL, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		string(TaskCompleted), now, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// FailTask moves a task to status (failed, review or deferred) with msg.
// notBefore is only kept for deferred tasks.
func (s *Store) FailTask(ctx context.Context, id int64, status TaskStatus, msg string, notBefore *time.Time) error {
	switch status {
	case TaskFailed, TaskReview, TaskDeferred:
	default:
		return fmt.Errorf("fail task: unsupported status %q", status)
	}
	var until any
	if status == TaskDeferred {
		if notBefore == nil {
			return errors.New("fail task: deferred tasks need a not-before time")
		}
		until = nullableTime(notBefore)
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, error_message = ?, not_before = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		string(status), nullableString(msg), until, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// UpdateTaskHeartbeat refreshes the heartbeat of a running task.
func (s *Store) UpdateTaskHeartbeat(ctx context.Context, id int64) error {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE tasks SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, string(TaskRunning)); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleTasks returns running tasks whose heartbeat is older than
// cutoff to pending.
func (s *Store) ReclaimStaleTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		string(TaskPending), s.timestamp(), string(TaskRunning), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// ResetRunningTasks returns every running task to pending. The daemon calls
// it at startup, when no worker can still own a task.
func (s *Store) ResetRunningTasks(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE status = ?`,
		string(TaskPending), s.timestamp(), string(TaskRunning))
	if err != nil {
		return 0, fmt.Errorf("reset running tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryTasks moves failed and review tasks back to pending. With no ids
// every failed task is retried.
func (s *Store) RetryTasks(ctx context.Context, ids ...int64) (int64, error) {
	query := sq.Update("tasks").
		Set("status", string(TaskPending)).
		Set("error_message", nil).
		Set("not_before", nil).
		Set("updated_at", s.timestamp())
	if len(ids) == 0 {
		query = query.Where(sq.Eq{"status": string(TaskFailed)})
	} else {
		query = query.Where(sq.Eq{"id": ids, "status": []string{string(TaskFailed), string(TaskReview)}})
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build retry query: %w", err)
	}
	res, err := s.execWithRetry(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("retry tasks: %w", err)
	}
	return res.RowsAffected()
}

// ListTasks returns tasks, oldest first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, statuses ...TaskStatus) ([]Task, error) {
	query := sq.Select(taskColumns).From("tasks").OrderBy("id ASC")
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, st := range statuses {
			values = append(values, string(st))
		}
		query = query.Where(sq.Eq{"status": values})
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build task query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

// TaskStats counts tasks by status.
func (s *Store) TaskStats(ctx context.Context) (map[TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[TaskStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[TaskStatus(status)] = count
	}
	return stats, rows.Err()
}

func scanTask(scanner rowScanner) (*Task, error) {
	var (
		task                   Task
		kind, status           string
		errMsg                 sql.NullString
		notBefore, heartbeat   sql.NullString
		createdRaw, updatedRaw string
	)
	if err := scanner.Scan(&task.ID, &kind, &task.SubjectID, &status, &task.Attempts, &errMsg,
		&notBefore, &heartbeat, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	task.Kind = TaskKind(kind)
	task.Status = TaskStatus(status)
	task.ErrorMessage = errMsg.String
	task.NotBefore = parseNullTime(notBefore)
	task.LastHeartbeat = parseNullTime(heartbeat)
	task.CreatedAt = parseTime(createdRaw)
	task.UpdatedAt = parseTime(updatedRaw)
	return &task, nil
}
