package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"viralforge/internal/structured"
)

const resultColumns = "id, subject_type, subject_id, schema_name, schema_version, attempt, state, valid, terminal, payload_json, errors_json, raw, created_at"

// InsertResult persists one structured result for a subject.
func (s *Store) InsertResult(ctx context.Context, subjectType string, subjectID int64, res structured.Result) (int64, error) {
	var payload any
	if len(res.Payload) > 0 {
		payload = string(res.Payload)
	}
	var errsJSON any
	if len(res.Errors) > 0 {
		encoded, err := json.Marshal(res.Errors)
		if err != nil {
			return 0, fmt.Errorf("encode result errors: %w", err)
		}
		errsJSON = string(encoded)
	}
	out, err := s.execWithRetry(ctx, `
INSERT INTO structured_results (subject_type, subject_id, schema_name, schema_version, attempt, state, valid, terminal, payload_json, errors_json, raw, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subjectType, subjectID, res.Schema, res.SchemaVersion, res.Attempt, string(res.State),
		boolToInt(res.Valid), boolToInt(res.Terminal), payload, errsJSON, res.Raw, s.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert structured result: %w", err)
	}
	return out.LastInsertId()
}

// ResultSink adapts the store to structured.Sink for one subject.
func (s *Store) ResultSink(subjectType string, subjectID int64) structured.Sink {
	return structured.SinkFunc(func(ctx context.Context, res structured.Result) error {
		_, err := s.InsertResult(ctx, subjectType, subjectID, res)
		return err
	})
}

// ListResults returns a subject's results in insertion order. An empty
// schema matches every schema.
func (s *Store) ListResults(ctx context.Context, subjectType string, subjectID int64, schema string) ([]ResultRecord, error) {
	query := sq.Select(resultColumns).From("structured_results").
		Where(sq.Eq{"subject_type": subjectType, "subject_id": subjectID}).
		OrderBy("id ASC")
	if schema != "" {
		query = query.Where(sq.Eq{"schema_name": schema})
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build result query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	var out []ResultRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// LatestValidResult returns the newest valid result of schema for a subject;
// nil when none exists.
func (s *Store) LatestValidResult(ctx context.Context, subjectType string, subjectID int64, schema string) (*ResultRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM structured_results
         WHERE subject_type = ? AND subject_id = ? AND schema_name = ? AND valid = 1
         ORDER BY id DESC LIMIT 1`,
		subjectType, subjectID, schema)
	rec, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest valid result: %w", err)
	}
	return rec, nil
}

func scanResult(scanner rowScanner) (*ResultRecord, error) {
	var (
		rec               ResultRecord
		state, createdRaw string
		valid, terminal   int
		payload, errsJSON sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.SubjectType, &rec.SubjectID, &rec.Result.Schema, &rec.Result.SchemaVersion,
		&rec.Result.Attempt, &state, &valid, &terminal, &payload, &errsJSON, &rec.Result.Raw, &createdRaw); err != nil {
		return nil, err
	}
	rec.Result.State = structured.State(state)
	rec.Result.Valid = valid != 0
	rec.Result.Terminal = terminal != 0
	if payload.Valid && payload.String != "" {
		rec.Result.Payload = json.RawMessage(payload.String)
	}
	if errsJSON.Valid && errsJSON.String != "" {
		if err := json.Unmarshal([]byte(errsJSON.String), &rec.Result.Errors); err != nil {
			return nil, fmt.Errorf("decode result errors: %w", err)
		}
	}
	rec.CreatedAt = parseTime(createdRaw)
	return &rec, nil
}
