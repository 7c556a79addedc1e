package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"viralforge/internal/score"
)

const candidateColumns = `id, profile_id, platform, external_id, url, caption, author, views, likes, comments, posted_at,
    normalized_views, normalized_engagement, recency, score, passes, status, created_at, updated_at`

// CandidateFilter narrows ListCandidates. Zero values match everything.
type CandidateFilter struct {
	Statuses  []CandidateStatus
	ProfileID int64
	Platform  string
	MinScore  float64
	OnlyPass  bool
	Limit     uint64
}

// UpsertCandidate inserts or refreshes a candidate keyed by platform and
// external id. Derived score fields are recomputed in the same transaction
// from the linked profile's baselines. The status of an existing candidate
// is preserved; new candidates start as new or gated_out.
func (s *Store) UpsertCandidate(ctx context.Context, in CandidateInput) (*Candidate, error) {
	in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.Platform == "" || in.ExternalID == "" {
		return nil, errors.New("upsert candidate: platform and external id are required")
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		baselines, err := profileBaselines(ctx, tx, in.ProfileID)
		if err != nil {
			return err
		}
		c := &Candidate{
			Views:    in.Views,
			Likes:    in.Likes,
			Comments: in.Comments,
			PostedAt: in.PostedAt,
		}
		s.derive(c, baselines)
		status := gateStatus(c.Passes)
		now := s.timestamp()
		var profileID any
		if in.ProfileID > 0 {
			profileID = in.ProfileID
		}
		row := tx.QueryRowContext(ctx, `
INSERT INTO candidates (profile_id, platform, external_id, url, caption, author, views, likes, comments, posted_at,
    normalized_views, normalized_engagement, recency, score, passes, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(platform, external_id) DO UPDATE SET
    profile_id = COALESCE(excluded.profile_id, candidates.profile_id),
    url = COALESCE(excluded.url, candidates.url),
    caption = COALESCE(excluded.caption, candidates.caption),
    author = COALESCE(excluded.author, candidates.author),
    views = excluded.views,
    likes = excluded.likes,
    comments = excluded.comments,
    posted_at = COALESCE(excluded.posted_at, candidates.posted_at),
    normalized_views = excluded.normalized_views,
    normalized_engagement = excluded.normalized_engagement,
    recency = excluded.recency,
    score = excluded.score,
    passes = excluded.passes,
    status = CASE
        WHEN candidates.status IN ('new', 'gated_out') THEN excluded.status
        ELSE candidates.status
    END,
    updated_at = excluded.updated_at
RETURNING id`,
			profileID, in.Platform, in.ExternalID, nullableString(in.URL), nullableString(in.Caption),
			nullableString(in.Author), in.Views, in.Likes, in.Comments, nullableTime(in.PostedAt),
			c.NormalizedViews, c.NormalizedEngagement, c.Recency, c.Score, boolToInt(c.Passes),
			string(status), now, now,
		)
		return row.Scan(&id)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert candidate: %w", err)
	}
	return s.GetCandidate(ctx, id)
}

// GetCandidate fetches a candidate by id; nil when missing.
func (s *Store) GetCandidate(ctx context.Context, id int64) (*Candidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}

// SetCandidateStatus moves a candidate to status.
func (s *Store) SetCandidateStatus(ctx context.Context, id int64, status CandidateStatus) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE candidates SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("set candidate status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("candidate %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListCandidates returns candidates matching filter, highest score first.
func (s *Store) ListCandidates(ctx context.Context, filter CandidateFilter) ([]Candidate, error) {
	query := sq.Select(candidateColumns).From("candidates").OrderBy("score DESC", "id ASC")
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where(sq.Eq{"status": statuses})
	}
	if filter.ProfileID > 0 {
		query = query.Where(sq.Eq{"profile_id": filter.ProfileID})
	}
	if filter.Platform != "" {
		query = query.Where(sq.Eq{"platform": strings.ToLower(filter.Platform)})
	}
	if filter.MinScore > 0 {
		query = query.Where(sq.GtOrEq{"score": filter.MinScore})
	}
	if filter.OnlyPass {
		query = query.Where(sq.Eq{"passes": 1})
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CandidateStats counts candidates by status.
func (s *Store) CandidateStats(ctx context.Context) (map[CandidateStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM candidates GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("candidate stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[CandidateStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[CandidateStatus(status)] = count
	}
	return stats, rows.Err()
}

func (s *Store) derive(c *Candidate, baselines *score.Baselines) {
	res := s.engine.Evaluate(c.Counters(), c.PostedAt, baselines)
	c.NormalizedViews = res.NormalizedViews
	c.NormalizedEngagement = res.NormalizedEngagement
	c.Recency = res.Recency
	c.Score = res.Score
	c.Passes = res.Passes
}

func profileBaselines(ctx context.Context, tx *sql.Tx, profileID int64) (*score.Baselines, error) {
	if profileID <= 0 {
		return nil, nil
	}
	var b score.Baselines
	err := tx.QueryRowContext(ctx,
		`SELECT baseline_views, baseline_likes, baseline_comments FROM profiles WHERE id = ?`, profileID,
	).Scan(&b.Views, &b.Likes, &b.Comments)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile baselines: %w", err)
	}
	return &b, nil
}

func updateDerived(ctx context.Context, tx *sql.Tx, c *Candidate, now string) error {
	_, err := tx.ExecContext(ctx, `
UPDATE candidates SET
    normalized_views = ?, normalized_engagement = ?, recency = ?, score = ?, passes = ?,
    status = CASE
        WHEN status IN ('new', 'gated_out') THEN ?
        ELSE status
    END,
    updated_at = ?
WHERE id = ?`,
		c.NormalizedViews, c.NormalizedEngagement, c.Recency, c.Score, boolToInt(c.Passes),
		string(gateStatus(c.Passes)), now, c.ID)
	if err != nil {
		return fmt.Errorf("update candidate %d scores: %w", c.ID, err)
	}
	return nil
}

func gateStatus(passes bool) CandidateStatus {
	if passes {
		return CandidateNew
	}
	return CandidateGatedOut
}

func scanCandidate(scanner rowScanner) (*Candidate, error) {
	var (
		c                             Candidate
		profileID                     sql.NullInt64
		url, caption, author, posted  sql.NullString
		passes                        int
		status, createdRaw, updateRaw string
	)
	if err := scanner.Scan(&c.ID, &profileID, &c.Platform, &c.ExternalID, &url, &caption, &author,
		&c.Views, &c.Likes, &c.Comments, &posted,
		&c.NormalizedViews, &c.NormalizedEngagement, &c.Recency, &c.Score, &passes,
		&status, &createdRaw, &updateRaw); err != nil {
		return nil, err
	}
	c.ProfileID = profileID.Int64
	c.URL = url.String
	c.Caption = caption.String
	c.Author = author.String
	c.PostedAt = parseNullTime(posted)
	c.Passes = passes != 0
	c.Status = CandidateStatus(status)
	c.CreatedAt = parseTime(createdRaw)
	c.UpdatedAt = parseTime(updateRaw)
	return &c, nil
}
