package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"viralforge/internal/score"
)

const profileColumns = "id, handle, platform, niche, display_name, baseline_views, baseline_likes, baseline_comments, created_at, updated_at"

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// CreateProfile inserts a profile. Handles are unique per platform.
func (s *Store) CreateProfile(ctx context.Context, p Profile) (*Profile, error) {
	p.Handle = strings.TrimPrefix(strings.TrimSpace(p.Handle), "@")
	p.Platform = strings.ToLower(strings.TrimSpace(p.Platform))
	if p.Handle == "" || p.Platform == "" {
		return nil, errors.New("create profile: handle and platform are required")
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO profiles (handle, platform, niche, display_name, baseline_views, baseline_likes, baseline_comments, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Handle, p.Platform, nullableString(p.Niche), nullableString(p.DisplayName),
		p.Baselines.Views, p.Baselines.Likes, p.Baselines.Comments, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetProfile(ctx, id)
}

// GetProfile fetches a profile by id; nil when missing.
func (s *Store) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// FindProfile looks a profile up by platform and handle; nil when missing.
func (s *Store) FindProfile(ctx context.Context, platform, handle string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE platform = ? AND handle = ?`,
		strings.ToLower(strings.TrimSpace(platform)), strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns every profile ordered by platform and handle.
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY platform, handle`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateProfileBaselines replaces a profile's baselines and recomputes the
// derived score of each of its candidates in the same transaction.
func (s *Store) UpdateProfileBaselines(ctx context.Context, profileID int64, b score.Baselines) (int, error) {
	recomputed := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		recomputed = 0
		now := s.timestamp()
		res, err := tx.ExecContext(ctx,
			`UPDATE profiles SET baseline_views = ?, baseline_likes = ?, baseline_comments = ?, updated_at = ? WHERE id = ?`,
			b.Views, b.Likes, b.Comments, now, profileID)
		if err != nil {
			return fmt.Errorf("update baselines: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
		}
		rows, err := tx.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE profile_id = ?`, profileID)
		if err != nil {
			return fmt.Errorf("load profile candidates: %w", err)
		}
		var cands []*Candidate
		for rows.Next() {
			c, err := scanCandidate(rows)
			if err != nil {
				rows.Close()
				return err
			}
			cands = append(cands, c)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		for _, c := range cands {
			s.derive(c, &b)
			if err := updateDerived(ctx, tx, c, now); err != nil {
				return err
			}
			recomputed++
		}
		return nil
	})
	return recomputed, err
}

func scanProfile(scanner rowScanner) (*Profile, error) {
	var (
		p                   Profile
		niche, displayName  sql.NullString
		createdRaw, updated string
	)
	if err := scanner.Scan(&p.ID, &p.Handle, &p.Platform, &niche, &displayName,
		&p.Baselines.Views, &p.Baselines.Likes, &p.Baselines.Comments, &createdRaw, &updated); err != nil {
		return nil, err
	}
	p.Niche = niche.String
	p.DisplayName = displayName.String
	p.CreatedAt = parseTime(createdRaw)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}
