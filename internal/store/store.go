package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"viralforge/internal/config"
	"viralforge/internal/score"
)

// Store persists profiles, candidates, structured results, strategies,
// production jobs, the task queue and the spend ledger in SQLite.
type Store struct {
	db     *sql.DB
	path   string
	engine *score.Engine
	now    func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithScoreEngine sets the engine used to derive candidate scores.
func WithScoreEngine(engine *score.Engine) Option {
	return func(s *Store) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the database configured in cfg.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	opts = append([]Option{WithScoreEngine(ScoreEngine(cfg))}, opts...)
	return OpenPath(context.Background(), cfg.DatabasePath(), opts...)
}

// ScoreEngine builds the scoring engine described by cfg.Score.
func ScoreEngine(cfg *config.Config) *score.Engine {
	return score.New(
		score.WithWeights(score.Weights{
			Views:      cfg.Score.ViewsWeight,
			Engagement: cfg.Score.EngagementWeight,
			Recency:    cfg.Score.RecencyWeight,
		}),
		score.WithThreshold(cfg.Score.Threshold),
		score.WithDefaultBaselines(score.Baselines{
			Views:    cfg.Score.DefaultViews,
			Likes:    cfg.Score.DefaultLikes,
			Comments: cfg.Score.DefaultComments,
		}),
	)
}

// OpenPath opens the database at path, creating the schema when needed.
// Every pooled connection gets WAL, foreign keys and a busy timeout, and
// transactions take the write lock up front.
func OpenPath(ctx context.Context, path string, opts ...Option) (*Store, error) {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Set("_txlock", "immediate")
	db, err := sql.Open("sqlite", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	s := New(db, opts...)
	s.path = path
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open database without touching its schema.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, engine: score.New(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path reports the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// withTx runs fn in a transaction, retrying the whole transaction when
// SQLite reports the database busy.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
