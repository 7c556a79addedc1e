package testsupport

import (
	"context"
	"testing"
	"time"

	"viralforge/internal/config"
	"viralforge/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...store.Option) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewCandidate upserts a candidate with the given counters for tests.
func NewCandidate(t testing.TB, st *store.Store, externalID string, views, likes, comments int64) *store.Candidate {
	t.Helper()

	posted := time.Now().Add(-time.Hour)
	cand, err := st.UpsertCandidate(context.Background(), store.CandidateInput{
		Platform:   "tiktok",
		ExternalID: externalID,
		URL:        "https://www.tiktok.com/@creator/video/" + externalID,
		Caption:    "caption " + externalID,
		Author:     "creator",
		Views:      views,
		Likes:      likes,
		Comments:   comments,
		PostedAt:   &posted,
	})
	if err != nil {
		t.Fatalf("store.UpsertCandidate: %v", err)
	}
	return cand
}
