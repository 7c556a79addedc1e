package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"viralforge/internal/budget"
	"viralforge/internal/metrics"
	"viralforge/internal/production"
	"viralforge/internal/services"
	"viralforge/internal/store"
	"viralforge/internal/structured"
)

func TestObserversUpdateCounters(t *testing.T) {
	m := metrics.New()

	m.ObserveSpend(budget.ServiceVeo, budget.FromDollars(0.5))
	m.ObserveSpend(budget.ServiceVeo, budget.FromDollars(0.25))
	if got := testutil.ToFloat64(m.Spend.WithLabelValues(budget.ServiceVeo)); got != 0.75 {
		t.Fatalf("spend = %v, want 0.75", got)
	}

	m.SegmentFinished(production.SegmentRendered, 12*time.Second)
	m.SegmentFinished(production.SegmentFailed, time.Second)
	m.SegmentFinished(production.SegmentRendered, 20*time.Second)
	if got := testutil.ToFloat64(m.Segments.WithLabelValues(production.SegmentRendered)); got != 2 {
		t.Fatalf("rendered segments = %v, want 2", got)
	}

	m.JobFinished(&production.Job{Status: production.StatusCompleted, Kind: services.KindPartial, TotalCost: budget.FromDollars(1.5)})
	m.JobFinished(&production.Job{Status: production.StatusFailed, Kind: services.KindGate})
	m.JobFinished(nil)
	if got := testutil.ToFloat64(m.Jobs.WithLabelValues("completed", "partial")); got != 1 {
		t.Fatalf("partial completed jobs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Jobs.WithLabelValues("failed", "gate")); got != 1 {
		t.Fatalf("gated jobs = %v, want 1", got)
	}

	m.ObserveResult(structured.Result{Schema: structured.SchemaAnalysis, Valid: true})
	m.ObserveResult(structured.Result{Schema: structured.SchemaAnalysis})
	m.ObserveResult(structured.Result{Schema: structured.SchemaAnalysis, Terminal: true})
	for _, outcome := range []string{"valid", "retried", "quarantined"} {
		if got := testutil.ToFloat64(m.Results.WithLabelValues(structured.SchemaAnalysis, outcome)); got != 1 {
			t.Fatalf("%s results = %v, want 1", outcome, got)
		}
	}
}

type fakeStats struct {
	candidates map[store.CandidateStatus]int
	tasks      map[store.TaskStatus]int
	err        error
}

func (f fakeStats) CandidateStats(context.Context) (map[store.CandidateStatus]int, error) {
	return f.candidates, f.err
}

func (f fakeStats) TaskStats(context.Context) (map[store.TaskStatus]int, error) {
	return f.tasks, nil
}

func TestHandlerExposesStoreGauges(t *testing.T) {
	m := metrics.New()
	err := m.Register(metrics.NewStoreCollector(fakeStats{
		candidates: map[store.CandidateStatus]int{store.CandidateQueued: 3, store.CandidateGatedOut: 7},
		tasks:      map[store.TaskStatus]int{store.TaskDeferred: 2},
	}, nil))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	m.ObserveSpend(budget.ServiceGemini, budget.FromDollars(0.002))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`viralforge_candidates{status="gated_out"} 7`,
		`viralforge_candidates{status="queued"} 3`,
		`viralforge_tasks{status="deferred"} 2`,
		`viralforge_spend_usd_total{service="gemini"} 0.002`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestStoreCollectorSkipsFailedSource(t *testing.T) {
	c := metrics.NewStoreCollector(fakeStats{err: errors.New("db locked"), tasks: map[store.TaskStatus]int{store.TaskPending: 1}}, nil)
	if got := testutil.CollectAndCount(c); got != 1 {
		t.Fatalf("collected %d series, want 1", got)
	}
}
