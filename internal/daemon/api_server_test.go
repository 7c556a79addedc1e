package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"viralforge/internal/budget"
	"viralforge/internal/logging"
	"viralforge/internal/metrics"
	"viralforge/internal/production"
	"viralforge/internal/testsupport"
	"viralforge/internal/workflow"
)

func newTestAPI(t *testing.T, token string) (http.Handler, *Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = token
	st := testsupport.MustOpenStore(t, cfg)
	m := metrics.New()
	ledger := budget.NewLedger(st, budget.DefaultPolicy(), budget.DefaultPrices("test"), budget.WithObserver(m.ObserveSpend))
	d, err := New(cfg, st, ledger, workflow.NewManager(cfg, st, logging.NewNop()), m, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.api == nil {
		t.Fatal("expected api server for a configured bind address")
	}
	return d.api.server.Handler, d
}

func serve(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPIAuth(t *testing.T) {
	h, _ := newTestAPI(t, "secret")
	if w := serve(h, http.MethodGet, "/api/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/status", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/metrics", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected metrics behind auth, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/status", "secret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if w := serve(h, http.MethodPost, "/api/status", "secret"); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestAPIBudget(t *testing.T) {
	h, d := newTestAPI(t, "")
	if _, err := d.ledger.Record(context.Background(), budget.FromDollars(0.25), budget.ServiceVeo); err != nil {
		t.Fatalf("Record: %v", err)
	}

	w := serve(h, http.MethodGet, "/api/budget", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp BudgetResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Day.Spent != budget.FromDollars(0.25) || resp.Month.Spent != budget.FromDollars(0.25) {
		t.Fatalf("unexpected budget %+v", resp)
	}
	if resp.Month.Period != d.ledger.Today()[:7] {
		t.Fatalf("unexpected month period %q", resp.Month.Period)
	}

	if w := serve(h, http.MethodGet, "/api/budget?day=yesterday", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed day, got %d", w.Code)
	}

	metricsBody := serve(h, http.MethodGet, "/metrics", "").Body.String()
	if !strings.Contains(metricsBody, `viralforge_spend_usd_total{service="veo"} 0.25`) {
		t.Fatalf("expected spend metric, got:\n%s", metricsBody)
	}
}

func TestAPIJobs(t *testing.T) {
	h, d := newTestAPI(t, "")
	ctx := context.Background()
	created := time.Now().UTC()
	for _, job := range []production.Job{
		{ID: "job-1", Status: production.StatusCompleted, FinalRef: "file:///final.mp4", CreatedAt: created.Add(-time.Minute)},
		{ID: "job-2", Status: production.StatusFailed, Error: "all segments failed", CreatedAt: created},
	} {
		if err := d.store.SaveJob(ctx, &job); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	w := serve(h, http.MethodGet, "/api/jobs?status=completed", "")
	var list JobListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusOK || len(list.Jobs) != 1 || list.Jobs[0].ID != "job-1" {
		t.Fatalf("unexpected job list %d %+v", w.Code, list)
	}
	if w := serve(h, http.MethodGet, "/api/jobs?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}

	w = serve(h, http.MethodGet, "/api/jobs/job-2", "")
	var one JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &one); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusOK || one.Job.Error != "all segments failed" {
		t.Fatalf("unexpected job %d %+v", w.Code, one)
	}
	if w := serve(h, http.MethodGet, "/api/jobs/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAPIReportFormats(t *testing.T) {
	h, _ := newTestAPI(t, "")
	w := serve(h, http.MethodGet, "/api/report", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") || !strings.Contains(w.Body.String(), "<h1>") {
		t.Fatalf("unexpected html report %d %q", w.Code, w.Body.String())
	}
	w = serve(h, http.MethodGet, "/api/report?format=md&day=2026-03-10", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "# viralforge daily report: 2026-03-10") {
		t.Fatalf("unexpected markdown report %d %q", w.Code, w.Body.String())
	}
	if w := serve(h, http.MethodGet, "/api/report?format=pdf", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", w.Code)
	}
}
