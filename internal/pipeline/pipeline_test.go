package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"viralforge/internal/budget"
	"viralforge/internal/notifications"
	"viralforge/internal/pipeline"
	"viralforge/internal/production"
	"viralforge/internal/services"
	"viralforge/internal/store"
	"viralforge/internal/structured"
	"viralforge/internal/testsupport"
)

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type harness struct {
	st       *store.Store
	ledger   *budget.Ledger
	notifier *recordingNotifier
	deps     pipeline.Deps
	results  []structured.Result
}

func newHarness(t *testing.T, dailyLimit float64) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ledger := budget.NewLedger(st, budget.Policy{
		DailyLimit:       budget.FromDollars(dailyLimit),
		MonthlyLimit:     budget.FromDollars(100),
		WarningThreshold: 0.8,
		AbortOnExceed:    true,
	}, budget.DefaultPrices("test"))
	h := &harness{st: st, ledger: ledger, notifier: &recordingNotifier{}}
	h.deps = pipeline.Deps{
		Store:          st,
		Ledger:         ledger,
		Notifier:       h.notifier,
		ResultObserver: func(r structured.Result) { h.results = append(h.results, r) },
	}
	return h
}

func (h *harness) claim(t *testing.T, kind store.TaskKind) *store.Task {
	t.Helper()
	task, err := h.st.ClaimNextTask(context.Background(), kind)
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if task == nil {
		t.Fatalf("no %s task queued", kind)
	}
	return task
}

func (h *harness) spent(t *testing.T) budget.Status {
	t.Helper()
	status, err := h.ledger.Status(context.Background(), h.ledger.Today())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return status
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func queuedCandidate(t *testing.T, h *harness) *store.Candidate {
	t.Helper()
	cand := testsupport.NewCandidate(t, h.st, "hit", 150000, 9000, 2000)
	if !cand.Passes {
		t.Fatalf("expected fixture candidate to pass the gate, score %.3f", cand.Score)
	}
	if _, err := h.st.EnqueueTask(context.Background(), store.TaskAnalyze, cand.ID); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	return cand
}

type scriptedGenerator struct {
	outputs []string
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	var out string
	var err error
	if i < len(g.outputs) {
		out = g.outputs[i]
	}
	if i < len(g.errs) {
		err = g.errs[i]
	}
	return out, err
}

func TestAnalystStoresValidAnalysisAndQueuesStrategy(t *testing.T) {
	h := newHarness(t, 20)
	ctx := context.Background()
	cand := queuedCandidate(t, h)
	gen := &scriptedGenerator{outputs: []string{"```json\n" + fixture(t, "analysis_valid.json") + "\n```"}}

	analyst := pipeline.NewAnalyst(h.deps, gen, budget.ServiceGemini, nil)
	if err := analyst.Execute(ctx, h.claim(t, store.TaskAnalyze)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(gen.prompts) != 1 {
		t.Fatalf("expected one model call, got %d", len(gen.prompts))
	}
	for _, want := range []string{"Views: 150000", "Caption:\ncaption hit", "energy_level (string, required"} {
		if !strings.Contains(gen.prompts[0], want) {
			t.Fatalf("prompt missing %q:\n%s", want, gen.prompts[0])
		}
	}

	got, err := h.st.GetCandidate(ctx, cand.ID)
	if err != nil || got.Status != store.CandidateAnalyzed {
		t.Fatalf("expected analyzed candidate, got %+v (%v)", got, err)
	}
	if _, err := h.st.ClaimNextTask(ctx, store.TaskStrategize); err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}

	status := h.spent(t)
	if status.Breakdown[budget.ServiceGemini] != budget.FromDollars(0.002) || status.Spent != budget.FromDollars(0.002) {
		t.Fatalf("unexpected spend %+v", status)
	}
	if status.Counters[budget.CounterVideosAnalyzed] != 1 {
		t.Fatalf("expected analyzed counter, got %+v", status.Counters)
	}
	if len(h.results) != 1 || !h.results[0].Valid {
		t.Fatalf("expected one valid observed result, got %+v", h.results)
	}
}

func TestAnalystReusesStoredAnalysis(t *testing.T) {
	h := newHarness(t, 20)
	ctx := context.Background()
	queuedCandidate(t, h)
	gen := &scriptedGenerator{outputs: []string{fixture(t, "analysis_valid.json")}}
	analyst := pipeline.NewAnalyst(h.deps, gen, budget.ServiceGemini, nil)
	task := h.claim(t, store.TaskAnalyze)
	if err := analyst.Execute(ctx, task); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// A reclaimed task runs again without paying twice.
	if err := analyst.Execute(ctx, task); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected the stored analysis to be reused, got %d calls", len(gen.prompts))
	}
	if status := h.spent(t); status.Operations != 1 {
		t.Fatalf("expected one ledger operation, got %d", status.Operations)
	}
}

func TestAnalystQuarantinesAfterRetry(t *testing.T) {
	h := newHarness(t, 20)
	ctx := context.Background()
	cand := queuedCandidate(t, h)
	gen := &scriptedGenerator{outputs: []string{"I cannot watch videos.", `{"summary": "still incomplete"}`}}

	err := pipeline.NewAnalyst(h.deps, gen, budget.ServiceGemini, nil).Execute(ctx, h.claim(t, store.TaskAnalyze))
	if !errors.Is(err, services.ErrValidation) || services.FailureStatus(err) != services.TaskStatusReview {
		t.Fatalf("expected validation error for review, got %v", err)
	}
	if len(gen.prompts) != 2 || !strings.Contains(gen.prompts[1], "failed validation") {
		t.Fatalf("expected corrective retry, got %d prompts", len(gen.prompts))
	}
	got, _ := h.st.GetCandidate(ctx, cand.ID)
	if got.Status != store.CandidateQuarantined {
		t.Fatalf("expected quarantined candidate, got %s", got.Status)
	}
	records, err := h.st.ListResults(ctx, store.SubjectCandidate, cand.ID, structured.SchemaAnalysis)
	if err != nil || len(records) != 2 || !records[1].Result.Terminal {
		t.Fatalf("expected both attempts persisted, got %d (%v)", len(records), err)
	}
	if status := h.spent(t); status.Spent != 2*budget.FromDollars(0.002) {
		t.Fatalf("expected both calls charged, got %s", status.Spent)
	}
	if h.notifier.count(notifications.EventQuarantined) != 1 {
		t.Fatalf("expected quarantine notification, got %v", h.notifier.events)
	}
	if tasks, _ := h.st.ListTasks(ctx, store.TaskPending); len(tasks) != 0 {
		t.Fatalf("expected no follow-up task, got %+v", tasks)
	}
}

func TestAnalystDefersWhenBudgetIsShort(t *testing.T) {
	h := newHarness(t, 0.001)
	gen := &scriptedGenerator{outputs: []string{fixture(t, "analysis_valid.json")}}
	queuedCandidate(t, h)

	err := pipeline.NewAnalyst(h.deps, gen, budget.ServiceGemini, nil).Execute(context.Background(), h.claim(t, store.TaskAnalyze))
	if !errors.Is(err, services.ErrGate) || services.FailureStatus(err) != services.TaskStatusDeferred {
		t.Fatalf("expected gate error, got %v", err)
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("expected no model call, got %d", len(gen.prompts))
	}
	if status := h.spent(t); status.Spent != 0 || status.Operations != 0 {
		t.Fatalf("expected no spend, got %+v", status)
	}
}

func TestAnalystProviderFailureChargesNothing(t *testing.T) {
	h := newHarness(t, 20)
	queuedCandidate(t, h)
	gen := &scriptedGenerator{errs: []error{errors.New("503 service unavailable")}}

	err := pipeline.NewAnalyst(h.deps, gen, budget.ServiceGemini, nil).Execute(context.Background(), h.claim(t, store.TaskAnalyze))
	if services.KindOf(err) != services.KindProvider {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if status := h.spent(t); status.Spent != 0 {
		t.Fatalf("expected no spend for a failed call, got %s", status.Spent)
	}
}

func analyzed(t *testing.T, h *harness) *store.Candidate {
	t.Helper()
	cand := queuedCandidate(t, h)
	gen := &scriptedGenerator{outputs: []string{fixture(t, "analysis_valid.json")}}
	if err := pipeline.NewAnalyst(h.deps, gen, budget.ServiceGemini, nil).Execute(context.Background(), h.claim(t, store.TaskAnalyze)); err != nil {
		t.Fatalf("analyst: %v", err)
	}
	return cand
}

func TestStrategistStoresPendingStrategy(t *testing.T) {
	h := newHarness(t, 20)
	ctx := context.Background()
	cand := analyzed(t, h)
	gen := &scriptedGenerator{outputs: []string{fixture(t, "strategy_valid.json")}}

	if err := pipeline.NewStrategist(h.deps, gen, budget.ServiceOpenAI, false, nil).Execute(ctx, h.claim(t, store.TaskStrategize)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(gen.prompts[0], "Dica de cozinha") || !strings.Contains(gen.prompts[0], "veo_prompts (array of object, required)") {
		t.Fatalf("expected analysis and outline in prompt:\n%s", gen.prompts[0])
	}

	strategies, err := h.st.ListStrategies(ctx, store.StrategyPendingApproval)
	if err != nil || len(strategies) != 1 {
		t.Fatalf("expected one pending strategy, got %d (%v)", len(strategies), err)
	}
	if strategies[0].Title != "Three pasta mistakes" || strategies[0].CandidateID != cand.ID || strategies[0].ResultID == 0 {
		t.Fatalf("unexpected strategy %+v", strategies[0])
	}
	if h.notifier.count(notifications.EventStrategyReady) != 1 {
		t.Fatalf("expected strategy ready notification, got %v", h.notifier.events)
	}
	status := h.spent(t)
	if status.Breakdown[budget.ServiceOpenAI] != budget.FromDollars(0.01) || status.Counters[budget.CounterStrategiesGenerated] != 1 {
		t.Fatalf("unexpected ledger state %+v", status)
	}
	if tasks, _ := h.st.ListTasks(ctx, store.TaskPending); len(tasks) != 0 {
		t.Fatalf("expected production to wait for approval, got %+v", tasks)
	}
}

func TestStrategistAutoApprovalQueuesProduction(t *testing.T) {
	h := newHarness(t, 20)
	ctx := context.Background()
	analyzed(t, h)
	gen := &scriptedGenerator{outputs: []string{fixture(t, "strategy_valid.json")}}

	if err := pipeline.NewStrategist(h.deps, gen, budget.ServiceOpenAI, true, nil).Execute(ctx, h.claim(t, store.TaskStrategize)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	strategies, _ := h.st.ListStrategies(ctx, store.StrategyApproved)
	if len(strategies) != 1 {
		t.Fatalf("expected approved strategy, got %d", len(strategies))
	}
	task := h.claim(t, store.TaskProduce)
	if task.SubjectID != strategies[0].ID {
		t.Fatalf("produce task subject = %d, want %d", task.SubjectID, strategies[0].ID)
	}
}

func TestStrategistQuarantinesUnproduciblePlan(t *testing.T) {
	h := newHarness(t, 20)
	analyzed(t, h)
	plan := strings.Replace(fixture(t, "strategy_valid.json"), `"visual_description": "Hand salting water"`, `"visual_description": "  "`, 1)
	gen := &scriptedGenerator{outputs: []string{plan}}

	err := pipeline.NewStrategist(h.deps, gen, budget.ServiceOpenAI, true, nil).Execute(context.Background(), h.claim(t, store.TaskStrategize))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.notifier.count(notifications.EventQuarantined) != 1 {
		t.Fatalf("expected quarantine notification, got %v", h.notifier.events)
	}
}

func TestStrategistNeedsAnalysis(t *testing.T) {
	h := newHarness(t, 20)
	cand := testsupport.NewCandidate(t, h.st, "raw", 150000, 9000, 2000)
	task := &store.Task{ID: 1, Kind: store.TaskStrategize, SubjectID: cand.ID}
	gen := &scriptedGenerator{}

	err := pipeline.NewStrategist(h.deps, gen, budget.ServiceOpenAI, false, nil).Execute(context.Background(), task)
	if services.FailureStatus(err) != services.TaskStatusReview {
		t.Fatalf("expected review status, got %v", err)
	}
	if len(gen.prompts) != 0 {
		t.Fatal("expected no model call without an analysis")
	}
}

type fakeOrchestrator struct {
	job     *production.Job
	summary production.Summary
	err     error
	got     production.Request
}

func (f *fakeOrchestrator) Produce(_ context.Context, req production.Request) (*production.Job, production.Summary, error) {
	f.got = req
	return f.job, f.summary, f.err
}

func approvedStrategy(t *testing.T, h *harness) *store.Strategy {
	t.Helper()
	ctx := context.Background()
	cand := testsupport.NewCandidate(t, h.st, "planned", 150000, 9000, 2000)
	strategy, err := h.st.CreateStrategy(ctx, cand.ID, 0, "Three pasta mistakes", []byte(fixture(t, "strategy_valid.json")))
	if err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	if _, err := h.st.ApproveStrategy(ctx, strategy.ID); err != nil {
		t.Fatalf("ApproveStrategy: %v", err)
	}
	return strategy
}

func TestProducerMarksStrategyProduced(t *testing.T) {
	h := newHarness(t, 20)
	ctx := context.Background()
	strategy := approvedStrategy(t, h)
	orch := &fakeOrchestrator{
		job:     &production.Job{ID: "job-1", Status: production.StatusCompleted, FinalRef: "file:///final.mp4"},
		summary: production.Summary{Stage: production.StatusCompleted, Cost: budget.FromDollars(0.5)},
	}

	if err := pipeline.NewProducer(h.deps, orch, nil).Execute(ctx, h.claim(t, store.TaskProduce)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if orch.got.StrategyID != strategy.ID || len(orch.got.Prompts) != 2 {
		t.Fatalf("unexpected request %+v", orch.got)
	}
	if !strings.HasPrefix(orch.got.Script, "You are ruining your pasta.\n\n") || !strings.HasSuffix(orch.got.Script, "Follow for more fixes.") {
		t.Fatalf("unexpected script %q", orch.got.Script)
	}
	if orch.got.Prompts[1].Seconds != 6 || orch.got.Prompts[1].Text != "Hand salting water. Camera: static. Mood: calm" {
		t.Fatalf("unexpected prompt %+v", orch.got.Prompts[1])
	}

	got, _ := h.st.GetStrategy(ctx, strategy.ID)
	if got.Status != store.StrategyProduced || got.JobID != "job-1" {
		t.Fatalf("unexpected strategy %+v", got)
	}
	if h.notifier.count(notifications.EventProductionCompleted) != 1 {
		t.Fatalf("expected completion notification, got %v", h.notifier.events)
	}
	if status := h.spent(t); status.Counters[budget.CounterVideosProduced] != 1 {
		t.Fatalf("expected produced counter, got %+v", status.Counters)
	}
}

func TestProducerOutcomes(t *testing.T) {
	tests := []struct {
		name         string
		summary      production.Summary
		wantStatus   services.TaskStatus
		wantNotified int
	}{
		{
			name:       "budget gate defers",
			summary:    production.Summary{Stage: production.StatusBudgetBlocked, Kind: services.KindGate, Reason: production.ReasonBudget},
			wantStatus: services.TaskStatusDeferred,
		},
		{
			name:         "all segments failed",
			summary:      production.Summary{Stage: production.StatusRenderingSegments, Kind: services.KindFatal, Reason: "all segments failed"},
			wantStatus:   services.TaskStatusFailed,
			wantNotified: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 20)
			strategy := approvedStrategy(t, h)
			orch := &fakeOrchestrator{
				job:     &production.Job{ID: "job-x", Status: production.StatusFailed, Kind: tc.summary.Kind},
				summary: tc.summary,
			}
			err := pipeline.NewProducer(h.deps, orch, nil).Execute(context.Background(), h.claim(t, store.TaskProduce))
			if err == nil || services.FailureStatus(err) != tc.wantStatus {
				t.Fatalf("expected %s, got %v", tc.wantStatus, err)
			}
			if n := h.notifier.count(notifications.EventProductionFailed); n != tc.wantNotified {
				t.Fatalf("failure notifications = %d, want %d", n, tc.wantNotified)
			}
			got, _ := h.st.GetStrategy(context.Background(), strategy.ID)
			if got.Status != store.StrategyApproved || got.JobID != "job-x" {
				t.Fatalf("unexpected strategy %+v", got)
			}
		})
	}
}

func TestProducerRequiresApproval(t *testing.T) {
	h := newHarness(t, 20)
	cand := testsupport.NewCandidate(t, h.st, "pending", 150000, 9000, 2000)
	strategy, err := h.st.CreateStrategy(context.Background(), cand.ID, 0, "Draft", []byte(fixture(t, "strategy_valid.json")))
	if err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	orch := &fakeOrchestrator{}
	err = pipeline.NewProducer(h.deps, orch, nil).Execute(context.Background(), &store.Task{Kind: store.TaskProduce, SubjectID: strategy.ID})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if orch.got.StrategyID != 0 {
		t.Fatal("orchestrator must not run for an unapproved strategy")
	}
}

func TestAlertingLedgerPublishesOncePerDay(t *testing.T) {
	h := newHarness(t, 0.01)
	ctx := context.Background()
	alerts := pipeline.NewAlertingLedger(h.ledger, 0.8, h.notifier, nil)

	for _, amount := range []float64{0.005, 0.0035, 0.0005, 0.002, 0.001} {
		if _, err := alerts.Record(ctx, budget.FromDollars(amount), budget.ServiceVeo); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if n := h.notifier.count(notifications.EventBudgetWarning); n != 1 {
		t.Fatalf("warnings = %d, want 1", n)
	}
	if n := h.notifier.count(notifications.EventBudgetExceeded); n != 1 {
		t.Fatalf("exceeded alerts = %d, want 1", n)
	}
	if h.notifier.events[0] != notifications.EventBudgetWarning {
		t.Fatalf("expected warning before exceeded, got %v", h.notifier.events)
	}
}

func TestPlanCheck(t *testing.T) {
	plan, err := pipeline.DecodePlan([]byte(`{"title": " ", "veo_prompts": []}`))
	if err != nil {
		t.Fatalf("DecodePlan: %v", err)
	}
	err = plan.Check()
	if err == nil {
		t.Fatal("expected plan errors")
	}
	for _, want := range []string{"title is empty", "script is empty", "no scene prompts"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
	if _, err := pipeline.DecodePlan([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
