package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"viralforge/internal/budget"
	"viralforge/internal/logging"
	"viralforge/internal/notifications"
	"viralforge/internal/services"
	"viralforge/internal/stage"
	"viralforge/internal/store"
	"viralforge/internal/structured"
)

// Analyst runs the structured analysis of a queued candidate and hands
// valid results on to the strategist.
type Analyst struct {
	deps    Deps
	gen     structured.Generator
	service string
	schema  *structured.Schema
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalyst builds the analyze stage. service is the ledger category each
// model call is charged to (gemini or claude).
func NewAnalyst(deps Deps, gen structured.Generator, service string, logger *slog.Logger) *Analyst {
	a := &Analyst{
		deps:    deps,
		gen:     gen,
		service: strings.TrimSpace(service),
		schema:  structured.MustLoad(structured.SchemaAnalysis),
		now:     time.Now,
	}
	a.SetLogger(logger)
	return a
}

// SetLogger updates the analyst's logging destination.
func (a *Analyst) SetLogger(logger *slog.Logger) {
	a.logger = logging.NewComponentLogger(logger, "analyst")
}

// Execute analyses the task's candidate.
func (a *Analyst) Execute(ctx context.Context, task *store.Task) error {
	logger := logging.WithContext(ctx, a.logger)
	cand, err := a.deps.Store.GetCandidate(ctx, task.SubjectID)
	if err != nil {
		return fmt.Errorf("load candidate %d: %w", task.SubjectID, err)
	}
	if cand == nil {
		return services.Wrap(services.ErrNotFound, "analyst", "load candidate",
			fmt.Sprintf("candidate %d does not exist", task.SubjectID), nil)
	}

	// A reclaimed task may already have a stored analysis; reuse it.
	existing, err := a.deps.Store.LatestValidResult(ctx, store.SubjectCandidate, cand.ID, a.schema.Name)
	if err != nil {
		return fmt.Errorf("load previous analysis: %w", err)
	}
	if existing != nil {
		logger.Info("analysis already stored",
			logging.Args(append(logging.DecisionAttrs("analysis", "reused", "valid result on record"),
				logging.Int64("candidate_id", cand.ID),
				logging.Int64("result_id", existing.ID),
			)...)...)
		return a.advance(ctx, cand.ID)
	}

	price, err := a.deps.Ledger.Price(a.service, 1)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "analyst", "price", "unknown analysis service", err)
	}
	ok, reason, err := a.deps.Ledger.CanSpend(ctx, price, a.service)
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	if !ok {
		logger.Info("analysis deferred",
			logging.Args(append(logging.DecisionAttrs("budget_gate", "deferred", reason),
				logging.Int64("candidate_id", cand.ID),
				logging.String("service", a.service),
				logging.String("amount", price.String()),
			)...)...)
		return services.Wrap(services.ErrGate, "analyst", "budget", reason, nil)
	}

	metered := &meteredGenerator{inner: a.gen}
	runner := structured.NewRunner(a.deps.Store.ResultSink(store.SubjectCandidate, cand.ID), a.logger,
		structured.WithObserver(a.deps.ResultObserver))
	res, runErr := runner.Run(ctx, metered, analysisPrompt(cand, a.schema, a.now()), a.schema)

	if metered.calls > 0 {
		if _, err := a.deps.Ledger.Record(context.WithoutCancel(ctx), price*budget.USD(metered.calls), a.service); err != nil {
			return fmt.Errorf("record analysis spend: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	if !res.Valid {
		if err := a.deps.Store.SetCandidateStatus(ctx, cand.ID, store.CandidateQuarantined); err != nil {
			return fmt.Errorf("quarantine candidate: %w", err)
		}
		publish(ctx, logger, a.deps.Notifier, notifications.EventQuarantined, notifications.Payload{
			"schema":     a.schema.Name,
			"subject":    store.SubjectCandidate,
			"subject_id": cand.ID,
			"errors":     strings.Join(res.Errors, "; "),
		})
		return services.Wrap(services.ErrValidation, "analyst", "validate", "analysis output quarantined", nil)
	}

	if err := a.deps.Ledger.Count(ctx, budget.CounterVideosAnalyzed, 1); err != nil {
		logging.WarnWithContext(logger, "daily counter not updated", "counter_update_failed",
			logging.String("counter", budget.CounterVideosAnalyzed),
			logging.Error(err),
			logging.String(logging.FieldImpact, "daily report undercounts analyses"),
		)
	}
	logger.Info("candidate analyzed",
		logging.Int64("candidate_id", cand.ID),
		logging.Int("attempts", res.Attempt),
		logging.String(logging.FieldEventType, "candidate_analyzed"),
	)
	return a.advance(ctx, cand.ID)
}

func (a *Analyst) advance(ctx context.Context, candidateID int64) error {
	if err := a.deps.Store.SetCandidateStatus(ctx, candidateID, store.CandidateAnalyzed); err != nil {
		return fmt.Errorf("mark candidate analyzed: %w", err)
	}
	if _, err := a.deps.Store.EnqueueTask(ctx, store.TaskStrategize, candidateID); err != nil {
		return fmt.Errorf("queue strategy: %w", err)
	}
	return nil
}

// HealthCheck reports whether the analyst can run.
func (a *Analyst) HealthCheck(context.Context) stage.Health {
	const name = "analyst"
	switch {
	case a.gen == nil:
		return stage.Unhealthy(name, "model client not configured")
	case a.deps.Store == nil || a.deps.Ledger == nil:
		return stage.Unhealthy(name, "store or ledger missing")
	case a.service == "":
		return stage.Unhealthy(name, "analysis service not configured")
	}
	return stage.Healthy(name)
}
