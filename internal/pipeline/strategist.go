package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"viralforge/internal/budget"
	"viralforge/internal/logging"
	"viralforge/internal/notifications"
	"viralforge/internal/services"
	"viralforge/internal/stage"
	"viralforge/internal/store"
	"viralforge/internal/structured"
)

// Strategist turns an analyzed candidate into a strategy awaiting approval.
type Strategist struct {
	deps        Deps
	gen         structured.Generator
	service     string
	autoApprove bool
	schema      *structured.Schema
	logger      *slog.Logger
}

// NewStrategist builds the strategize stage. With autoApprove set, valid
// strategies go straight to production.
func NewStrategist(deps Deps, gen structured.Generator, service string, autoApprove bool, logger *slog.Logger) *Strategist {
	s := &Strategist{
		deps:        deps,
		gen:         gen,
		service:     strings.TrimSpace(service),
		autoApprove: autoApprove,
		schema:      structured.MustLoad(structured.SchemaStrategy),
	}
	s.SetLogger(logger)
	return s
}

// SetLogger updates the strategist's logging destination.
func (s *Strategist) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, "strategist")
}

// Execute generates a strategy for the task's candidate.
func (s *Strategist) Execute(ctx context.Context, task *store.Task) error {
	logger := logging.WithContext(ctx, s.logger)
	cand, err := s.deps.Store.GetCandidate(ctx, task.SubjectID)
	if err != nil {
		return fmt.Errorf("load candidate %d: %w", task.SubjectID, err)
	}
	if cand == nil {
		return services.Wrap(services.ErrNotFound, "strategist", "load candidate",
			fmt.Sprintf("candidate %d does not exist", task.SubjectID), nil)
	}
	if cand.Status == store.CandidateStrategized || cand.Status == store.CandidateProduced {
		logger.Info("strategy already generated",
			logging.Args(append(logging.DecisionAttrs("strategy", "skipped", "candidate already strategized"),
				logging.Int64("candidate_id", cand.ID),
			)...)...)
		return nil
	}
	analysis, err := s.deps.Store.LatestValidResult(ctx, store.SubjectCandidate, cand.ID, structured.SchemaAnalysis)
	if err != nil {
		return fmt.Errorf("load analysis: %w", err)
	}
	if analysis == nil {
		return services.Wrap(services.ErrNotFound, "strategist", "load analysis",
			fmt.Sprintf("candidate %d has no valid analysis", cand.ID), nil)
	}

	price, err := s.deps.Ledger.Price(s.service, 1)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "strategist", "price", "unknown strategy service", err)
	}
	ok, reason, err := s.deps.Ledger.CanSpend(ctx, price, s.service)
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	if !ok {
		logger.Info("strategy deferred",
			logging.Args(append(logging.DecisionAttrs("budget_gate", "deferred", reason),
				logging.Int64("candidate_id", cand.ID),
				logging.String("service", s.service),
			)...)...)
		return services.Wrap(services.ErrGate, "strategist", "budget", reason, nil)
	}

	metered := &meteredGenerator{inner: s.gen}
	runner := structured.NewRunner(s.deps.Store.ResultSink(store.SubjectCandidate, cand.ID), s.logger,
		structured.WithObserver(s.deps.ResultObserver))
	res, runErr := runner.Run(ctx, metered, strategyPrompt(cand, string(analysis.Result.Payload), s.schema), s.schema)
	if metered.calls > 0 {
		if _, err := s.deps.Ledger.Record(context.WithoutCancel(ctx), price*budget.USD(metered.calls), s.service); err != nil {
			return fmt.Errorf("record strategy spend: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	var plan Plan
	var problems []string
	if res.Valid {
		if err := res.Decode(&plan); err != nil {
			problems = []string{err.Error()}
		} else if err := plan.Check(); err != nil {
			problems = strings.Split(err.Error(), "\n")
		}
	} else {
		problems = res.Errors
	}
	if len(problems) > 0 {
		if err := s.deps.Store.SetCandidateStatus(ctx, cand.ID, store.CandidateQuarantined); err != nil {
			return fmt.Errorf("quarantine candidate: %w", err)
		}
		publish(ctx, logger, s.deps.Notifier, notifications.EventQuarantined, notifications.Payload{
			"schema":     s.schema.Name,
			"subject":    store.SubjectCandidate,
			"subject_id": cand.ID,
			"errors":     strings.Join(problems, "; "),
		})
		return services.Wrap(services.ErrValidation, "strategist", "validate", "strategy output quarantined", nil)
	}

	stored, err := s.deps.Store.LatestValidResult(ctx, store.SubjectCandidate, cand.ID, s.schema.Name)
	if err != nil {
		return fmt.Errorf("load stored strategy result: %w", err)
	}
	var resultID int64
	if stored != nil {
		resultID = stored.ID
	}
	strategy, err := s.deps.Store.CreateStrategy(ctx, cand.ID, resultID, strings.TrimSpace(plan.Title), res.Payload)
	if err != nil {
		return fmt.Errorf("store strategy: %w", err)
	}
	if err := s.deps.Ledger.Count(ctx, budget.CounterStrategiesGenerated, 1); err != nil {
		logging.WarnWithContext(logger, "daily counter not updated", "counter_update_failed",
			logging.String("counter", budget.CounterStrategiesGenerated),
			logging.Error(err),
			logging.String(logging.FieldImpact, "daily report undercounts strategies"),
		)
	}

	if s.autoApprove {
		taskID, err := s.deps.Store.ApproveStrategy(ctx, strategy.ID)
		if err != nil {
			return fmt.Errorf("approve strategy %d: %w", strategy.ID, err)
		}
		logger.Info("strategy approved",
			logging.Args(append(logging.DecisionAttrs("strategy_approval", "approved", "auto approval enabled"),
				logging.Int64("strategy_id", strategy.ID),
				logging.Int64("produce_task_id", taskID),
				logging.String(logging.FieldEventType, "strategy_approved"),
			)...)...)
		return nil
	}

	logger.Info("strategy awaiting approval",
		logging.Int64("strategy_id", strategy.ID),
		logging.String("title", strategy.Title),
		logging.String(logging.FieldEventType, "strategy_pending"),
	)
	publish(ctx, logger, s.deps.Notifier, notifications.EventStrategyReady, notifications.Payload{
		"title":       strategy.Title,
		"strategy_id": strategy.ID,
	})
	return nil
}

// HealthCheck reports whether the strategist can run.
func (s *Strategist) HealthCheck(context.Context) stage.Health {
	const name = "strategist"
	switch {
	case s.gen == nil:
		return stage.Unhealthy(name, "model client not configured")
	case s.deps.Store == nil || s.deps.Ledger == nil:
		return stage.Unhealthy(name, "store or ledger missing")
	case s.service == "":
		return stage.Unhealthy(name, "strategy service not configured")
	}
	return stage.Healthy(name)
}
