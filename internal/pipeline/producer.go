package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"viralforge/internal/budget"
	"viralforge/internal/logging"
	"viralforge/internal/notifications"
	"viralforge/internal/production"
	"viralforge/internal/services"
	"viralforge/internal/stage"
	"viralforge/internal/store"
)

// Orchestrator runs one production. *production.Orchestrator satisfies it.
type Orchestrator interface {
	Produce(ctx context.Context, req production.Request) (*production.Job, production.Summary, error)
}

// Producer renders approved strategies into final videos.
type Producer struct {
	deps   Deps
	orch   Orchestrator
	logger *slog.Logger
}

// NewProducer builds the produce stage.
func NewProducer(deps Deps, orch Orchestrator, logger *slog.Logger) *Producer {
	p := &Producer{deps: deps, orch: orch}
	p.SetLogger(logger)
	return p
}

// SetLogger updates the producer's logging destination.
func (p *Producer) SetLogger(logger *slog.Logger) {
	p.logger = logging.NewComponentLogger(logger, "producer")
}

// ReportsFailures tells the workflow manager that production failures are
// already notified.
func (p *Producer) ReportsFailures() bool { return true }

// Execute produces the task's strategy.
func (p *Producer) Execute(ctx context.Context, task *store.Task) error {
	logger := logging.WithContext(ctx, p.logger)
	strategy, err := p.deps.Store.GetStrategy(ctx, task.SubjectID)
	if err != nil {
		return fmt.Errorf("load strategy %d: %w", task.SubjectID, err)
	}
	if strategy == nil {
		return services.Wrap(services.ErrNotFound, "producer", "load strategy",
			fmt.Sprintf("strategy %d does not exist", task.SubjectID), nil)
	}
	switch strategy.Status {
	case store.StrategyProduced:
		logger.Info("strategy already produced",
			logging.Args(append(logging.DecisionAttrs("production", "skipped", "strategy already produced"),
				logging.Int64("strategy_id", strategy.ID),
				logging.String(logging.FieldJobID, strategy.JobID),
			)...)...)
		return nil
	case store.StrategyApproved:
	default:
		return services.Wrap(services.ErrValidation, "producer", "load strategy",
			fmt.Sprintf("strategy %d is %s, not approved", strategy.ID, strategy.Status), nil)
	}

	plan, err := DecodePlan(strategy.Payload)
	if err != nil {
		return services.Wrap(services.ErrValidation, "producer", "decode strategy", "stored payload is unreadable", err)
	}
	if err := plan.Check(); err != nil {
		return services.Wrap(services.ErrValidation, "producer", "check strategy", "strategy cannot be produced", err)
	}

	job, summary, err := p.orch.Produce(ctx, production.Request{
		StrategyID: strategy.ID,
		Script:     plan.Script(),
		Prompts:    plan.Prompts(),
	})
	if err != nil {
		return err
	}
	if job != nil {
		if err := p.deps.Store.SetStrategyJob(ctx, strategy.ID, job.ID); err != nil {
			logging.WarnWithContext(logger, "strategy job link not saved", "strategy_job_link_failed",
				logging.Int64("strategy_id", strategy.ID),
				logging.Error(err),
			)
		}
	}

	if job != nil && job.Status == production.StatusCompleted {
		if err := p.deps.Store.MarkStrategyProduced(ctx, strategy.ID, job.ID); err != nil {
			return fmt.Errorf("mark strategy produced: %w", err)
		}
		if err := p.deps.Ledger.Count(ctx, budget.CounterVideosProduced, 1); err != nil {
			logging.WarnWithContext(logger, "daily counter not updated", "counter_update_failed",
				logging.String("counter", budget.CounterVideosProduced),
				logging.Error(err),
				logging.String(logging.FieldImpact, "daily report undercounts productions"),
			)
		}
		publish(ctx, logger, p.deps.Notifier, notifications.EventProductionCompleted, notifications.Payload{
			"title":           plan.Title,
			"cost":            summary.Cost,
			"segments_failed": summary.SegmentsFailed,
			"final_ref":       job.FinalRef,
		})
		return nil
	}

	if summary.Kind == services.KindGate {
		return services.Wrap(services.ErrGate, "producer", "budget", summary.Reason, nil)
	}
	publish(context.WithoutCancel(ctx), logger, p.deps.Notifier, notifications.EventProductionFailed, notifications.Payload{
		"title":  plan.Title,
		"reason": summary.Reason,
	})
	marker := services.ErrFatal
	if summary.Kind == services.KindProvider {
		marker = services.ErrProvider
	}
	return services.Wrap(marker, "producer", "produce", summary.Reason, nil)
}

// HealthCheck reports whether the producer can run.
func (p *Producer) HealthCheck(context.Context) stage.Health {
	const name = "producer"
	if p.orch == nil {
		return stage.Unhealthy(name, "production orchestrator not configured")
	}
	if p.deps.Store == nil || p.deps.Ledger == nil {
		return stage.Unhealthy(name, "store or ledger missing")
	}
	return stage.Healthy(name)
}
