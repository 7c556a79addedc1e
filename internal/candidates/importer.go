package candidates

import (
	"context"
	"fmt"
	"log/slog"

	"viralforge/internal/budget"
	"viralforge/internal/logging"
	"viralforge/internal/store"
)

// Store is the slice of store.Store the importer writes through.
type Store interface {
	UpsertCandidate(ctx context.Context, in store.CandidateInput) (*store.Candidate, error)
	SetCandidateStatus(ctx context.Context, id int64, status store.CandidateStatus) error
	EnqueueTask(ctx context.Context, kind store.TaskKind, subjectID int64) (int64, error)
}

// Charger records scraping spend.
type Charger interface {
	Price(service string, units int) (budget.USD, error)
	Record(ctx context.Context, amount budget.USD, service string) (budget.Period, error)
}

// Options tune one import.
type Options struct {
	ProfileID int64
	// ChargeService, when set, records the price of every fetched item under
	// that ledger service (budget.ServiceApify for paid scraper datasets).
	ChargeService string
}

// Report summarises an import.
type Report struct {
	Fetched  int        `json:"fetched"`
	Stored   int        `json:"stored"`
	Passed   int        `json:"passed"`
	Queued   int        `json:"queued"`
	GatedOut int        `json:"gated_out"`
	Failed   int        `json:"failed"`
	Cost     budget.USD `json:"cost"`
}

// Importer stores source items as candidates and queues the ones that pass
// the score gate for analysis.
type Importer struct {
	store   Store
	charger Charger
	logger  *slog.Logger
}

// NewImporter builds an importer. charger may be nil when no import is billed.
func NewImporter(st Store, charger Charger, logger *slog.Logger) *Importer {
	return &Importer{
		store:   st,
		charger: charger,
		logger:  logging.NewComponentLogger(logger, "candidates"),
	}
}

// Import fetches src and upserts every item. A passing candidate that has
// not entered the pipeline yet gets an analyze task. Per-item store errors
// are counted and logged; fetch and ledger errors abort the import.
func (im *Importer) Import(ctx context.Context, src Source, opts Options) (Report, error) {
	logger := im.logger.With(logging.String("source", src.Name()))
	items, err := src.Fetch(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetch %s: %w", src.Name(), err)
	}
	report := Report{Fetched: len(items)}

	if opts.ChargeService != "" && len(items) > 0 {
		if im.charger == nil {
			return report, fmt.Errorf("import %s: charge service %q set without a ledger", src.Name(), opts.ChargeService)
		}
		cost, err := im.charger.Price(opts.ChargeService, len(items))
		if err != nil {
			return report, fmt.Errorf("price import: %w", err)
		}
		if _, err := im.charger.Record(ctx, cost, opts.ChargeService); err != nil {
			return report, err
		}
		report.Cost = cost
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c, err := im.store.UpsertCandidate(ctx, store.CandidateInput{
			ProfileID:  opts.ProfileID,
			Platform:   item.Platform,
			ExternalID: item.ExternalID,
			URL:        item.URL,
			Caption:    item.Caption,
			Author:     item.Author,
			Views:      item.Views,
			Likes:      item.Likes,
			Comments:   item.Comments,
			PostedAt:   item.PostedAt,
		})
		if err != nil {
			report.Failed++
			logging.WarnWithContext(logger, "candidate upsert failed", "candidate_upsert_failed",
				logging.String("external_id", item.ExternalID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "item skipped"),
				logging.String(logging.FieldErrorHint, "check the database with `viralforge tasks list`"),
			)
			continue
		}
		report.Stored++
		if !c.Passes {
			report.GatedOut++
			logger.Debug("candidate gated out",
				logging.Args(append(logging.DecisionAttrs("score_gate", "gated_out", "below threshold"),
					logging.Int64("candidate_id", c.ID),
					logging.Float64("score", c.Score),
				)...)...)
			continue
		}
		report.Passed++
		if c.Status != store.CandidateNew {
			continue
		}
		if _, err := im.store.EnqueueTask(ctx, store.TaskAnalyze, c.ID); err != nil {
			return report, fmt.Errorf("queue candidate %d: %w", c.ID, err)
		}
		if err := im.store.SetCandidateStatus(ctx, c.ID, store.CandidateQueued); err != nil {
			return report, fmt.Errorf("queue candidate %d: %w", c.ID, err)
		}
		report.Queued++
		logger.Info("candidate queued for analysis",
			logging.Args(append(logging.DecisionAttrs("score_gate", "queued", "score at or above threshold"),
				logging.Int64("candidate_id", c.ID),
				logging.Float64("score", c.Score),
				logging.String(logging.FieldEventType, "candidate_queued"),
			)...)...)
	}

	logger.Info("import finished",
		logging.Int("fetched", report.Fetched),
		logging.Int("stored", report.Stored),
		logging.Int("queued", report.Queued),
		logging.Int("gated_out", report.GatedOut),
		logging.Int("failed", report.Failed),
		logging.String("cost", report.Cost.String()),
		logging.String(logging.FieldEventType, "candidates_imported"),
	)
	return report, nil
}
