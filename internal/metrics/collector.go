package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"viralforge/internal/logging"
	"viralforge/internal/store"
)

// StatsSource is the slice of store.Store a StoreCollector reads.
type StatsSource interface {
	CandidateStats(ctx context.Context) (map[store.CandidateStatus]int, error)
	TaskStats(ctx context.Context) (map[store.TaskStatus]int, error)
}

// StoreCollector reports candidate and task counts read from the store at
// scrape time.
type StoreCollector struct {
	source     StatsSource
	logger     *slog.Logger
	timeout    time.Duration
	candidates *prometheus.Desc
	tasks      *prometheus.Desc
}

// NewStoreCollector builds a collector over source.
func NewStoreCollector(source StatsSource, logger *slog.Logger) *StoreCollector {
	return &StoreCollector{
		source:  source,
		logger:  logging.NewComponentLogger(logger, "metrics"),
		timeout: 5 * time.Second,
		candidates: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "candidates"),
			"Candidates by pipeline status",
			[]string{"status"}, nil,
		),
		tasks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "tasks"),
			"Queued stage tasks by status",
			[]string{"status"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.candidates
	ch <- c.tasks
}

// Collect implements prometheus.Collector. Store errors drop the affected
// series for this scrape.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if stats, err := c.source.CandidateStats(ctx); err != nil {
		c.logger.Warn("candidate stats unavailable for scrape", logging.Error(err))
	} else {
		for status, count := range stats {
			ch <- prometheus.MustNewConstMetric(c.candidates, prometheus.GaugeValue, float64(count), string(status))
		}
	}
	if stats, err := c.source.TaskStats(ctx); err != nil {
		c.logger.Warn("task stats unavailable for scrape", logging.Error(err))
	} else {
		for status, count := range stats {
			ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.GaugeValue, float64(count), string(status))
		}
	}
}
