// Package metrics exposes pipeline activity as Prometheus metrics.
//
// Metrics live in a private registry so that tests and multiple daemons in
// one process never collide on the global default registry. The daemon
// serves Handler at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"viralforge/internal/budget"
	"viralforge/internal/production"
	"viralforge/internal/structured"
)

const namespace = "viralforge"

// Metrics holds all Prometheus metrics for viralforge.
type Metrics struct {
	registry *prometheus.Registry

	// Budget
	Spend *prometheus.CounterVec

	// Production
	Jobs           *prometheus.CounterVec
	JobCost        prometheus.Histogram
	Segments       *prometheus.CounterVec
	SegmentSeconds *prometheus.HistogramVec

	// Structured output
	Results *prometheus.CounterVec
}

// New creates and registers the metric set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Spend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spend_usd_total",
			Help:      "Recorded spend in dollars by service",
		}, []string{"service"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "production_jobs_total",
			Help:      "Finished production jobs by final status and failure kind",
		}, []string{"status", "kind"}),
		JobCost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "production_job_cost_usd",
			Help:      "Total cost of finished production jobs",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		Segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_segments_total",
			Help:      "Render segment attempts by outcome",
		}, []string{"status"}),
		SegmentSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_segment_duration_seconds",
			Help:      "Wall time spent rendering one segment",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 8),
		}, []string{"status"}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "structured_results_total",
			Help:      "Persisted model outputs by schema and outcome",
		}, []string{"schema", "outcome"}),
	}
	m.registry.MustRegister(m.Spend, m.Jobs, m.JobCost, m.Segments, m.SegmentSeconds, m.Results)
	return m
}

// Register adds extra collectors, such as a StoreCollector.
func (m *Metrics) Register(collectors ...prometheus.Collector) error {
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSpend matches budget.WithObserver.
func (m *Metrics) ObserveSpend(service string, amount budget.USD) {
	m.Spend.WithLabelValues(service).Add(amount.Dollars())
}

// SegmentFinished implements production.Observer.
func (m *Metrics) SegmentFinished(status string, elapsed time.Duration) {
	m.Segments.WithLabelValues(status).Inc()
	m.SegmentSeconds.WithLabelValues(status).Observe(elapsed.Seconds())
}

// JobFinished implements production.Observer.
func (m *Metrics) JobFinished(job *production.Job) {
	if job == nil {
		return
	}
	kind := string(job.Kind)
	if kind == "" {
		kind = "none"
	}
	m.Jobs.WithLabelValues(string(job.Status), kind).Inc()
	m.JobCost.Observe(job.TotalCost.Dollars())
}

// ObserveResult matches structured.WithObserver.
func (m *Metrics) ObserveResult(r structured.Result) {
	outcome := "valid"
	switch {
	case r.Valid:
	case r.Terminal:
		outcome = "quarantined"
	default:
		outcome = "retried"
	}
	m.Results.WithLabelValues(r.Schema, outcome).Inc()
}

var _ production.Observer = (*Metrics)(nil)
