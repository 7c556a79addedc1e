// Package score implements the deterministic statistical pre-filter that
// decides whether a candidate video merits paid analysis.
package score

import (
	"math"
	"time"
)

// Default baselines apply when a candidate has no profile or a profile
// baseline is not positive.
const (
	DefaultBaselineViews    = 50000
	DefaultBaselineLikes    = 5000
	DefaultBaselineComments = 500

	DefaultThreshold = 0.6

	// UnknownRecency is the recency component for candidates without a timestamp.
	UnknownRecency = 0.5

	recencyWindowDays = 7.0
)

// Counters are the raw engagement statistics of a candidate.
type Counters struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
}

// Baselines are a profile's typical counters, used for normalisation.
type Baselines struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
}

// DefaultBaselines returns the fallback profile baselines.
func DefaultBaselines() Baselines {
	return Baselines{Views: DefaultBaselineViews, Likes: DefaultBaselineLikes, Comments: DefaultBaselineComments}
}

// Weights combine the three normalised components. They must be non-negative
// and sum to 1.
type Weights struct {
	Views      float64 `json:"views"`
	Engagement float64 `json:"engagement"`
	Recency    float64 `json:"recency"`
}

// DefaultWeights returns 0.4 / 0.4 / 0.2.
func DefaultWeights() Weights {
	return Weights{Views: 0.4, Engagement: 0.4, Recency: 0.2}
}

// Result holds the derived fields stored alongside a candidate.
type Result struct {
	NormalizedViews      float64 `json:"normalized_views"`
	NormalizedEngagement float64 `json:"normalized_engagement"`
	Recency              float64 `json:"recency"`
	Score                float64 `json:"score"`
	Passes               bool    `json:"passes"`
}

// Engine evaluates candidates. The zero value is not usable; construct with New.
type Engine struct {
	weights   Weights
	threshold float64
	defaults  Baselines
	now       func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithWeights overrides the component weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithThreshold overrides the pass threshold.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) { e.threshold = threshold }
}

// WithDefaultBaselines overrides the baselines used when a profile is missing.
func WithDefaultBaselines(b Baselines) Option {
	return func(e *Engine) {
		e.defaults = fillBaselines(b, DefaultBaselines())
	}
}

// WithClock injects the time source used for recency.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs an Engine with the default weights and threshold.
func New(opts ...Option) *Engine {
	e := &Engine{
		weights:   DefaultWeights(),
		threshold: DefaultThreshold,
		defaults:  DefaultBaselines(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured pass threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Evaluate scores the counters against the profile baselines. A nil profile
// uses the default baselines. It never panics and never returns NaN.
func (e *Engine) Evaluate(c Counters, postedAt *time.Time, profile *Baselines) Result {
	base := e.defaults
	if profile != nil {
		base = fillBaselines(*profile, e.defaults)
	}

	views := float64(max(c.Views, 0))
	interactions := float64(max(c.Likes, 0) + max(c.Comments, 0))

	nv := math.Min(views/(2*float64(base.Views)), 1)
	ne := math.Min(interactions/(2*float64(base.Likes+base.Comments)), 1)
	rec := e.recency(postedAt)

	score := e.weights.Views*nv + e.weights.Engagement*ne + e.weights.Recency*rec
	return Result{
		NormalizedViews:      nv,
		NormalizedEngagement: ne,
		Recency:              rec,
		Score:                score,
		Passes:               score >= e.threshold,
	}
}

// Recency returns max(1 - days/7, 0) for fractional days since postedAt,
// clamped to 1 for future timestamps, or 0.5 when postedAt is nil.
func (e *Engine) recency(postedAt *time.Time) float64 {
	if postedAt == nil || postedAt.IsZero() {
		return UnknownRecency
	}
	days := e.now().Sub(*postedAt).Hours() / 24
	return math.Min(math.Max(1-days/recencyWindowDays, 0), 1)
}

func fillBaselines(b, fallback Baselines) Baselines {
	if b.Views <= 0 {
		b.Views = fallback.Views
	}
	if b.Likes <= 0 {
		b.Likes = fallback.Likes
	}
	if b.Comments <= 0 {
		b.Comments = fallback.Comments
	}
	return b
}
