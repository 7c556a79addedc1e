package production

import (
	"context"
	"time"

	"viralforge/internal/budget"
	"viralforge/internal/services"
)

// Status is a production job lifecycle step.
type Status string

const (
	StatusBudgetBlocked         Status = "budget_blocked"
	StatusQueued                Status = "queued"
	StatusSynthesizingNarration Status = "synthesizing_narration"
	StatusRenderingSegments     Status = "rendering_segments"
	StatusConcatenating         Status = "concatenating"
	StatusMixing                Status = "mixing"
	StatusCompleted             Status = "completed"
	StatusFailed                Status = "failed"
)

// Terminal reports whether s ends the job.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// A new job waits in budget_blocked until the pre-flight estimate clears.
var forward = map[Status]Status{
	StatusBudgetBlocked:         StatusQueued,
	StatusQueued:                StatusSynthesizingNarration,
	StatusSynthesizingNarration: StatusRenderingSegments,
	StatusRenderingSegments:     StatusConcatenating,
	StatusConcatenating:         StatusMixing,
	StatusMixing:                StatusCompleted,
}

// CanTransition reports whether a job may move from -> to. Any non-terminal
// step may fail.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return forward[from] == to
}

// Segment states.
const (
	SegmentPending  = "pending"
	SegmentRendered = "rendered"
	SegmentFailed   = "failed"
)

// Prompt is one scene to render with its declared length.
type Prompt struct {
	Scene   int     `json:"scene"`
	Text    string  `json:"text"`
	Seconds float64 `json:"seconds"`
}

// Request asks for one production run.
type Request struct {
	StrategyID int64    `json:"strategy_id"`
	Script     string   `json:"script"`
	Prompts    []Prompt `json:"prompts"`
	// MusicPath overrides the configured music bed; empty uses the default.
	MusicPath string `json:"music_path,omitempty"`
}

// Segment is the render outcome of one prompt.
type Segment struct {
	Index   int        `json:"index"`
	Scene   int        `json:"scene"`
	Prompt  string     `json:"prompt"`
	Seconds float64    `json:"seconds"`
	Status  string     `json:"status"`
	Ref     string     `json:"ref,omitempty"`
	Error   string     `json:"error,omitempty"`
	Cost    budget.USD `json:"cost"`
}

// Job is the persisted state of one production run. A completed job always
// has a FinalRef; TotalCost is NarrationCost plus the cost of rendered
// segments.
type Job struct {
	ID                string         `json:"id"`
	StrategyID        int64          `json:"strategy_id"`
	Status            Status         `json:"status"`
	Error             string         `json:"error,omitempty"`
	Kind              services.Kind  `json:"kind,omitempty"`
	Script            string         `json:"script"`
	Estimate          budget.USD     `json:"estimate"`
	NarrationProvider string         `json:"narration_provider,omitempty"`
	NarrationSeconds  float64        `json:"narration_seconds,omitempty"`
	NarrationRef      string         `json:"narration_ref,omitempty"`
	NarrationCost     budget.USD     `json:"narration_cost"`
	Prompts           []Prompt       `json:"prompts"`
	Segments          []Segment      `json:"segments,omitempty"`
	SegmentsFailed    int            `json:"segments_failed"`
	SegmentsCost      budget.USD     `json:"segments_cost"`
	TotalCost         budget.USD     `json:"total_cost"`
	AssembledRef      string         `json:"assembled_ref,omitempty"`
	FinalRef          string         `json:"final_ref,omitempty"`
	FinalSeconds      float64        `json:"final_seconds,omitempty"`
	Settled           bool           `json:"settled"`
	History           []StatusChange `json:"history,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// StatusChange records one lifecycle transition.
type StatusChange struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// RenderedSegments returns the successful segments in prompt order.
func (j *Job) RenderedSegments() []Segment {
	var out []Segment
	for _, seg := range j.Segments {
		if seg.Status == SegmentRendered {
			out = append(out, seg)
		}
	}
	return out
}

// Summary is the caller-facing result of Produce.
type Summary struct {
	Stage          Status        `json:"stage"`
	Kind           services.Kind `json:"kind,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Cost           budget.USD    `json:"cost"`
	SegmentsFailed int           `json:"segments_failed"`
}

// JobStore persists jobs on every transition.
type JobStore interface {
	SaveJob(ctx context.Context, job *Job) error
}
