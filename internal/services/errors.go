package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// ErrGate marks an expected skip: score below threshold or budget refused before spend.
	ErrGate = errors.New("gate")
	// ErrProvider marks a failed call to an external provider (timeout, network, quota).
	ErrProvider = errors.New("provider failure")
	// ErrPartial marks work that completed with a reduced result set.
	ErrPartial = errors.New("partial failure")
	// ErrFatal marks a job that cannot continue; incurred cost stays on record.
	ErrFatal = errors.New("fatal failure")
)

// Kind classifies a failure for callers and persisted summaries.
type Kind string

const (
	KindNone       Kind = ""
	KindGate       Kind = "gate"
	KindProvider   Kind = "provider"
	KindValidation Kind = "validation"
	KindPartial    Kind = "partial"
	KindFatal      Kind = "fatal"
)

// Outcome is the typed result components hand back instead of raising.
type Outcome struct {
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the outcome carries no failure.
func (o Outcome) OK() bool {
	return o.Kind == KindNone
}

func (o Outcome) String() string {
	if o.Kind == KindNone {
		return "ok"
	}
	if o.Message == "" {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Message)
}

// NewOutcome builds an outcome with a trimmed message.
func NewOutcome(kind Kind, message string) Outcome {
	return Outcome{Kind: kind, Message: strings.TrimSpace(message)}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps an error onto the failure taxonomy. Timeouts and external tool
// errors count as provider failures; unclassified errors are fatal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrGate):
		return KindGate
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPartial):
		return KindPartial
	case errors.Is(err, ErrProvider),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrExternalTool),
		errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded):
		return KindProvider
	default:
		return KindFatal
	}
}

// OutcomeOf converts an error into an Outcome using KindOf.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return Outcome{}
	}
	return Outcome{Kind: KindOf(err), Message: err.Error()}
}

// TaskStatus names the task queue status a failed stage should land in.
type TaskStatus string

const (
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusReview   TaskStatus = "review"
	TaskStatusDeferred TaskStatus = "deferred"
)

// FailureStatus maps a stage error to the task status the workflow manager
// should persist after the stage fails.
func FailureStatus(err error) TaskStatus {
	switch {
	case errors.Is(err, ErrGate):
		return TaskStatusDeferred
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return TaskStatusReview
	default:
		return TaskStatusFailed
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
