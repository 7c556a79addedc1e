package stage

import (
	"context"
	"log/slog"

	"viralforge/internal/store"
)

// Handler describes the contract the workflow manager needs from each stage.
// Execute returns nil when the task is done; any error is classified with
// services.FailureStatus to decide where the task lands.
type Handler interface {
	Execute(context.Context, *store.Task) error
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by handlers that accept a per-task logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
