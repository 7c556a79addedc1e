package structured

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"viralforge/internal/logging"
	"viralforge/internal/services"
)

// MaxAttempts bounds model calls per output: the first attempt and one retry.
const MaxAttempts = 2

// Generator produces raw model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Sink persists every result the runner produces.
type Sink interface {
	SaveResult(ctx context.Context, result Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, result Result) error

// SaveResult calls f.
func (f SinkFunc) SaveResult(ctx context.Context, result Result) error {
	return f(ctx, result)
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithObserver registers a callback invoked after each result is persisted.
func WithObserver(fn func(Result)) RunnerOption {
	return func(r *Runner) {
		r.observe = fn
	}
}

// Runner drives one model output through extraction, validation and the
// single corrective retry.
type Runner struct {
	sink    Sink
	logger  *slog.Logger
	observe func(Result)
}

// NewRunner builds a runner. A nil sink discards results.
func NewRunner(sink Sink, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		sink:   sink,
		logger: logging.NewComponentLogger(logger, "structured"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RetryPrompt appends the validation errors of the failed attempt to the
// original prompt.
func RetryPrompt(prompt string, errs []string) string {
	return prompt +
		"\n\nATTENTION: your previous response failed validation:\n- " +
		strings.Join(errs, "; ") +
		"\n\nReturn ONLY valid JSON matching the requested schema, without markdown."
}

// Run generates, validates and, on failure, retries once. The returned
// result's Attempt counts the generator calls that produced text. A result
// that stays invalid after the retry is returned with Terminal set and a nil
// error; errors are reserved for provider and persistence failures.
func (r *Runner) Run(ctx context.Context, gen Generator, prompt string, schema *Schema) (Result, error) {
	if gen == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "structured", "run", "generator is nil", nil)
	}
	if schema == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "structured", "run", "schema is nil", nil)
	}
	logger := logging.WithContext(ctx, r.logger).With(logging.String("schema", schema.Name))

	var last Result
	current := prompt
	state := StateReceived
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		raw, genErr := gen.Generate(ctx, current)
		if genErr != nil {
			providerErr := services.Wrap(services.ErrProvider, "structured", "generate",
				fmt.Sprintf("%s attempt %d", schema.Name, attempt), genErr)
			if strings.TrimSpace(raw) == "" {
				return last, providerErr
			}
			res := Result{
				Raw:           raw,
				Errors:        []string{"provider error: " + genErr.Error()},
				Schema:        schema.Name,
				SchemaVersion: schema.Version,
			}.withAttempt(attempt, true)
			if err := r.save(ctx, res); err != nil {
				return res, errors.Join(providerErr, err)
			}
			return res, providerErr
		}

		var err error
		if state, err = Advance(state, StateExtracting); err != nil {
			return last, err
		}
		res := Check(raw, schema).withAttempt(attempt, attempt == MaxAttempts)
		if state, err = Advance(state, res.State); err != nil {
			return last, err
		}
		if err := r.save(ctx, res); err != nil {
			return res, err
		}
		last = res

		switch res.State {
		case StateValid:
			if attempt > 1 {
				logger.Info("structured output valid after retry",
					logging.String(logging.FieldEventType, "structured_retry_recovered"),
					logging.Int("attempt", attempt))
			}
			return res, nil
		case StateInvalidTerminal:
			logger.Warn("structured output quarantined",
				logging.String(logging.FieldEventType, "structured_quarantined"),
				logging.String(logging.FieldErrorHint, "inspect the stored raw output"),
				logging.String(logging.FieldImpact, "candidate will not progress"),
				logging.Int("attempt", attempt),
				logging.String("errors", strings.Join(res.Errors, "; ")))
			return res, nil
		}

		logger.Info("structured output invalid, retrying",
			logging.String(logging.FieldEventType, "structured_retry"),
			logging.Int("attempt", attempt),
			logging.Int("error_count", len(res.Errors)))
		if state, err = Advance(state, StateRetried); err != nil {
			return last, err
		}
		current = RetryPrompt(prompt, res.Errors)
	}
	return last, nil
}

func (r *Runner) save(ctx context.Context, res Result) error {
	if r.sink != nil {
		if err := r.sink.SaveResult(ctx, res); err != nil {
			return services.Wrap(services.ErrTransient, "structured", "save result",
				fmt.Sprintf("%s attempt %d", res.Schema, res.Attempt), err)
		}
	}
	if r.observe != nil {
		r.observe(res)
	}
	return nil
}
