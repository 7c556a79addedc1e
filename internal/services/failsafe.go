package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// CallPolicy bounds one provider call: a per-attempt timeout plus optional
// retries with exponential backoff.
type CallPolicy struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// ShouldRetry decides which errors are worth another attempt. Nil retries
	// every error except cancellation.
	ShouldRetry func(error) bool
}

// Executor builds the failsafe executor for p. Retries wrap the timeout so
// each attempt gets the full time limit.
func (p CallPolicy) Executor() failsafe.Executor[any] {
	var policies []failsafe.Policy[any]
	if p.MaxRetries > 0 {
		base := p.BaseDelay
		if base <= 0 {
			base = time.Second
		}
		maxDelay := p.MaxDelay
		if maxDelay < base {
			maxDelay = base
		}
		shouldRetry := p.ShouldRetry
		policies = append(policies, retrypolicy.NewBuilder[any]().
			HandleIf(func(_ any, err error) bool {
				if err == nil || errors.Is(err, context.Canceled) {
					return false
				}
				if shouldRetry == nil {
					return true
				}
				return shouldRetry(err)
			}).
			WithMaxRetries(p.MaxRetries).
			WithBackoff(base, maxDelay).
			ReturnLastFailure().
			Build())
	}
	if p.Timeout > 0 {
		policies = append(policies, timeout.New[any](p.Timeout))
	}
	return failsafe.With(policies...)
}

// Run executes fn under p. The context handed to fn is cancelled when the
// attempt times out. Timeouts surface as ErrTimeout.
func (p CallPolicy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxRetries <= 0 && p.Timeout <= 0 {
		return fn(ctx)
	}
	err := p.Executor().WithContext(ctx).RunWithExecution(func(exec failsafe.Execution[any]) error {
		return fn(exec.Context())
	})
	if err != nil && errors.Is(err, timeout.ErrExceeded) {
		return fmt.Errorf("%w: exceeded %s: %w", ErrTimeout, p.Timeout, err)
	}
	return err
}
