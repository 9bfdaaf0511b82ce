// Package retry is the single retry-with-backoff wrapper applied at every
// external-call boundary: feed fetch, page fetch, text generation and posting.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy holds retry configuration for one class of external calls.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first. Values < 1 mean 1.
	MaxAttempts int

	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration

	// Multiplier is applied to the wait after each retry.
	Multiplier float64

	// MaxInterval caps a single wait.
	MaxInterval time.Duration

	// Retryable decides which failures are retried. Defaults to IsTransient.
	Retryable func(error) bool

	// Logger receives one warning per retry. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultPolicy returns the defaults used for every external call.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		Multiplier:      2.0,
		MaxInterval:     30 * time.Second,
	}
}

// WithLogger returns a copy of p that logs retries to l.
func (p Policy) WithLogger(l *slog.Logger) Policy {
	p.Logger = l
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.Multiplier >= 1 {
		eb.Multiplier = p.Multiplier
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	// Attempts bound the loop, not wall time.
	eb.MaxElapsedTime = 0
	eb.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Do runs op until it succeeds, fails with a non-retryable error, the attempts are
// exhausted, or ctx is done. The last error is returned unchanged, except that
// a Permanent wrapper is removed.
func Do[T any](ctx context.Context, p Policy, name string, op func(context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx)
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			return v, err
		}
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("transient failure, retrying",
			"call", name, "attempt", attempt, "backoff", wait.String(), "error", err)
	}
	return backoff.RetryNotifyWithData(operation, p.backOff(ctx), notify)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, name string, op func(context.Context) error) error {
	_, err := Do(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
