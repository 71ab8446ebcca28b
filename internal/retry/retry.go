// Package retry wraps a fallible action with fixed-interval retry until a
// maximum attempt budget is exhausted.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/binwatch/binwatch/internal/errors"
)

// Default budget used by the reload orchestrator: a 60 s total window at
// 100 ms intervals.
const (
	DefaultInterval = 100 * time.Millisecond
	DefaultAttempts = 600
)

// Runner retries an action at a fixed interval up to a total attempt count.
type Runner struct {
	logger   *slog.Logger
	attempts uint64
	interval time.Duration
}

// New creates a Runner. attempts is the total number of calls, including
// the first one.
func New(logger *slog.Logger, attempts uint64, interval time.Duration) *Runner {
	return &Runner{
		logger:   logger,
		attempts: attempts,
		interval: interval,
	}
}

// Do executes op, retrying on failure until it succeeds, the attempt budget
// is exhausted, or ctx is cancelled. The first failure is logged as a
// warning; only the final exhausted failure is returned. A cancelled
// context stops retrying immediately and returns the context error.
func (r *Runner) Do(ctx context.Context, op func() error) error {
	if r.attempts == 0 {
		// Programmer error, not a runtime condition.
		return errors.Internal("retry attempt budget must be positive")
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.interval), r.attempts-1),
		ctx,
	)

	var failures int
	wrapped := func() error {
		err := op()
		if err != nil && ctx.Err() != nil {
			// Disposal mid-operation: do not burn the budget waiting.
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(wrapped, policy, func(err error, _ time.Duration) {
		failures++
		if failures == 1 {
			r.logger.Warn("attempt failed, retrying",
				"error", err,
				"interval", r.interval,
				"budget", r.attempts)
		}
	})
}
