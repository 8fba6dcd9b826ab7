package tastebalance

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// RetryAttempts bounds estimator calls and photo downloads.
	RetryAttempts = 3
	// RetryInterval is the fixed pause between attempts.
	RetryInterval = 2 * time.Second
)

// Retry runs op up to RetryAttempts times with a constant pause between attempts.
// Errors wrapped with backoff.Permanent stop the loop immediately.
func Retry[T any](ctx context.Context, name string, op func() (T, error)) (T, error) {
	return RetryWith(ctx, name, RetryInterval, op)
}

// RetryWith is Retry with a custom pause, mostly useful in tests.
func RetryWith[T any](ctx context.Context, name string, interval time.Duration, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err != nil {
			slog.Warn("RETRY: Attempt failed", "operation", name, "attempt", attempt, "error", err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxTries(RetryAttempts),
	)
}
