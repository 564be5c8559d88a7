package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs fn until it succeeds, returns a non-transient error, or
// attempts are exhausted. The last error is returned.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context, attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 0

	var (
		attempt int
		last    error
	)
	err := backoff.Retry(func() error {
		attempt++
		last = fn(ctx, attempt)
		if last != nil && !errors.Is(last, ErrTransientStore) {
			return backoff.Permanent(last)
		}
		return last
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
	if err != nil && last != nil && ctx.Err() != nil {
		return last
	}
	return err
}
