package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// Operation is a single fallible remote call. Implementations should honor
// the context for timeouts and cancellation.
type Operation[T any] func(ctx context.Context) (T, error)

// WithRetry invokes op until it succeeds, fails with a non-retryable error,
// or the attempt budget is exhausted. Attempts are strictly sequential: the
// next attempt starts only after the previous one has failed and the full
// backoff delay has elapsed. The delay before retry N is
// CalculateDelay(N, config), with jitter added unless disabled.
//
// On final failure the error from the last attempt is returned unchanged, so
// errors.Is and errors.As keep working against the original cause. Context
// cancellation interrupts the backoff wait and is returned as a terminal
// failure.
//
// Example:
//
//	profile, err := resilience.WithRetry(ctx, fetchProfile,
//	    resilience.WithMaxAttempts(5),
//	    resilience.WithExponentialBackoff(time.Second, 30*time.Second),
//	)
func WithRetry[T any](ctx context.Context, op Operation[T], opts ...RetryOption) (T, error) {
	var zero T

	config := DefaultRetryConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier()
	}

	// Zero or negative max attempts means no requests at all.
	if config.MaxAttempts <= 0 {
		return zero, errors.New("max attempts must be positive")
	}

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
	}

	var result T
	err := retry.Do(ctx, newBackoff(config), func(ctx context.Context) error {
		res, err := op(ctx)
		if err == nil {
			result = res
			return nil
		}
		if !config.ErrorClassifier.IsRetryable(err) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}

// newBackoff builds the go-retry backoff schedule from CalculateDelay and
// AddJitter. The returned Backoff carries per-call attempt state, so a fresh
// one is needed for every retry loop.
// Note: retry.Do() counts the initial attempt, so MaxAttempts-1 is passed to WithMaxRetries.
func newBackoff(config *RetryConfig) retry.Backoff {
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if maxAttempts > 1000 { // Cap at reasonable upper bound
		maxAttempts = 1000
	}

	attempt := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		delay := CalculateDelay(attempt, config)
		if !config.DisableJitter {
			delay = AddJitter(delay)
		}
		return delay, false
	})

	return retry.WithMaxRetries(uint64(maxAttempts-1), b) // #nosec G115 - bounds checked above
}
