package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryWrapper wraps a ResilientClient with configurable retry logic.
// It uses exponential backoff with additive jitter to prevent thundering
// herd problems, and tracks per-wrapper statistics.
type RetryWrapper[Req, Resp any] struct {
	client     ResilientClient[Req, Resp]
	config     *RetryConfig
	logger     *slog.Logger
	classifier ErrorClassifier
	stats      *retryStats
}

// retryStats tracks retry operation statistics.
type retryStats struct {
	mu              sync.RWMutex
	totalAttempts   int64
	totalRetries    int64
	totalSuccesses  int64
	totalFailures   int64
	lastAttemptTime time.Time
	lastError       error
}

// NewRetryWrapper creates a new retry wrapper around a ResilientClient.
// It applies the provided options to configure retry behavior.
//
// Example:
//
//	wrapper := resilience.NewRetryWrapper(
//	    client,
//	    resilience.WithMaxAttempts(5),
//	    resilience.WithExponentialBackoff(time.Second, 30*time.Second),
//	)
func NewRetryWrapper[Req, Resp any](
	client ResilientClient[Req, Resp],
	opts ...RetryOption,
) *RetryWrapper[Req, Resp] {
	config := DefaultRetryConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier()
	}

	return &RetryWrapper[Req, Resp]{
		client:     client,
		config:     config,
		logger:     config.Logger,
		classifier: config.ErrorClassifier,
		stats:      &retryStats{},
	}
}

// Execute performs the request with retry logic.
// It will retry on retryable errors up to MaxAttempts times using the
// configured backoff schedule.
func (w *RetryWrapper[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	var zero Resp

	// Handle zero or negative max attempts - don't make any requests
	if w.config.MaxAttempts <= 0 {
		return zero, errors.New("max attempts must be positive")
	}

	// Check if parent context is already done before attempting any requests
	select {
	case <-ctx.Done():
		w.logger.Warn("context already done before request (expected condition)",
			"error", ctx.Err())
		return zero, ctx.Err()
	default:
	}

	var response Resp
	var attempts int

	err := retry.Do(ctx, newBackoff(w.config), func(ctx context.Context) error {
		attempts++

		// Track attempt and calculate retries (attempts after the first)
		w.stats.mu.Lock()
		w.stats.totalAttempts++
		if attempts > 1 {
			w.stats.totalRetries++
		}
		w.stats.lastAttemptTime = time.Now()
		w.stats.mu.Unlock()

		// Check if parent context is done before each retry attempt
		select {
		case <-ctx.Done():
			w.logger.Warn("context done before retry attempt (expected condition)",
				"attempt", attempts,
				"error", ctx.Err())
			return ctx.Err()
		default:
		}

		// Try the request
		resp, err := w.client.Execute(ctx, req)
		if err == nil {
			if attempts > 1 {
				w.logger.Info("request succeeded after retry",
					"attempts", attempts)
			}
			response = resp
			return nil
		}

		// Check if error is retryable
		if !w.classifier.IsRetryable(err) {
			w.logger.Debug("non-retryable error, giving up",
				"error", err,
				"attempts", attempts)
			return err
		}

		// Log retry
		w.logger.Debug("retrying request after delay",
			"attempt", attempts,
			"error", err)

		// Return retryable error to continue retry loop
		return retry.RetryableError(err)
	})
	if err != nil {
		w.logger.Warn("request failed after retries",
			"attempts", attempts,
			"error", err)
		// Track failure
		w.stats.mu.Lock()
		w.stats.totalFailures++
		w.stats.lastError = err
		w.stats.mu.Unlock()
		return zero, err
	}

	// Track success
	w.stats.mu.Lock()
	w.stats.totalSuccesses++
	w.stats.mu.Unlock()

	return response, nil
}

// RetryStats holds statistics about retry operations.
type RetryStats struct {
	// TotalAttempts is the total number of attempts made (including initial and retries)
	TotalAttempts int64

	// TotalRetries is the number of retry attempts (not including initial attempts)
	TotalRetries int64

	// TotalSuccesses is the number of successful operations
	TotalSuccesses int64

	// TotalFailures is the number of failed operations (after all retries exhausted)
	TotalFailures int64

	// LastAttemptTime is the time of the last attempt
	LastAttemptTime time.Time

	// LastError is the last error encountered (if any)
	LastError error
}

// GetRetryStats returns statistics about retry operations.
// This method is thread-safe and returns a snapshot of the current statistics.
func (w *RetryWrapper[Req, Resp]) GetRetryStats() RetryStats {
	w.stats.mu.RLock()
	defer w.stats.mu.RUnlock()

	return RetryStats{
		TotalAttempts:   w.stats.totalAttempts,
		TotalRetries:    w.stats.totalRetries,
		TotalSuccesses:  w.stats.totalSuccesses,
		TotalFailures:   w.stats.totalFailures,
		LastAttemptTime: w.stats.lastAttemptTime,
		LastError:       w.stats.lastError,
	}
}
