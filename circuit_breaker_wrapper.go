package resilience

import (
	"context"
	"log/slog"
)

// CircuitBreakerWrapper wraps a ResilientClient with circuit breaker functionality.
// It tracks consecutive failures and opens the circuit when the failure
// threshold is reached, preventing requests from reaching a failing
// downstream service.
type CircuitBreakerWrapper[Req, Resp any] struct {
	client ResilientClient[Req, Resp]
	cb     *CircuitBreaker[Resp]
	logger *slog.Logger
}

// NewCircuitBreakerWrapper creates a new circuit breaker wrapper around a ResilientClient.
// It applies the provided options to configure circuit breaker behavior.
//
// Example:
//
//	wrapper := resilience.NewCircuitBreakerWrapper(
//	    client,
//	    resilience.WithFailureThreshold(5),
//	    resilience.WithResetTimeout(60*time.Second),
//	)
func NewCircuitBreakerWrapper[Req, Resp any](
	client ResilientClient[Req, Resp],
	opts ...CircuitBreakerOption,
) *CircuitBreakerWrapper[Req, Resp] {
	config := DefaultCircuitBreakerConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	// Unlike the bare CircuitBreaker, the wrapper classifies failures by
	// default so rate limits and timeouts don't trip the circuit.
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultCircuitBreakerErrorClassifier()
	}

	return &CircuitBreakerWrapper[Req, Resp]{
		client: client,
		cb:     newCircuitBreaker[Resp](config),
		logger: config.Logger,
	}
}

// Execute executes the request through the circuit breaker.
// If the circuit is open, requests are rejected immediately without calling
// the underlying client; the returned error satisfies IsCircuitOpen and
// carries the breaker's counts via jperrors.
func (w *CircuitBreakerWrapper[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	return w.cb.Execute(func() (Resp, error) {
		return w.client.Execute(ctx, req)
	})
}

// State returns the current state of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) State() CircuitBreakerState {
	return w.cb.State()
}

// Counts returns the current counts of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) Counts() CircuitBreakerCounts {
	return w.cb.Counts()
}

// Reset forces the circuit breaker closed with all counters zeroed.
func (w *CircuitBreakerWrapper[Req, Resp]) Reset() {
	w.cb.Reset()
}

// GetHealth returns the health status of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) GetHealth() HealthStatus {
	state := w.State()
	counts := w.Counts()

	var healthy bool
	var status string

	switch state {
	case StateClosed:
		healthy = true
		status = "closed"
	case StateHalfOpen:
		healthy = true // Degraded but operational
		status = "half-open"
	case StateOpen:
		healthy = false
		status = "open"
	default:
		status = "unknown"
	}

	return HealthStatus{
		Healthy:              healthy,
		Status:               status,
		State:                state.String(),
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}

// CombineRetryAndCircuitBreaker creates a wrapper with both retry and circuit breaker functionality.
// Retry is applied first (inner layer) to absorb transient failures, then the
// circuit breaker is applied (outer layer) so it decides whether to attempt
// at all. One exhausted retry sequence counts as a single failure against the
// breaker, and while the circuit is open callers fail fast instead of
// burning a full backoff schedule against a dependency that is down.
func CombineRetryAndCircuitBreaker[Req, Resp any](
	client ResilientClient[Req, Resp],
	retryOpts []RetryOption,
	cbOpts []CircuitBreakerOption,
	logger *slog.Logger,
) ResilientClient[Req, Resp] {
	if logger != nil {
		retryOpts = append(retryOpts[:len(retryOpts):len(retryOpts)], WithRetryLogger(logger))
		cbOpts = append(cbOpts[:len(cbOpts):len(cbOpts)], WithCircuitBreakerLogger(logger))
	}

	// First wrap with retry (inner layer)
	withRetry := NewRetryWrapper(client, retryOpts...)

	// Then wrap with circuit breaker (outer layer)
	return NewCircuitBreakerWrapper[Req, Resp](withRetry, cbOpts...)
}
