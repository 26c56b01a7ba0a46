package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
)

// ErrorClassifier determines whether an error should trigger a retry.
// Implement this interface to customize retry behavior for your specific error types.
type ErrorClassifier interface {
	// IsRetryable returns true if the error represents a transient failure
	// that should be retried.
	IsRetryable(err error) bool
}

// CircuitBreakerErrorClassifier determines whether an error should trip the circuit breaker.
// Implement this interface to customize circuit breaker behavior for your specific error types.
type CircuitBreakerErrorClassifier interface {
	// ShouldTripCircuit returns true if the error represents a failure serious enough
	// to open the circuit breaker and stop requests temporarily.
	ShouldTripCircuit(err error) bool
}

// RetryableFlag lets an error declare its retryability explicitly.
// When an error in the chain implements this interface, classification honors
// the flag verbatim and skips all status-code and transport heuristics.
type RetryableFlag interface {
	error
	IsRetryable() bool
}

// HTTPError represents an error with an associated HTTP status code.
// Many HTTP client libraries provide errors that implement this interface.
type HTTPError interface {
	error
	StatusCode() int
}

// NetworkError describes a failed remote call in enough detail for
// classification: whether it was a transport-level failure, the HTTP-like
// status if one was received, and an optional explicit retryability override.
type NetworkError struct {
	// Message is the human-readable cause.
	Message string

	// NetworkFailure is true when the error originated at the transport level
	// (connection refused, DNS failure) rather than from the application.
	NetworkFailure bool

	// Status is the HTTP-like status code, or 0 when none applies.
	Status int

	// Retryable, when non-nil, overrides heuristic classification entirely.
	Retryable *bool

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// StatusCode returns the HTTP-like status code, implementing HTTPError.
// Returns 0 when the failure carried no status.
func (e *NetworkError) StatusCode() int {
	return e.Status
}

// retryableStatuses are the HTTP statuses worth retrying: request timeout,
// rate limiting, and the transient 5xx family.
var retryableStatuses = []int{408, 429, 500, 502, 503, 504}

// circuitTripStatuses are the HTTP statuses that indicate a dependency is
// unhealthy enough to stop calling it.
var circuitTripStatuses = []int{401, 403, 500, 502, 503, 504}

// HTTPStatusClassifier provides HTTP status code-based error classification.
// It classifies errors based on HTTP status codes, treating certain codes as retryable
// and others as circuit breaker trip conditions.
type HTTPStatusClassifier struct {
	// RetryableStatuses lists HTTP status codes that should trigger retries.
	// Defaults to 408, 429, 500, 502, 503, 504 if nil.
	RetryableStatuses []int

	// CircuitTripStatuses lists HTTP status codes that should trip the circuit breaker.
	// Defaults to 401, 403, 500, 502, 503, 504 if nil.
	CircuitTripStatuses []int
}

// NewHTTPStatusClassifier creates a new HTTPStatusClassifier with default status code mappings.
func NewHTTPStatusClassifier() *HTTPStatusClassifier {
	return &HTTPStatusClassifier{
		RetryableStatuses:   retryableStatuses,
		CircuitTripStatuses: circuitTripStatuses,
	}
}

// IsRetryable implements ErrorClassifier.
//
// Decision order, first match wins:
//  1. An explicit retryable flag (RetryableFlag or NetworkError.Retryable)
//     is honored verbatim.
//  2. An HTTP-like status code is retryable only if it is in the retryable set.
//  3. Transport-level failures and timeout signals are retryable.
//  4. Everything else (application errors, validation errors) is not.
func (c *HTTPStatusClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if override, ok := retryableOverride(err); ok {
		return override
	}

	// A canceled context means the caller gave up; retrying under the same
	// context cannot succeed.
	if errors.Is(err, context.Canceled) {
		return false
	}

	if status := extractStatusCode(err); status != 0 {
		return containsStatus(c.getRetryableStatuses(), status)
	}

	// Timeouts of the individual attempt are transient.
	if errors.Is(err, context.DeadlineExceeded) || pkgerrors.IsTimeout(err) {
		return true
	}
	if errors.Is(err, pkgerrors.ErrRateLimited) {
		return true
	}

	// Transport-level failures with no status: connection refused, reset,
	// DNS errors and friends.
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.NetworkFailure
	}
	var transportErr net.Error
	return errors.As(err, &transportErr)
}

// ShouldTripCircuit implements CircuitBreakerErrorClassifier.
// Rate limits and timeouts are transient and do not trip the circuit;
// auth failures and server errors do, as do transport-level failures.
func (c *HTTPStatusClassifier) ShouldTripCircuit(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, pkgerrors.ErrRateLimited) {
		return false
	}
	if pkgerrors.IsTimeout(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if status := extractStatusCode(err); status != 0 {
		return containsStatus(c.getCircuitTripStatuses(), status)
	}

	// Unknown errors should trip the circuit to be safe.
	return true
}

func (c *HTTPStatusClassifier) getRetryableStatuses() []int {
	if c.RetryableStatuses != nil {
		return c.RetryableStatuses
	}
	return retryableStatuses
}

func (c *HTTPStatusClassifier) getCircuitTripStatuses() []int {
	if c.CircuitTripStatuses != nil {
		return c.CircuitTripStatuses
	}
	return circuitTripStatuses
}

// retryableOverride reports the explicit retryable flag carried by err, if any.
func retryableOverride(err error) (retryable, ok bool) {
	var netErr *NetworkError
	if errors.As(err, &netErr) && netErr.Retryable != nil {
		return *netErr.Retryable, true
	}

	var flagged RetryableFlag
	if errors.As(err, &flagged) {
		return flagged.IsRetryable(), true
	}

	return false, false
}

// extractStatusCode attempts to extract an HTTP status code from the error chain.
func extractStatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}

	// jp-go-errors types expose StatusCode without implementing HTTPError.
	type httpStatusProvider interface {
		StatusCode() int
	}
	var statusProvider httpStatusProvider
	if errors.As(err, &statusProvider) {
		return statusProvider.StatusCode()
	}

	return 0
}

// containsStatus checks if a status code is in the list.
func containsStatus(statuses []int, status int) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsRetryableError classifies err with the default classifier.
// It is pure, never panics, and returns false for nil.
func IsRetryableError(err error) bool {
	return DefaultErrorClassifier().IsRetryable(err)
}

// DefaultErrorClassifier provides reasonable defaults for most use cases.
// It treats 408, 429 and 5xx statuses, transport errors, and timeouts as retryable.
func DefaultErrorClassifier() ErrorClassifier {
	return NewHTTPStatusClassifier()
}

// DefaultCircuitBreakerErrorClassifier provides reasonable defaults for circuit breaker tripping.
// It trips on authentication errors (401, 403) and server errors (5xx),
// but not on rate limits or timeouts which are transient.
func DefaultCircuitBreakerErrorClassifier() CircuitBreakerErrorClassifier {
	return NewHTTPStatusClassifier()
}

// StatusCodeError wraps an error with an HTTP status code.
// Use this when you need to add status code information to an existing error.
type StatusCodeError struct {
	Err  error
	Code int
}

// Error implements the error interface.
func (e *StatusCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StatusCodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
// This implements the HTTPError interface.
func (e *StatusCodeError) StatusCode() int {
	return e.Code
}

// NewStatusCodeError creates a new StatusCodeError.
// This is useful when wrapping errors from systems that don't provide status codes.
//
// Example:
//
//	err := doRequest()
//	if err != nil {
//	    return resilience.NewStatusCodeError(http.StatusServiceUnavailable, err)
//	}
func NewStatusCodeError(statusCode int, err error) error {
	return &StatusCodeError{
		Code: statusCode,
		Err:  err,
	}
}

// Retryable marks err with an explicit retryability flag, bypassing heuristic
// classification. Returns nil if err is nil.
func Retryable(err error, retryable bool) error {
	if err == nil {
		return nil
	}
	return &NetworkError{
		Message:   err.Error(),
		Retryable: &retryable,
		Cause:     err,
	}
}
