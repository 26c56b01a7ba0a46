// Package resilience wraps fallible remote operations with automatic retry,
// exponential backoff with jitter, and a per-dependency circuit breaker.
// It supports any request/response type using Go generics and integrates with
// jp-go-errors for standardized error handling.
//
// The two policies compose in either order; the recommended layering puts the
// circuit breaker outside the retry executor, so the breaker decides whether
// to attempt at all and the retry layer handles per-attempt policy.
package resilience

import (
	"context"
)

// ResilientClient defines a generic interface for executing requests with retry and circuit breaker support.
// Type parameters Req and Resp can be any types, making this suitable for HTTP clients, WebSocket senders,
// token exchanges, or any other remote operation that needs resilience patterns.
//
// Example:
//
//	type HTTPClient struct {
//	    client *http.Client
//	}
//
//	func (c *HTTPClient) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
//	    return c.client.Do(req.WithContext(ctx))
//	}
//
//	// Wrap with retry
//	resilientClient := resilience.NewRetryWrapper(
//	    httpClient,
//	    resilience.WithMaxAttempts(3),
//	    resilience.WithBaseDelay(time.Second),
//	)
type ResilientClient[Req, Resp any] interface {
	// Execute performs a request and returns a response or error.
	// The context should be used to control timeouts and cancellation.
	Execute(ctx context.Context, req Req) (Resp, error)
}
