package resilience

import (
	"log/slog"
	"time"
)

// Default retry configuration values.
const (
	DefaultMaxAttempts   = 3
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 30 * time.Second
	DefaultBackoffFactor = 2.0
)

// RetryConfig holds retry configuration options.
type RetryConfig struct {
	// ErrorClassifier determines which errors should trigger retries.
	// Default: HTTPStatusClassifier with standard retryable codes
	ErrorClassifier ErrorClassifier

	// Logger for retry operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// BaseDelay is the delay before the first retry.
	// Default: 1 second
	BaseDelay time.Duration

	// MaxDelay is the upper bound on any computed delay, applied after
	// backoff growth and before jitter.
	// Default: 30 seconds
	MaxDelay time.Duration

	// BackoffFactor is the multiplicative growth per retry.
	// The delay before retry N is BaseDelay * BackoffFactor^(N-1), capped at MaxDelay.
	// Default: 2.0 (doubling)
	BackoffFactor float64

	// MaxAttempts is the maximum number of attempts (including the initial request).
	// Default: 3
	MaxAttempts int

	// DisableJitter turns off the randomization added on top of each computed
	// delay. Jitter is on by default to spread retries from independent
	// callers in time.
	DisableJitter bool
}

// RetryOption is a functional option for configuring retry behavior.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of retry attempts.
// The total number of calls will be MaxAttempts (including the initial attempt).
//
// Example:
//
//	resilience.WithMaxAttempts(5) // Try up to 5 times total
func WithMaxAttempts(attempts int) RetryOption {
	return func(c *RetryConfig) {
		c.MaxAttempts = attempts
	}
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.BaseDelay = delay
	}
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(delay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.MaxDelay = delay
	}
}

// WithBackoffFactor sets the multiplicative growth per retry.
//
// Example:
//
//	resilience.WithBackoffFactor(1.5) // 50% growth per retry
//	// With BaseDelay=1s: ~1s, ~1.5s, ~2.25s, ~3.375s, ...
func WithBackoffFactor(factor float64) RetryOption {
	return func(c *RetryConfig) {
		c.BackoffFactor = factor
	}
}

// WithExponentialBackoff configures the delay window in one call.
//
// Example:
//
//	resilience.WithExponentialBackoff(time.Second, 30*time.Second)
//	// With default factor 2.0: ~1s, ~2s, ~4s, ~8s, ~16s, 30s (capped)
func WithExponentialBackoff(baseDelay, maxDelay time.Duration) RetryOption {
	return func(c *RetryConfig) {
		c.BaseDelay = baseDelay
		c.MaxDelay = maxDelay
	}
}

// WithoutJitter disables delay randomization, making retry timing
// deterministic. Mainly useful in tests.
func WithoutJitter() RetryOption {
	return func(c *RetryConfig) {
		c.DisableJitter = true
	}
}

// WithErrorClassifier sets a custom error classifier for retry decisions.
//
// Example:
//
//	classifier := &MyCustomClassifier{}
//	resilience.WithErrorClassifier(classifier)
func WithErrorClassifier(classifier ErrorClassifier) RetryOption {
	return func(c *RetryConfig) {
		c.ErrorClassifier = classifier
	}
}

// WithRetryLogger sets a custom logger for retry operations.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	resilience.WithRetryLogger(logger)
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(c *RetryConfig) {
		c.Logger = logger
	}
}

// DefaultRetryConfig returns retry configuration with sensible defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     DefaultMaxAttempts,
		BaseDelay:       DefaultBaseDelay,
		MaxDelay:        DefaultMaxDelay,
		BackoffFactor:   DefaultBackoffFactor,
		ErrorClassifier: DefaultErrorClassifier(),
		Logger:          slog.Default(),
	}
}

// CircuitBreakerConfig holds circuit breaker configuration options.
type CircuitBreakerConfig struct {
	// Name identifies the protected dependency in logs and callbacks.
	// Default: "resilient-client"
	Name string

	// FailureThreshold is the number of consecutive failures in the closed
	// state that opens the circuit.
	// Default: 5
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before the next call
	// is allowed through as a recovery probe.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// SuccessThreshold is the number of consecutive successful probes in the
	// half-open state required to close the circuit.
	// Default: 2
	SuccessThreshold int

	// ErrorClassifier determines which errors count as failures.
	// When nil, every non-nil error counts.
	ErrorClassifier CircuitBreakerErrorClassifier

	// OnStateChange is called whenever the circuit breaker changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Logger for circuit breaker operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// CircuitBreakerOption is a functional option for configuring circuit breaker behavior.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerCounts holds the internal counts of the circuit breaker.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and requests flow normally.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen means the circuit is testing if the service has recovered.
	StateHalfOpen

	// StateOpen means the circuit is open and requests are rejected immediately.
	StateOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// WithBreakerName names the protected dependency.
//
// Example:
//
//	resilience.WithBreakerName("chat-backend")
func WithBreakerName(name string) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Name = name
	}
}

// WithFailureThreshold sets the consecutive-failure count that opens the circuit.
//
// Example:
//
//	resilience.WithFailureThreshold(5)
func WithFailureThreshold(threshold int) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.FailureThreshold = threshold
	}
}

// WithResetTimeout sets how long the circuit stays open before probing recovery.
//
// Example:
//
//	resilience.WithResetTimeout(60 * time.Second)
func WithResetTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ResetTimeout = timeout
	}
}

// WithSuccessThreshold sets the consecutive successes required to close the
// circuit from half-open.
//
// Example:
//
//	resilience.WithSuccessThreshold(3)
func WithSuccessThreshold(threshold int) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.SuccessThreshold = threshold
	}
}

// WithCircuitBreakerErrorClassifier sets a custom error classifier for circuit breaker decisions.
//
// Example:
//
//	classifier := &MyCustomClassifier{}
//	resilience.WithCircuitBreakerErrorClassifier(classifier)
func WithCircuitBreakerErrorClassifier(classifier CircuitBreakerErrorClassifier) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ErrorClassifier = classifier
	}
}

// WithStateChangeHandler sets a callback for circuit breaker state changes.
//
// Example:
//
//	resilience.WithStateChangeHandler(func(name string, from, to resilience.CircuitBreakerState) {
//	    log.Printf("Circuit %s changed from %s to %s", name, from, to)
//	})
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// WithCircuitBreakerLogger sets a custom logger for circuit breaker operations.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	resilience.WithCircuitBreakerLogger(logger)
func WithCircuitBreakerLogger(logger *slog.Logger) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Logger = logger
	}
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration with sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "resilient-client",
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
		Logger:           slog.Default(),
	}
}
