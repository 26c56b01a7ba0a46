package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// Sentinel errors returned when the circuit breaker rejects a call without
// invoking the wrapped operation. Both are wrapped with jperrors context;
// use errors.Is or IsCircuitOpen to detect them.
var (
	// ErrOpenState indicates the circuit is open and the reset timeout has
	// not yet elapsed.
	ErrOpenState = errors.New("circuit breaker is open")

	// ErrTooManyRequests indicates the circuit is half-open and the recovery
	// probe is already in flight.
	ErrTooManyRequests = errors.New("circuit breaker half-open, too many requests")
)

// IsCircuitOpen reports whether err is a rejection raised by the circuit
// breaker itself, as opposed to an error from the wrapped operation.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrOpenState) || errors.Is(err, ErrTooManyRequests)
}

// CircuitBreaker tracks consecutive failures against a single dependency and
// temporarily refuses calls when the dependency appears to be down.
//
// The breaker starts closed. FailureThreshold consecutive failures open it;
// while open every call is rejected immediately with ErrOpenState. Once
// ResetTimeout has elapsed since the last failure, the next Execute is let
// through as a recovery probe and the breaker goes half-open. While the probe
// is in flight, concurrent callers are rejected. SuccessThreshold consecutive
// successful probes close the breaker; any half-open failure reopens it and
// re-arms the timeout.
//
// Construct one breaker per logical dependency and keep it for the lifetime
// of the owning client. All methods are safe for concurrent use.
type CircuitBreaker[T any] struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	successThreshold int
	classifier       CircuitBreakerErrorClassifier
	onStateChange    func(name string, from, to CircuitBreakerState)
	logger           *slog.Logger

	mu             sync.Mutex
	state          CircuitBreakerState
	failureCount   int // consecutive failures while closed
	successCount   int // consecutive successes while half-open
	lastFailure    time.Time
	probeInFlight  bool
	requests       uint32
	totalSuccesses uint32
	totalFailures  uint32
}

// NewCircuitBreaker creates a circuit breaker for one dependency.
// Non-positive threshold or timeout arguments fall back to the defaults from
// DefaultCircuitBreakerConfig. Options configure the name, logger, failure
// classifier, and state-change callback.
//
// Example:
//
//	cb := resilience.NewCircuitBreaker[*http.Response](
//	    5, 30*time.Second, 2,
//	    resilience.WithBreakerName("chat-backend"),
//	)
func NewCircuitBreaker[T any](
	failureThreshold int,
	resetTimeout time.Duration,
	successThreshold int,
	opts ...CircuitBreakerOption,
) *CircuitBreaker[T] {
	config := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		config.FailureThreshold = failureThreshold
	}
	if resetTimeout > 0 {
		config.ResetTimeout = resetTimeout
	}
	if successThreshold > 0 {
		config.SuccessThreshold = successThreshold
	}
	for _, opt := range opts {
		opt(config)
	}
	return newCircuitBreaker[T](config)
}

func newCircuitBreaker[T any](config *CircuitBreakerConfig) *CircuitBreaker[T] {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &CircuitBreaker[T]{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		resetTimeout:     config.ResetTimeout,
		successThreshold: config.SuccessThreshold,
		classifier:       config.ErrorClassifier,
		onStateChange:    config.OnStateChange,
		logger:           config.Logger,
		state:            StateClosed,
	}
}

// Execute runs op through the circuit breaker. When the circuit rejects the
// call, op is not invoked and the returned error satisfies IsCircuitOpen.
// Otherwise op's result and error pass through unchanged.
func (cb *CircuitBreaker[T]) Execute(op func() (T, error)) (T, error) {
	var zero T

	if err := cb.beforeCall(); err != nil {
		return zero, cb.rejectionError(err)
	}

	result, err := op()
	cb.afterCall(err)
	return result, err
}

// beforeCall decides whether the call may proceed, applying the open to
// half-open transition when the reset timeout has elapsed.
func (cb *CircuitBreaker[T]) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			return ErrOpenState
		}
		cb.setState(StateHalfOpen)
		cb.probeInFlight = true
	case StateHalfOpen:
		// One probe at a time; everyone else is rejected until it resolves.
		if cb.probeInFlight {
			return ErrTooManyRequests
		}
		cb.probeInFlight = true
	}

	cb.requests++
	return nil
}

// afterCall applies the outcome of an admitted call to the state machine.
func (cb *CircuitBreaker[T]) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probeInFlight = false
	}

	if err == nil || (cb.classifier != nil && !cb.classifier.ShouldTripCircuit(err)) {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker[T]) onSuccess() {
	cb.totalSuccesses++

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.setState(StateClosed)
		}
	}
	// A success observed while open belongs to a call admitted before the
	// trip; the state machine ignores it.
}

func (cb *CircuitBreaker[T]) onFailure() {
	cb.totalFailures++

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		cb.lastFailure = time.Now()
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.lastFailure = time.Now()
		cb.setState(StateOpen)
	}
}

// setState transitions to a new state, clearing the counters the new state
// starts from. Caller must hold cb.mu.
func (cb *CircuitBreaker[T]) setState(to CircuitBreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	switch to {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.probeInFlight = false
	case StateHalfOpen:
		cb.successCount = 0
	case StateOpen:
		cb.failureCount = 0
		cb.successCount = 0
	}

	cb.logger.Warn("circuit breaker state changed",
		"name", cb.name,
		"from", from.String(),
		"to", to.String())

	// Called with the breaker lock held; the callback must not call back
	// into this breaker.
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current state. It is a pure observation: an expired open
// timeout is acted on only by the next Execute, never by State.
func (cb *CircuitBreaker[T]) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a snapshot of the breaker's counters. ConsecutiveFailures
// and ConsecutiveSuccesses reflect the closed-state failure streak and the
// half-open success streak respectively.
func (cb *CircuitBreaker[T]) Counts() CircuitBreakerCounts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.countsLocked()
}

func (cb *CircuitBreaker[T]) countsLocked() CircuitBreakerCounts {
	return CircuitBreakerCounts{
		Requests:             cb.requests,
		TotalSuccesses:       cb.totalSuccesses,
		TotalFailures:        cb.totalFailures,
		ConsecutiveSuccesses: uint32(cb.successCount), // #nosec G115 - bounded by successThreshold
		ConsecutiveFailures:  uint32(cb.failureCount), // #nosec G115 - bounded by failureThreshold
	}
}

// Name returns the dependency name this breaker protects.
func (cb *CircuitBreaker[T]) Name() string {
	return cb.name
}

// Reset forces the breaker to closed with all counters zeroed, regardless of
// current state. Intended for manual recovery, e.g. operator action or test
// setup.
func (cb *CircuitBreaker[T]) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.probeInFlight = false
	cb.lastFailure = time.Time{}
	cb.requests = 0
	cb.totalSuccesses = 0
	cb.totalFailures = 0
}

// rejectionError wraps a rejection sentinel with jperrors context so callers
// get the breaker's counts alongside a distinguishable cause.
func (cb *CircuitBreaker[T]) rejectionError(cause error) error {
	cb.mu.Lock()
	counts := cb.countsLocked()
	cb.mu.Unlock()

	message := "request rejected"
	stateLabel := "open"
	if errors.Is(cause, ErrTooManyRequests) {
		message = "too many requests in half-open state"
		stateLabel = "half-open"
	}

	cb.logger.Warn("circuit breaker rejected request",
		"name", cb.name,
		"state", stateLabel,
		"error", cause)

	return jperrors.NewCircuitBreakerError(
		message,
		"execute",
		stateLabel,
		jperrors.WithCause(cause),
		jperrors.WithCounts(jperrors.CircuitCounts{
			Requests:             counts.Requests,
			TotalSuccesses:       counts.TotalSuccesses,
			TotalFailures:        counts.TotalFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
		}),
	)
}
