package sdk

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
// The circuit breaker pattern prevents hammering an unreachable
// platform by monitoring transport failures and temporarily blocking
// requests when a threshold is exceeded.
//
// State transitions:
//   - Closed -> Open: when the failure threshold is reached
//   - Open -> Half-Open: after the timeout period expires
//   - Half-Open -> Closed: when the success threshold is reached
//   - Half-Open -> Open: on any failure
type CircuitState int

const (
	// CircuitClosed is the normal operating state.
	// All requests pass through and failures are counted.
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks all requests immediately.
	// This state prevents overwhelming an unreachable platform.
	CircuitOpen
	// CircuitHalfOpen allows limited requests to test if the platform
	// has recovered. If these test requests succeed, the circuit
	// closes. If they fail, the circuit opens again.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker provides fail-fast behavior when the platform is
// unreachable. Only transport-class failures count toward opening the
// circuit: a platform rejection with an errcode means the platform is
// up and answering, however unwelcome the answer.
//
// Example usage:
//
//	config := sdk.DefaultConfig().WithCircuitBreaker(sdk.CircuitBreakerConfig{
//	    FailureThreshold: 5,               // Open after 5 consecutive transport failures
//	    SuccessThreshold: 2,               // Close after 2 consecutive successes
//	    Timeout:          30 * time.Second, // Try recovery after 30s
//	})
//
//	client, _ := sdk.NewClient(config)
//
//	_, err := client.Code2Session(ctx, jsCode)
//	if errors.Is(err, sdk.ErrCircuitOpen) {
//	    // Circuit is open, the platform is unreachable
//	}
type CircuitBreaker interface {
	// Execute runs the given function if the circuit allows it.
	// Returns a circuit-open error without calling fn when the circuit
	// is open. The function's error (if any) updates circuit state.
	Execute(fn func() error) error

	// State returns the current state of the circuit breaker
	State() CircuitState

	// Reset manually resets the circuit to closed state. Use sparingly,
	// typically only when the underlying issue is known to be resolved.
	Reset()
}

// CircuitBreakerConfig holds configuration for circuit breaker behavior.
// All fields have sensible defaults if not specified.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive transport failures
	// before the circuit opens. Lower values make the circuit more
	// sensitive.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes required
	// in half-open state before the circuit closes.
	// Default: 2
	SuccessThreshold int

	// Timeout is how long the circuit stays open before transitioning
	// to half-open state to test recovery.
	// Default: 30s
	Timeout time.Duration

	// HalfOpenRequests is the maximum number of requests allowed in
	// half-open state. This limits the test traffic sent to a
	// recovering platform.
	// Default: 3
	HalfOpenRequests int
}

// DefaultCircuitBreakerConfig returns a circuit breaker configuration
// with sensible defaults suitable for most use cases.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithCircuitBreaker(sdk.DefaultCircuitBreakerConfig())
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 3,
	}
}

// circuitBreaker is the default implementation
type circuitBreaker struct {
	config CircuitBreakerConfig

	mu               sync.Mutex
	state            CircuitState
	failures         int
	successes        int
	halfOpenRequests int
	lastFailureTime  time.Time
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given
// configuration. The circuit breaker starts in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) CircuitBreaker {
	return &circuitBreaker{
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs the given function if the circuit allows it
func (cb *circuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()

	cb.checkStateTransition()
	state := cb.state

	if state == CircuitOpen {
		cb.mu.Unlock()
		return WrapError(ErrorTypeCircuitOpen, "circuit", ErrCircuitOpen)
	}

	if state == CircuitHalfOpen {
		if cb.halfOpenRequests >= cb.config.HalfOpenRequests {
			cb.mu.Unlock()
			return WrapError(ErrorTypeCircuitOpen, "circuit", ErrCircuitOpen)
		}
		cb.halfOpenRequests++
	}

	cb.mu.Unlock()

	err := fn()
	cb.recordResult(err)

	return err
}

// State returns the current state of the circuit
func (cb *circuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.checkStateTransition()
	return cb.state
}

// Reset manually resets the circuit to closed state
func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenRequests = 0
	cb.lastStateChange = time.Now()
}

// checkStateTransition checks if the circuit should transition states.
// Caller must hold cb.mu.
func (cb *circuitBreaker) checkStateTransition() {
	if cb.state == CircuitOpen && time.Since(cb.lastFailureTime) >= cb.config.Timeout {
		cb.transitionTo(CircuitHalfOpen)
	}
}

// recordResult records the result of a function execution. An
// application-level rejection counts as a success for circuit purposes:
// the platform answered.
func (cb *circuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if countsAsCircuitFailure(err) {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

// countsAsCircuitFailure reports whether an error should push the
// circuit toward opening. Only transport-class failures qualify.
func countsAsCircuitFailure(err error) bool {
	if err == nil {
		return false
	}

	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Type == ErrorTypeTransport
	}

	var netErr *NetworkError
	var timeoutErr *TimeoutError
	return errors.As(err, &netErr) || errors.As(err, &timeoutErr)
}

// onSuccess handles healthy executions. Caller must hold cb.mu.
func (cb *circuitBreaker) onSuccess() {
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0

	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// onFailure handles transport failures. Caller must hold cb.mu.
func (cb *circuitBreaker) onFailure() {
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}

	case CircuitHalfOpen:
		// Any failure in half-open goes back to open
		cb.transitionTo(CircuitOpen)
	}
}

// transitionTo transitions the circuit to a new state. Caller must
// hold cb.mu.
func (cb *circuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}

	cb.state = newState
	cb.lastStateChange = time.Now()
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenRequests = 0
}

// noopCircuitBreaker is a circuit breaker that does nothing
type noopCircuitBreaker struct{}

// Execute always executes the function
func (ncb *noopCircuitBreaker) Execute(fn func() error) error {
	return fn()
}

// State always returns closed
func (ncb *noopCircuitBreaker) State() CircuitState {
	return CircuitClosed
}

// Reset does nothing
func (ncb *noopCircuitBreaker) Reset() {}

// NewNoopCircuitBreaker creates a circuit breaker that does nothing.
// This is the breaker used when none is configured: it always executes,
// always reports closed, and ignores resets.
func NewNoopCircuitBreaker() CircuitBreaker {
	return &noopCircuitBreaker{}
}

// newBreakerInterceptor wraps the transport stage with the circuit
// breaker. It sits below credential injection so that token fetches
// going directly to the transport are judged by their own outcome, not
// blocked by a circuit opened from API traffic.
func newBreakerInterceptor(breaker CircuitBreaker) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			var resp *Response
			err := breaker.Execute(func() error {
				r, innerErr := next(ctx, req)
				resp = r
				return innerErr
			})
			return resp, err
		}
	}
}
