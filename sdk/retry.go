package sdk

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"time"
)

// RetryStrategy defines how retries should be performed.
// Different strategies provide different behaviors for retry intervals
// and determine which errors should trigger retries.
//
// The SDK provides several built-in strategies:
//   - JitteredBackoff: Exponentially increasing delays with jitter
//   - ConstantBackoff: Fixed delay between retries
//   - NoRetry: Disables retries entirely
//
// You can also implement custom strategies:
//
//	type CustomStrategy struct{}
//
//	func (s *CustomStrategy) NextInterval(attempt int) time.Duration {
//	    return time.Duration(attempt*attempt) * time.Second
//	}
//
//	func (s *CustomStrategy) ShouldRetry(err error, attempt int) bool {
//	    return sdk.IsTransient(err)
//	}
type RetryStrategy interface {
	// NextInterval returns the delay before the next retry attempt.
	// The attempt parameter starts at 1 for the first retry.
	// Return 0 to indicate no more retries should be attempted.
	NextInterval(attempt int) time.Duration

	// ShouldRetry determines if the error is retryable for the given attempt.
	// This method can inspect the error type and the attempt count to decide
	// whether to continue retrying.
	ShouldRetry(err error, attempt int) bool
}

// JitteredBackoff implements exponential backoff with jitter.
// This is the default retry strategy because it:
//   - Reduces load on the platform by doubling delays between attempts
//   - Prevents thundering herd with per-call jitter
//   - Caps the delay so a long outage never produces absurd waits
//
// The delay calculation is:
//
//	base  = BaseDelay * 2^(attempt-1), saturating at MaxDelay
//	delay = min(base + jitter, MaxDelay) where jitter is uniform in [0, base/2]
//
// The jitter source is a cheap hash of an atomic sequence number, the
// attempt, and the clock. It does not need to be cryptographic, only
// decorrelated across concurrent callers.
//
// Example:
//
//	strategy := sdk.NewJitteredBackoff(100*time.Millisecond, 10*time.Second)
//	config := sdk.DefaultConfig().WithRetryStrategy(strategy)
type JitteredBackoff struct {
	// BaseDelay is the delay before the first retry.
	// Subsequent retries double from this value.
	BaseDelay time.Duration

	// MaxDelay caps the delay regardless of attempt count
	MaxDelay time.Duration

	// seq decorrelates concurrent callers that share a strategy
	seq atomic.Uint64

	// entropy feeds the jitter hash; swappable for deterministic tests
	entropy func() uint64
}

// NewJitteredBackoff creates a jittered exponential backoff strategy
func NewJitteredBackoff(baseDelay, maxDelay time.Duration) *JitteredBackoff {
	return &JitteredBackoff{
		BaseDelay: baseDelay,
		MaxDelay:  maxDelay,
		entropy:   func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// DefaultJitteredBackoff returns the backoff used when no strategy is
// configured: 100ms base delay doubling up to a 30s cap.
//
// This produces delays like: 100-150ms, 200-300ms, 400-600ms, ...
func DefaultJitteredBackoff() *JitteredBackoff {
	return NewJitteredBackoff(100*time.Millisecond, 30*time.Second)
}

// NextInterval calculates the next retry interval
func (s *JitteredBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 || s.BaseDelay <= 0 {
		return 0
	}

	maxDelay := s.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	// Saturating shift: clamp the exponent so the shift can never wrap,
	// then clamp the result to the cap.
	shift := uint(attempt - 1)
	if shift > 32 {
		shift = 32
	}
	base := s.BaseDelay << shift
	if base <= 0 || base > maxDelay {
		base = maxDelay
	}

	delay := base + s.jitter(attempt, base/2)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// ShouldRetry determines if the error is retryable
func (s *JitteredBackoff) ShouldRetry(err error, attempt int) bool {
	return IsTransient(err)
}

// jitter returns a pseudo-random duration in [0, ceil]
func (s *JitteredBackoff) jitter(attempt int, ceil time.Duration) time.Duration {
	if ceil <= 0 {
		return 0
	}

	entropy := s.entropy
	if entropy == nil {
		entropy = func() uint64 { return uint64(time.Now().UnixNano()) }
	}

	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], s.seq.Add(1))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(attempt))
	binary.LittleEndian.PutUint64(buf[16:24], entropy())

	h := fnv.New64a()
	h.Write(buf[:])
	return time.Duration(h.Sum64() % uint64(ceil+1))
}

// ConstantBackoff implements constant interval retries.
// Every retry uses exactly the same delay with no randomization.
// This is the simplest strategy but may cause thundering herd problems.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithRetryStrategy(sdk.NewConstantBackoff(500 * time.Millisecond))
//
//	// Produces delays like: 500ms, 500ms, 500ms...
type ConstantBackoff struct {
	// Interval is the fixed interval between retries
	Interval time.Duration
}

// NewConstantBackoff creates a constant interval strategy
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	return &ConstantBackoff{Interval: interval}
}

// NextInterval returns the fixed retry interval
func (s *ConstantBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return s.Interval
}

// ShouldRetry determines if the error is retryable
func (s *ConstantBackoff) ShouldRetry(err error, attempt int) bool {
	return IsTransient(err)
}

// NoRetry disables retries entirely.
// Use this when you want to handle errors immediately without any
// retry attempts.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithRetryStrategy(&sdk.NoRetry{})
type NoRetry struct{}

// NextInterval always returns 0
func (s *NoRetry) NextInterval(attempt int) time.Duration {
	return 0
}

// ShouldRetry always returns false
func (s *NoRetry) ShouldRetry(err error, attempt int) bool {
	return false
}

// retryExecutor runs an operation under a retry strategy and an attempt
// bound. The bound counts total attempts: with maxAttempts of 3, the
// operation runs once and is retried at most twice. A bound of zero is
// a configuration error and no attempt is made.
type retryExecutor struct {
	strategy RetryStrategy
	observer Observer
}

// newRetryExecutor creates a new retry executor
func newRetryExecutor(strategy RetryStrategy, observer Observer) *retryExecutor {
	if strategy == nil {
		strategy = DefaultJitteredBackoff()
	}
	if observer == nil {
		observer = &NoopObserver{}
	}
	return &retryExecutor{strategy: strategy, observer: observer}
}

// Execute runs fn with retry logic. Non-retryable errors short-circuit
// the loop and are returned unchanged.
func (re *retryExecutor) Execute(ctx context.Context, op string, maxAttempts int, fn func() error) error {
	if maxAttempts <= 0 {
		return NewError(ErrorTypeConfig, op, "retries are set to zero, refusing to attempt the operation")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()

		// Success
		if err == nil {
			return nil
		}
		lastErr = err

		// Out of attempts
		if attempt+1 >= maxAttempts {
			break
		}

		// Non-retryable errors are returned unchanged
		if !re.strategy.ShouldRetry(err, attempt+1) {
			break
		}

		interval := re.strategy.NextInterval(attempt + 1)
		if interval <= 0 {
			break
		}

		re.observer.OnRetryAttempt(op, attempt+1, interval, err)

		// Wait for next attempt
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return WrapError(ErrorTypeTransport, op, ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}

// isIdempotentMethod reports whether a method is safe to retry without
// an explicit opt-in. The platform treats repeated POSTs as repeated
// actions (duplicate messages, duplicate QR codes), so only methods
// without side effects qualify.
func isIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "DELETE":
		return true
	default:
		return false
	}
}

// newRetryInterceptor wraps a handler with the retry loop. Requests
// with non-idempotent methods get a single attempt unless retryPost is
// set. The attempt bound still applies first: a zero bound fails the
// request before it is ever sent.
func newRetryInterceptor(executor *retryExecutor, maxAttempts int, retryPost bool) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			attempts := maxAttempts
			if attempts > 0 && !retryPost && !isIdempotentMethod(req.Method) {
				attempts = 1
			}

			op := req.Method + " " + pathOnly(req.Path)

			var resp *Response
			err := executor.Execute(ctx, op, attempts, func() error {
				r, err := next(ctx, req)
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
}

// pathOnly strips the query string so operation labels never carry
// credentials
func pathOnly(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
