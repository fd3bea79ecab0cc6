package sdk

import (
	"errors"
	"fmt"
)

// Common errors returned by the SDK. These can be used with errors.Is()
// to check for specific error conditions.
//
// Example:
//
//	token, err := client.Token(ctx)
//	if errors.Is(err, sdk.ErrTimeout) {
//	    // Handle timeout
//	} else if errors.Is(err, sdk.ErrCircuitOpen) {
//	    // Circuit breaker is open, the platform is unreachable
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed is returned when the client is used after Close()
	ErrClosed = errors.New("client is closed")

	// ErrTimeout is returned when a request times out
	ErrTimeout = errors.New("request timeout")

	// ErrContextCanceled is returned when the context is canceled before completion
	ErrContextCanceled = errors.New("context canceled")

	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTokenUnavailable is returned when no access token could be obtained
	ErrTokenUnavailable = errors.New("access token unavailable")
)

// Well-known result codes returned by the platform in the errcode field.
// The full catalog is much larger; these are the codes the SDK itself
// makes decisions on.
const (
	// CodeOK means the call succeeded
	CodeOK = 0
	// CodeSystemBusy means the platform is momentarily overloaded; safe to retry
	CodeSystemBusy = -1
	// CodeInvalidCredential means the access token is invalid
	CodeInvalidCredential = 40001
	// CodeInvalidAppID means the configured app ID is not recognized
	CodeInvalidAppID = 40013
	// CodeInvalidSecret means the configured app secret is wrong
	CodeInvalidSecret = 40125
	// CodeCredentialExpired means the access token has expired
	CodeCredentialExpired = 42001
	// CodeRateLimitReached means the API quota is temporarily exhausted; safe to retry
	CodeRateLimitReached = 45009
)

// ErrorType categorizes an error for handling and retry decisions.
//
// Example:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    switch sdkErr.Type {
//	    case sdk.ErrorTypeTransport:
//	        // Network or HTTP failure, retrying may help
//	    case sdk.ErrorTypeApplication:
//	        // The platform rejected the call, inspect sdkErr.Code
//	    case sdk.ErrorTypeDecode:
//	        // Response body did not match the expected shape
//	    }
//	}
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown or unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTransport represents network and HTTP-level failures
	// (connection refused, DNS, timeouts, non-2xx status codes)
	ErrorTypeTransport
	// ErrorTypeApplication represents a platform rejection: the HTTP
	// exchange succeeded but the body carried a non-zero errcode
	ErrorTypeApplication
	// ErrorTypeDecode represents a response body that could not be parsed
	ErrorTypeDecode
	// ErrorTypeConfig represents invalid client configuration
	ErrorTypeConfig
	// ErrorTypeCircuitOpen represents circuit breaker open state errors
	ErrorTypeCircuitOpen
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeApplication:
		return "application"
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeConfig:
		return "config"
	case ErrorTypeCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error is the unified error type returned by client operations. It
// carries the error category, the logical operation that failed, and,
// for application errors, the platform result code.
//
// Error implements the error interface and supports wrapping via
// errors.Is() and errors.As().
//
// Example:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    fmt.Printf("Type: %s\n", sdkErr.Type)
//	    fmt.Printf("Operation: %s\n", sdkErr.Op)
//	    fmt.Printf("Retryable: %v\n", sdkErr.Retryable())
//	}
type Error struct {
	// Type categorizes the error for handling decisions
	Type ErrorType `json:"type"`
	// Op is the logical operation that failed, e.g. "token.fetch" or "POST /wxa/getwxacode"
	Op string `json:"op,omitempty"`
	// Code is the platform result code; zero unless Type is ErrorTypeApplication
	Code int `json:"code,omitempty"`
	// Message is a human-readable error description
	Message string `json:"message"`
	// wrapped is the underlying error, if any
	wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Code != 0:
		return fmt.Sprintf("[%s] %s: %s (errcode %d)", e.Type, e.Op, e.Message, e.Code)
	case e.Op != "":
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Op, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("[%s] %s (errcode %d)", e.Type, e.Message, e.Code)
	default:
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is enables errors.Is() checks against the package sentinels without
// requiring callers to know how the sentinel was wrapped.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidConfig:
		return e.Type == ErrorTypeConfig
	case ErrCircuitOpen:
		return e.Type == ErrorTypeCircuitOpen
	}
	if other, ok := target.(*Error); ok {
		return e.Type == other.Type && e.Code == other.Code
	}
	return false
}

// Retryable reports whether retrying the operation may succeed.
// Transport errors are considered transient; application errors are
// retryable only for a small set of platform codes.
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrorTypeTransport:
		return true
	case ErrorTypeApplication:
		return isRetryableCode(e.Code)
	default:
		return false
	}
}

// NewError creates a new Error with the given type, operation and message
func NewError(errType ErrorType, op, message string) *Error {
	return &Error{
		Type:    errType,
		Op:      op,
		Message: message,
	}
}

// WrapError creates a new Error wrapping an underlying cause. The cause
// remains reachable through errors.Is() and errors.As().
func WrapError(errType ErrorType, op string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Type:    errType,
		Op:      op,
		Message: msg,
		wrapped: err,
	}
}

// PlatformError is the raw rejection returned by the platform: a call
// that completed at the HTTP level but came back with a non-zero errcode.
// Its fields map directly onto the errcode/errmsg envelope every
// platform endpoint shares.
//
// Example:
//
//	var pe *sdk.PlatformError
//	if errors.As(err, &pe) {
//	    if pe.Code == sdk.CodeRateLimitReached {
//	        // Back off and retry later
//	    }
//	}
type PlatformError struct {
	// Code is the platform result code from the errcode field
	Code int `json:"errcode"`
	// Message is the platform diagnostic from the errmsg field
	Message string `json:"errmsg"`
}

// Error implements the error interface
func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform errcode %d: %s", e.Code, e.Message)
}

// Retryable reports whether the platform code is transient
func (e *PlatformError) Retryable() bool {
	return isRetryableCode(e.Code)
}

// ToError converts the platform rejection to the unified Error type
func (e *PlatformError) ToError(op string) *Error {
	return &Error{
		Type:    ErrorTypeApplication,
		Op:      op,
		Code:    e.Code,
		Message: e.Message,
		wrapped: e,
	}
}

// NetworkError represents a failure to complete the HTTP exchange:
// connection refused, DNS resolution, TLS handshake, or a broken body
// read. Network errors are always considered transient.
type NetworkError struct {
	// Op is the operation that failed
	Op string
	// Err is the underlying network error
	Err error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying network error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ToError converts to the unified Error type
func (e *NetworkError) ToError() *Error {
	return &Error{
		Type:    ErrorTypeTransport,
		Op:      e.Op,
		Message: e.Error(),
		wrapped: e,
	}
}

// TimeoutError represents an operation that exceeded its deadline
type TimeoutError struct {
	// Op is the operation that timed out
	Op string
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s", e.Op)
}

// Is enables errors.Is(err, ErrTimeout) checks
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ToError converts to the unified Error type
func (e *TimeoutError) ToError() *Error {
	return &Error{
		Type:    ErrorTypeTransport,
		Op:      e.Op,
		Message: e.Error(),
		wrapped: e,
	}
}

// isRetryableCode reports whether a platform result code is transient.
// Only system-busy and quota exhaustion qualify; credential and
// parameter errors never resolve on their own.
func isRetryableCode(code int) bool {
	return code == CodeSystemBusy || code == CodeRateLimitReached
}

// isCredentialCode reports whether a platform result code means the
// current access token is no longer valid
func isCredentialCode(code int) bool {
	return code == CodeInvalidCredential || code == CodeCredentialExpired
}

// IsTransient reports whether an error is worth retrying. This is the
// single classification used by both the token manager and the retry
// interceptor, so the two never disagree about what counts as
// transient.
//
// Transport failures (network errors, timeouts, non-2xx statuses) are
// transient. Application errors are transient only when the platform
// code is in the retryable set. Decode, config and circuit breaker
// errors are never transient.
//
// Example:
//
//	if sdk.IsTransient(err) {
//	    // Schedule a retry with backoff
//	}
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Retryable()
	}

	var platErr *PlatformError
	if errors.As(err, &platErr) {
		return platErr.Retryable()
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}

	return false
}

// IsCredentialError reports whether the platform rejected the call
// because the access token itself is invalid or expired. Callers can
// respond by invalidating the cached token and retrying once.
//
// Example:
//
//	if sdk.IsCredentialError(err) {
//	    client.InvalidateToken()
//	    // Retry the call; a fresh token will be fetched
//	}
func IsCredentialError(err error) bool {
	code, ok := PlatformCode(err)
	return ok && isCredentialCode(code)
}

// PlatformCode extracts the platform result code from an error chain.
// The second return value is false when the error did not originate
// from a platform rejection.
func PlatformCode(err error) (int, bool) {
	var platErr *PlatformError
	if errors.As(err, &platErr) {
		return platErr.Code, true
	}
	var sdkErr *Error
	if errors.As(err, &sdkErr) && sdkErr.Type == ErrorTypeApplication {
		return sdkErr.Code, true
	}
	return 0, false
}
