// Package sessionstore persists Mini Program login sessions. Redis is
// the hot path keyed by openid; Postgres is the durable copy written
// off the request path and swept by the janitor.
package sessionstore

import (
	"errors"
	"fmt"
	"time"
)

// Session is the server-side state established by a code2session
// exchange. SessionKey is the decryption key for user data payloads
// and must never appear in logs.
type Session struct {
	OpenID       string    `json:"open_id"`
	SessionKey   string    `json:"session_key"`
	UnionID      string    `json:"union_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Version      int       `json:"version,omitempty"`
}

// InactiveFor reports how long the session has gone without a touch.
func (s *Session) InactiveFor(now time.Time) time.Duration {
	return now.Sub(s.LastActiveAt)
}

// Age reports how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Common errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

// StoreError wraps a backend failure with a retryability hint so
// callers can tell a transient Redis hiccup from a hard failure.
type StoreError struct {
	Message    string
	Retryable  bool
	Underlying error
}

func (e *StoreError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Underlying
}

// NewStoreError creates a new store error
func NewStoreError(message string, retryable bool) *StoreError {
	return &StoreError{Message: message, Retryable: retryable}
}

// WithError attaches the underlying error
func (e *StoreError) WithError(err error) *StoreError {
	e.Underlying = err
	return e
}

// IsRetryable reports whether err is a retryable store error.
func IsRetryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
