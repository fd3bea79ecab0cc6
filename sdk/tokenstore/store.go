// Package tokenstore provides pluggable external caches for platform
// access tokens. A store lets several processes share one token: the
// process that refreshes writes the token back, and every other process
// finds it on its next lookup instead of fetching its own.
//
// The platform invalidates the previous token shortly after issuing a
// new one, so deployments running more than one replica should always
// configure a shared store.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned by Load when the store holds no usable
// token for the app ID. A token past its expiry counts as not found.
var ErrTokenNotFound = errors.New("token not found")

// Token is a cached access token together with its absolute expiry
type Token struct {
	// AccessToken is the bearer credential
	AccessToken string `json:"access_token"`
	// ExpiresAt is the instant the platform stops accepting the token
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given instant
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Store is an external token cache keyed by app ID.
//
// Implementations must be safe for concurrent use. Load returns
// ErrTokenNotFound, not a nil token, when nothing usable is stored.
type Store interface {
	// Load returns the stored token for the app ID
	Load(ctx context.Context, appID string) (*Token, error)

	// Save stores the token for the app ID, replacing any previous one
	Save(ctx context.Context, appID string, token *Token) error

	// Delete removes the stored token for the app ID. Deleting a
	// missing token is not an error.
	Delete(ctx context.Context, appID string) error
}
