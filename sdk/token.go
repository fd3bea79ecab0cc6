package sdk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/featherline/weapp-bridge/sdk/tokenstore"
)

// TokenFetcher obtains a fresh access token from the platform.
// The returned lifetime is the validity granted by the platform,
// typically two hours.
//
// The SDK provides an implementation backed by the /cgi-bin/token
// endpoint; tests substitute their own.
type TokenFetcher interface {
	FetchToken(ctx context.Context) (token string, lifetime time.Duration, err error)
}

// cachedToken is an immutable cache entry. A new entry replaces the
// old one wholesale, so readers never see a half-written token.
type cachedToken struct {
	token     string
	expiresAt time.Time
}

// usable reports whether the token can still be handed out at the given
// instant. A token inside the refresh buffer counts as stale: when
// now+buffer equals expiresAt the token is already unusable, which
// keeps a token from being attached to a request that arrives at the
// platform after expiry.
func (t *cachedToken) usable(now time.Time, buffer time.Duration) bool {
	return now.Add(buffer).Before(t.expiresAt)
}

// inflightFetch is the slot a fetch in progress publishes itself
// through. Waiters block on done, which is closed exactly once after
// token and err are set.
type inflightFetch struct {
	done  chan struct{}
	token string
	err   error
}

// wait blocks until the fetch completes or the caller's context ends.
// Giving up does not cancel the fetch; it keeps running for the
// benefit of other waiters.
func (f *inflightFetch) wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.token, f.err
	case <-ctx.Done():
		return "", WrapError(ErrorTypeTransport, "token.wait", ctx.Err())
	}
}

// TokenManagerConfig configures a TokenManager
type TokenManagerConfig struct {
	// AppID labels observer callbacks and keys the external store
	AppID AppID

	// Fetcher obtains fresh tokens. Required.
	Fetcher TokenFetcher

	// RefreshBuffer is subtracted from the token lifetime; a token
	// inside the buffer is refreshed instead of handed out.
	// Default: 5m
	RefreshBuffer time.Duration

	// MaxAttempts bounds fetch attempts, first try included. Zero
	// means fetching is disabled and GetToken fails with a
	// configuration error.
	MaxAttempts int

	// Strategy paces retries between fetch attempts.
	// If nil, exponential backoff with jitter is used.
	Strategy RetryStrategy

	// Store is an optional external token cache shared between processes
	Store tokenstore.Store

	// Observer receives refresh and cache events.
	// If nil, NoopObserver is used.
	Observer Observer
}

// TokenManager caches the platform access token and refreshes it on
// demand. Any number of goroutines may call GetToken concurrently; at
// most one fetch is in flight at a time, and every caller that arrives
// while it runs receives its result.
//
// The manager is created for you by NewClient. Construct one directly
// only when you need token handling without the rest of the client.
//
// Example:
//
//	manager, err := sdk.NewTokenManager(sdk.TokenManagerConfig{
//	    AppID:       "wx1234567890abcdef",
//	    Fetcher:     fetcher,
//	    MaxAttempts: 3,
//	})
//	token, err := manager.GetToken(ctx)
type TokenManager struct {
	appID    string
	fetcher  TokenFetcher
	buffer   time.Duration
	attempts int
	store    tokenstore.Store
	observer Observer
	executor *retryExecutor

	cached   atomic.Pointer[cachedToken]
	mu       sync.Mutex
	inflight *inflightFetch

	// now is swappable for tests
	now func() time.Time
}

// NewTokenManager creates a token manager. The fetcher is required;
// everything else has defaults.
func NewTokenManager(config TokenManagerConfig) (*TokenManager, error) {
	if config.Fetcher == nil {
		return nil, NewError(ErrorTypeConfig, "token.manager", "token fetcher is required")
	}
	if config.RefreshBuffer < 0 {
		return nil, NewError(ErrorTypeConfig, "token.manager", "refresh buffer must not be negative")
	}
	if config.MaxAttempts < 0 {
		return nil, NewError(ErrorTypeConfig, "token.manager", "max attempts must not be negative")
	}
	observer := config.Observer
	if observer == nil {
		observer = &NoopObserver{}
	}

	return &TokenManager{
		appID:    string(config.AppID),
		fetcher:  config.Fetcher,
		buffer:   config.RefreshBuffer,
		attempts: config.MaxAttempts,
		store:    config.Store,
		observer: observer,
		executor: newRetryExecutor(config.Strategy, observer),
		now:      time.Now,
	}, nil
}

// GetToken returns a usable access token, fetching a fresh one if the
// cache is empty or inside the refresh buffer. Concurrent callers
// share one fetch.
//
// The caller's context bounds only the wait: a fetch that has started
// always runs to completion so its result can serve later callers.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	// Fast path: lock-free read of the current token
	if tok := m.cached.Load(); tok != nil && tok.usable(m.now(), m.buffer) {
		m.observer.OnTokenCacheHit(m.appID)
		return tok.token, nil
	}

	m.mu.Lock()

	// Double-check: another goroutine may have refreshed while we
	// waited for the lock
	if tok := m.cached.Load(); tok != nil && tok.usable(m.now(), m.buffer) {
		m.mu.Unlock()
		m.observer.OnTokenCacheHit(m.appID)
		return tok.token, nil
	}

	// Join the fetch already in flight. The slot is captured before
	// the lock is released, so its completion cannot be missed.
	if f := m.inflight; f != nil {
		m.mu.Unlock()
		return f.wait(ctx)
	}

	// No fetch in flight: become the owner
	f := &inflightFetch{done: make(chan struct{})}
	m.inflight = f
	m.mu.Unlock()

	m.observer.OnTokenCacheMiss(m.appID)
	go m.runFetch(f)

	return f.wait(ctx)
}

// Invalidate drops the cached token so the next GetToken fetches a
// fresh one. Calling it twice is the same as calling it once, and a
// fetch already in flight is not interrupted. Use it when the platform
// rejects a token before its expected expiry.
func (m *TokenManager) Invalidate() {
	m.cached.Store(nil)

	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.store.Delete(ctx, m.appID)
	}
}

// Cached returns the cached token and its expiry without triggering a
// fetch. ok is false when the cache is empty or the token is inside
// the refresh buffer.
func (m *TokenManager) Cached() (token string, expiresAt time.Time, ok bool) {
	tok := m.cached.Load()
	if tok == nil || !tok.usable(m.now(), m.buffer) {
		return "", time.Time{}, false
	}
	return tok.token, tok.expiresAt, true
}

// runFetch performs the fetch and publishes the result. It runs on a
// background context so that callers abandoning the wait never cancel
// work other callers depend on; the HTTP client's own timeout still
// bounds the exchange.
func (m *TokenManager) runFetch(f *inflightFetch) {
	ctx := context.Background()

	token, expiresAt, err := m.fetch(ctx)
	if err == nil {
		m.cached.Store(&cachedToken{token: token, expiresAt: expiresAt})
		if m.store != nil {
			// Best effort: a failed store write costs other processes
			// a fetch, nothing more
			_ = m.store.Save(ctx, m.appID, &tokenstore.Token{
				AccessToken: token,
				ExpiresAt:   expiresAt,
			})
		}
	}

	f.token, f.err = token, err
	close(f.done)

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()
}

// fetch obtains a token, preferring one another process already stored
func (m *TokenManager) fetch(ctx context.Context) (string, time.Time, error) {
	if m.store != nil {
		if stored, err := m.store.Load(ctx, m.appID); err == nil {
			cached := &cachedToken{token: stored.AccessToken, expiresAt: stored.ExpiresAt}
			if cached.usable(m.now(), m.buffer) {
				return stored.AccessToken, stored.ExpiresAt, nil
			}
		}
	}

	fetchedAt := m.now()
	var token string
	var lifetime time.Duration
	err := m.executor.Execute(ctx, "token.fetch", m.attempts, func() error {
		t, l, err := m.fetcher.FetchToken(ctx)
		if err != nil {
			return err
		}
		token, lifetime = t, l
		return nil
	})
	if err != nil {
		m.observer.OnTokenRefresh(m.appID, 0, err)
		return "", time.Time{}, err
	}

	m.observer.OnTokenRefresh(m.appID, lifetime, nil)
	return token, fetchedAt.Add(lifetime), nil
}
