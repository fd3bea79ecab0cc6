package sdk

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/featherline/weapp-bridge/sdk/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher scripts fetch outcomes for token manager tests
type fakeFetcher struct {
	mu       sync.Mutex
	calls    atomic.Int32
	results  []fakeFetchResult
	lifetime time.Duration
	token    string
}

type fakeFetchResult struct {
	token    string
	lifetime time.Duration
	err      error
}

func (f *fakeFetcher) FetchToken(ctx context.Context) (string, time.Duration, error) {
	n := int(f.calls.Add(1))

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) > 0 {
		result := f.results[0]
		if len(f.results) > 1 {
			f.results = f.results[1:]
		}
		return result.token, result.lifetime, result.err
	}

	token := f.token
	if token == "" {
		token = "token-" + string(rune('0'+n))
	}
	lifetime := f.lifetime
	if lifetime == 0 {
		lifetime = 2 * time.Hour
	}
	return token, lifetime, nil
}

func newTestManager(t *testing.T, fetcher TokenFetcher, opts ...func(*TokenManagerConfig)) *TokenManager {
	t.Helper()

	config := TokenManagerConfig{
		AppID:         "wx1234567890abcdef",
		Fetcher:       fetcher,
		RefreshBuffer: 5 * time.Minute,
		MaxAttempts:   3,
		Strategy:      NewConstantBackoff(time.Millisecond),
	}
	for _, opt := range opts {
		opt(&config)
	}

	manager, err := NewTokenManager(config)
	require.NoError(t, err)
	return manager
}

func TestTokenManager_SingleFlight(t *testing.T) {
	fetcher := &fakeFetcher{token: "shared-token"}
	manager := newTestManager(t, fetcher)

	const goroutines = 50
	var wg sync.WaitGroup
	tokens := make([]string, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = manager.GetToken(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load(), "concurrent callers must share one fetch")
	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared-token", tokens[i])
	}
}

func TestTokenManager_CacheReuse(t *testing.T) {
	fetcher := &fakeFetcher{token: "cached-token"}
	manager := newTestManager(t, fetcher)

	first, err := manager.GetToken(context.Background())
	require.NoError(t, err)

	second, err := manager.GetToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), fetcher.calls.Load(), "second call must be served from cache")
}

func TestTokenManager_BoundaryExpiry(t *testing.T) {
	// A token whose expiry equals now+buffer is already stale: the
	// boundary is inclusive.
	buffer := 5 * time.Minute
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fetcher := &fakeFetcher{token: "fresh-token"}
	manager := newTestManager(t, fetcher)
	manager.now = func() time.Time { return base }

	manager.cached.Store(&cachedToken{token: "stale-token", expiresAt: base.Add(buffer)})

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, int32(1), fetcher.calls.Load(), "boundary token must trigger a refresh")

	// One nanosecond of slack and the cached token is still usable
	manager.cached.Store(&cachedToken{token: "alive-token", expiresAt: base.Add(buffer + time.Nanosecond)})
	token, err = manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alive-token", token)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestTokenManager_RetryThenSuccess(t *testing.T) {
	transient := (&NetworkError{Op: "token.fetch", Err: assert.AnError}).ToError()
	fetcher := &fakeFetcher{
		results: []fakeFetchResult{
			{err: transient},
			{err: transient},
			{token: "third-time-lucky", lifetime: time.Hour},
		},
	}
	manager := newTestManager(t, fetcher)

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "third-time-lucky", token)
	assert.Equal(t, int32(3), fetcher.calls.Load())
}

func TestTokenManager_NonRetryableShortCircuit(t *testing.T) {
	rejection := (&PlatformError{Code: CodeInvalidAppID, Message: "invalid appid"}).ToError("token.fetch")
	fetcher := &fakeFetcher{
		results: []fakeFetchResult{{err: rejection}},
	}
	manager := newTestManager(t, fetcher)

	_, err := manager.GetToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load(), "fatal platform codes must not be retried")

	code, ok := PlatformCode(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidAppID, code)
}

func TestTokenManager_ZeroAttemptsIsConfigError(t *testing.T) {
	fetcher := &fakeFetcher{}
	manager := newTestManager(t, fetcher, func(c *TokenManagerConfig) {
		c.MaxAttempts = 0
	})

	_, err := manager.GetToken(context.Background())
	require.Error(t, err)

	var sdkErr *Error
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, ErrorTypeConfig, sdkErr.Type)
	assert.Equal(t, int32(0), fetcher.calls.Load(), "zero attempts must not reach the fetcher")
}

func TestTokenManager_InvalidateIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{token: "token-a"}
	manager := newTestManager(t, fetcher)

	// Invalidate on an empty cache is a no-op
	manager.Invalidate()
	manager.Invalidate()

	_, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	manager.Invalidate()
	manager.Invalidate()

	_, err = manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load(), "invalidation must force exactly one new fetch")
}

func TestTokenManager_SharedFailure(t *testing.T) {
	rejection := (&PlatformError{Code: CodeInvalidSecret, Message: "invalid secret"}).ToError("token.fetch")
	fetcher := &fakeFetcher{
		results: []fakeFetchResult{{err: rejection}},
	}
	manager := newTestManager(t, fetcher)

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = manager.GetToken(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	for i := 0; i < goroutines; i++ {
		require.Error(t, errs[i], "every waiter must observe the terminal failure")
		code, ok := PlatformCode(errs[i])
		require.True(t, ok)
		assert.Equal(t, CodeInvalidSecret, code)
	}
}

func TestTokenManager_WaiterContextDoesNotCancelFetch(t *testing.T) {
	release := make(chan struct{})
	fetcher := &blockingFetcher{release: release, token: "slow-token"}
	manager := newTestManager(t, fetcher)

	// First caller becomes the owner and blocks in the fetch
	ownerDone := make(chan struct{})
	go func() {
		defer close(ownerDone)
		_, _ = manager.GetToken(context.Background())
	}()

	require.Eventually(t, func() bool { return fetcher.started.Load() }, time.Second, time.Millisecond)

	// A waiter with an already-expired context gives up immediately
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := manager.GetToken(ctx)
	require.Error(t, err)
	assert.True(t, IsTransient(err), "abandoned wait surfaces as a transport error")

	// The fetch still completes and serves later callers
	close(release)
	<-ownerDone

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "slow-token", token)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

// blockingFetcher parks until released, to hold a fetch in flight
type blockingFetcher struct {
	release <-chan struct{}
	token   string
	started atomic.Bool
	calls   atomic.Int32
}

func (f *blockingFetcher) FetchToken(ctx context.Context) (string, time.Duration, error) {
	f.calls.Add(1)
	f.started.Store(true)
	<-f.release
	return f.token, time.Hour, nil
}

func TestTokenManager_StoreReadThrough(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	err := store.Save(context.Background(), "wx1234567890abcdef", &tokenstore.Token{
		AccessToken: "stored-elsewhere",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	fetcher := &fakeFetcher{}
	manager := newTestManager(t, fetcher, func(c *TokenManagerConfig) {
		c.Store = store
	})

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored-elsewhere", token)
	assert.Equal(t, int32(0), fetcher.calls.Load(), "a usable stored token must suppress the fetch")
}

func TestTokenManager_StoreWriteThrough(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	fetcher := &fakeFetcher{token: "fresh-token", lifetime: time.Hour}
	manager := newTestManager(t, fetcher, func(c *TokenManagerConfig) {
		c.Store = store
	})

	_, err := manager.GetToken(context.Background())
	require.NoError(t, err)

	stored, err := store.Load(context.Background(), "wx1234567890abcdef")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", stored.AccessToken)

	// Invalidate clears the store entry as well
	manager.Invalidate()
	_, err = store.Load(context.Background(), "wx1234567890abcdef")
	assert.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
}

func TestTokenManager_CachedAccessor(t *testing.T) {
	fetcher := &fakeFetcher{token: "visible-token", lifetime: time.Hour}
	manager := newTestManager(t, fetcher)

	_, _, ok := manager.Cached()
	assert.False(t, ok, "empty cache reports no token")

	_, err := manager.GetToken(context.Background())
	require.NoError(t, err)

	token, expiresAt, ok := manager.Cached()
	require.True(t, ok)
	assert.Equal(t, "visible-token", token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)
}
