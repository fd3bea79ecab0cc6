package tokenstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppID = "wx1234567890abcdef"

func TestToken_Expired(t *testing.T) {
	now := time.Now()
	token := &Token{AccessToken: "abc", ExpiresAt: now.Add(time.Hour)}

	assert.False(t, token.Expired(now))
	assert.True(t, token.Expired(now.Add(time.Hour)), "expiry instant itself is expired")
	assert.True(t, token.Expired(now.Add(2*time.Hour)))
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Load(ctx, testAppID)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	saved := &Token{AccessToken: "token-1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(ctx, testAppID, saved))

	got, err := store.Load(ctx, testAppID)
	require.NoError(t, err)
	assert.Equal(t, saved.AccessToken, got.AccessToken)

	// The store hands out copies, not its internal pointer
	got.AccessToken = "mutated"
	again, err := store.Load(ctx, testAppID)
	require.NoError(t, err)
	assert.Equal(t, "token-1", again.AccessToken)
}

func TestMemoryStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, testAppID, &Token{AccessToken: "old", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Save(ctx, testAppID, &Token{AccessToken: "new", ExpiresAt: time.Now().Add(time.Hour)}))

	got, err := store.Load(ctx, testAppID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ExpiredEvictedOnLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	current := time.Now()
	store.now = func() time.Time { return current }

	require.NoError(t, store.Save(ctx, testAppID, &Token{AccessToken: "t", ExpiresAt: current.Add(time.Minute)}))

	got, err := store.Load(ctx, testAppID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.AccessToken)

	current = current.Add(2 * time.Minute)

	_, err = store.Load(ctx, testAppID)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Delete(ctx, testAppID), "deleting a missing token is not an error")

	require.NoError(t, store.Save(ctx, testAppID, &Token{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Delete(ctx, testAppID))

	_, err := store.Load(ctx, testAppID)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryStore_AppsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, "wxaaaaaaaaaaaaaaaa", &Token{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Save(ctx, "wxbbbbbbbbbbbbbbbb", &Token{AccessToken: "b", ExpiresAt: time.Now().Add(time.Hour)}))

	require.NoError(t, store.Delete(ctx, "wxaaaaaaaaaaaaaaaa"))

	got, err := store.Load(ctx, "wxbbbbbbbbbbbbbbbb")
	require.NoError(t, err)
	assert.Equal(t, "b", got.AccessToken)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.Save(ctx, testAppID, &Token{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)})
				_, _ = store.Load(ctx, testAppID)
			}
		}()
	}
	wg.Wait()

	got, err := store.Load(ctx, testAppID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.AccessToken)
}
