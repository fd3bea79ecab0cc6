package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/featherline/weapp-bridge/internal/telemetry"
)

// Store is the read-through session store: Redis first, Postgres on a
// miss, with the Redis copy rehydrated from the durable row.
type Store struct {
	cache *RedisCache
	repo  *Repository
}

// NewStore creates a layered session store
func NewStore(cache *RedisCache, repo *Repository) *Store {
	return &Store{cache: cache, repo: repo}
}

// Get looks up a session by openid
func (s *Store) Get(ctx context.Context, openID string) (*Session, error) {
	start := time.Now()

	sess, err := s.cache.Get(ctx, openID)
	if err == nil {
		telemetry.RecordSessionCacheHit()
		telemetry.RecordSessionOperation("get", "hit", time.Since(start))
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) && !IsRetryable(err) {
		telemetry.RecordSessionOperation("get", "error", time.Since(start))
		return nil, err
	}
	telemetry.RecordSessionCacheMiss()

	sess, err = s.repo.Get(ctx, openID)
	if err != nil {
		telemetry.RecordSessionOperation("get", "miss", time.Since(start))
		return nil, err
	}

	// Rehydrate the hot copy. The durable row is authoritative, so a
	// failed rehydrate is logged and swallowed.
	if err := s.cache.Save(ctx, sess); err != nil {
		telemetry.WithError(err).Warn("failed to rehydrate session cache")
	}

	telemetry.RecordSessionOperation("get", "rehydrated", time.Since(start))
	return sess, nil
}

// Put writes a session to both layers
func (s *Store) Put(ctx context.Context, sess *Session) error {
	start := time.Now()

	version, err := s.repo.Upsert(ctx, sess)
	if err != nil {
		telemetry.RecordSessionOperation("put", "error", time.Since(start))
		return err
	}
	sess.Version = version

	if err := s.cache.Save(ctx, sess); err != nil {
		telemetry.RecordSessionOperation("put", "error", time.Since(start))
		return err
	}

	telemetry.RecordSessionOperation("put", "ok", time.Since(start))
	return nil
}

// Touch marks the session active. The Redis layer throttles writes;
// the Postgres row is only updated when Redis actually wrote.
func (s *Store) Touch(ctx context.Context, openID string) error {
	now := time.Now().UTC()

	wrote, err := s.cache.Touch(ctx, openID, now)
	if err != nil {
		return err
	}
	if !wrote {
		return nil
	}

	if err := s.repo.Touch(ctx, openID, now); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}

// SaveToCache writes only the hot copy. Callers that queue the
// durable write elsewhere use this to keep the login path off the
// database.
func (s *Store) SaveToCache(ctx context.Context, sess *Session) error {
	start := time.Now()
	if err := s.cache.Save(ctx, sess); err != nil {
		telemetry.RecordSessionOperation("cache_save", "error", time.Since(start))
		return err
	}
	telemetry.RecordSessionOperation("cache_save", "ok", time.Since(start))
	return nil
}

// Delete removes a session from both layers
func (s *Store) Delete(ctx context.Context, openID string) error {
	cacheErr := s.cache.Delete(ctx, openID)
	if cacheErr != nil && !errors.Is(cacheErr, ErrSessionNotFound) {
		return cacheErr
	}

	repoErr := s.repo.Delete(ctx, openID)
	if repoErr != nil && !errors.Is(repoErr, ErrSessionNotFound) {
		return repoErr
	}

	if errors.Is(cacheErr, ErrSessionNotFound) && errors.Is(repoErr, ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return nil
}

// Health checks both backends and refreshes the connection gauges
func (s *Store) Health(ctx context.Context) error {
	if err := s.cache.Ping(ctx); err != nil {
		return err
	}
	if err := s.repo.db.Health(ctx); err != nil {
		return err
	}

	if stats := s.cache.Stats(); stats != nil {
		telemetry.UpdateRedisConnections(int(stats.TotalConns))
	}
	if stats := s.repo.db.Stats(); stats != nil {
		telemetry.UpdateDatabaseConnections(int(stats.TotalConns()))
	}
	return nil
}
