package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "weapp:session:"

// RedisCache holds the hot copy of each session, keyed by openid
type RedisCache struct {
	client *redis.Client
	config *RedisConfig
}

// NewRedisCache creates a new Redis session cache
func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Address(),
		Password:        config.Password,
		DB:              config.DB,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		PoolSize:        config.PoolSize,
		MinIdleConns:    config.MinIdleConns,
		ConnMaxIdleTime: config.MaxIdleTime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		config: config,
	}, nil
}

func sessionKey(openID string) string {
	return sessionKeyPrefix + openID
}

// Get retrieves a session by openid
func (r *RedisCache) Get(ctx context.Context, openID string) (*Session, error) {
	val, err := r.client.Get(ctx, sessionKey(openID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, NewStoreError("failed to get session", true).WithError(err)
	}

	var sess Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, NewStoreError("corrupt session payload", false).WithError(err)
	}
	return &sess, nil
}

// Save stores a session with the configured TTL
func (r *RedisCache) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return NewStoreError("failed to encode session", false).WithError(err)
	}

	if err := r.client.Set(ctx, sessionKey(sess.OpenID), data, r.config.SessionTTL).Err(); err != nil {
		return NewStoreError("failed to save session", true).WithError(err)
	}
	return nil
}

// Touch refreshes the session's activity timestamp and TTL. Updates
// are throttled by TouchInterval so hot sessions do not hammer Redis;
// the returned bool reports whether a write actually happened.
func (r *RedisCache) Touch(ctx context.Context, openID string, now time.Time) (bool, error) {
	sess, err := r.Get(ctx, openID)
	if err != nil {
		return false, err
	}

	if now.Sub(sess.LastActiveAt) < r.config.TouchInterval {
		return false, nil
	}

	sess.LastActiveAt = now
	if err := r.Save(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a session
func (r *RedisCache) Delete(ctx context.Context, openID string) error {
	result := r.client.Del(ctx, sessionKey(openID))
	if err := result.Err(); err != nil {
		return NewStoreError("failed to delete session", true).WithError(err)
	}
	if result.Val() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// TTL returns the remaining lifetime of a session key
func (r *RedisCache) TTL(ctx context.Context, openID string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, sessionKey(openID)).Result()
	if err != nil {
		return 0, NewStoreError("failed to get TTL", true).WithError(err)
	}
	if ttl == -2 {
		return 0, ErrSessionNotFound
	}
	if ttl == -1 {
		return 0, nil
	}
	return ttl, nil
}

// Ping checks if the cache is healthy
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewStoreError("ping failed", false).WithError(err)
	}
	return nil
}

// Client exposes the underlying Redis client so other components, such
// as a shared token store, can reuse the connection pool.
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Stats returns Redis connection pool stats
func (r *RedisCache) Stats() *redis.PoolStats {
	if r.client != nil {
		return r.client.PoolStats()
	}
	return nil
}

// Close closes the cache connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
