package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces token keys in Redis
const DefaultKeyPrefix = "weapp:token:"

// RedisStore is a Store backed by Redis. Tokens are stored as JSON with
// a TTL matching their expiry, so Redis evicts dead tokens on its own
// and Load never sees one.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates a Store on top of an existing Redis client.
// The caller keeps ownership of the client and its lifecycle.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
	}
}

// WithKeyPrefix overrides the key namespace. Useful when several
// environments share one Redis database.
func (s *RedisStore) WithKeyPrefix(prefix string) *RedisStore {
	s.keyPrefix = prefix
	return s
}

func (s *RedisStore) key(appID string) string {
	return s.keyPrefix + appID
}

// Load returns the stored token, or ErrTokenNotFound if absent
func (s *RedisStore) Load(ctx context.Context, appID string) (*Token, error) {
	raw, err := s.client.Get(ctx, s.key(appID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	var token Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to decode stored token: %w", err)
	}
	if token.Expired(time.Now()) {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

// Save stores the token with a TTL matching its remaining lifetime.
// Tokens that are already expired are not written.
func (s *RedisStore) Save(ctx context.Context, appID string, token *Token) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.client.Set(ctx, s.key(appID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Delete removes the stored token
func (s *RedisStore) Delete(ctx context.Context, appID string) error {
	if err := s.client.Del(ctx, s.key(appID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
