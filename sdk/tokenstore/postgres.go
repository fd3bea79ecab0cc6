package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the table PostgresStore reads and writes. Run it once
// at deploy time, or call EnsureSchema from application startup.
const Schema = `
CREATE TABLE IF NOT EXISTS weapp_tokens (
    app_id       TEXT PRIMARY KEY,
    access_token TEXT NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore is a Store backed by PostgreSQL. It suits deployments
// that already run Postgres and do not want a Redis dependency just for
// token sharing. Expired rows are ignored on Load and overwritten on
// the next Save.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store on top of an existing connection
// pool. The caller keeps ownership of the pool and its lifecycle.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the weapp_tokens table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create weapp_tokens table: %w", err)
	}
	return nil
}

// Load returns the stored token, or ErrTokenNotFound if absent or expired
func (s *PostgresStore) Load(ctx context.Context, appID string) (*Token, error) {
	query := `
		SELECT access_token, expires_at
		FROM weapp_tokens
		WHERE app_id = $1 AND expires_at > now()`

	var token Token
	err := s.pool.QueryRow(ctx, query, appID).Scan(&token.AccessToken, &token.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return &token, nil
}

// Save stores the token, replacing any previous one for the app ID
func (s *PostgresStore) Save(ctx context.Context, appID string, token *Token) error {
	if token.Expired(time.Now()) {
		return nil
	}

	query := `
		INSERT INTO weapp_tokens (app_id, access_token, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (app_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`

	if _, err := s.pool.Exec(ctx, query, appID, token.AccessToken, token.ExpiresAt); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Delete removes the stored token
func (s *PostgresStore) Delete(ctx context.Context, appID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM weapp_tokens WHERE app_id = $1`, appID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
