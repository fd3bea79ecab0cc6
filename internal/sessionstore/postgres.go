package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxtrace "github.com/DataDog/dd-trace-go/contrib/jackc/pgx.v5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB represents the PostgreSQL connection pool backing the session store
type DB struct {
	pool *pgxpool.Pool
	cfg  *PostgresConfig
}

// NewDB creates a new traced database connection pool
func NewDB(cfg *PostgresConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxtrace.NewPoolWithConfig(ctx, poolConfig, pgxtrace.WithService("weapp-bridge-postgres"))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		pool: pool,
		cfg:  cfg,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool exposes the underlying pgx pool so other components, such as a
// shared token store, can reuse the connections.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Health checks the database health
func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Stats returns pool statistics
func (db *DB) Stats() *pgxpool.Stat {
	return db.pool.Stat()
}

// Repository handles session persistence in Postgres
type Repository struct {
	db *DB
}

// NewRepository creates a new session repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Get retrieves a session by openid
func (r *Repository) Get(ctx context.Context, openID string) (*Session, error) {
	query := `
		SELECT open_id, session_key, union_id, created_at, last_active_at, version
		FROM weapp_sessions
		WHERE open_id = $1
	`

	var sess Session
	err := r.db.pool.QueryRow(ctx, query, openID).Scan(
		&sess.OpenID,
		&sess.SessionKey,
		&sess.UnionID,
		&sess.CreatedAt,
		&sess.LastActiveAt,
		&sess.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &sess, nil
}

// Upsert creates or replaces a session. A re-login for the same
// openid rotates the session key and bumps the version.
func (r *Repository) Upsert(ctx context.Context, sess *Session) (int, error) {
	query := `
		INSERT INTO weapp_sessions (open_id, session_key, union_id, last_active_at, version)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, 1)
		ON CONFLICT (open_id) DO UPDATE SET
			session_key = EXCLUDED.session_key,
			union_id = EXCLUDED.union_id,
			last_active_at = CURRENT_TIMESTAMP,
			version = weapp_sessions.version + 1
		RETURNING version
	`

	var version int
	err := r.db.pool.QueryRow(ctx, query, sess.OpenID, sess.SessionKey, sess.UnionID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert session: %w", err)
	}

	return version, nil
}

// Touch updates the activity timestamp of an existing session
func (r *Repository) Touch(ctx context.Context, openID string, at time.Time) error {
	query := `UPDATE weapp_sessions SET last_active_at = $2 WHERE open_id = $1`

	result, err := r.db.pool.Exec(ctx, query, openID, at)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session
func (r *Repository) Delete(ctx context.Context, openID string) error {
	query := `DELETE FROM weapp_sessions WHERE open_id = $1`

	result, err := r.db.pool.Exec(ctx, query, openID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetInactive returns openids of sessions that have been idle past
// the cutoff and are older than minAge, up to limit rows.
func (r *Repository) GetInactive(ctx context.Context, inactiveFor, minAge time.Duration, limit int) ([]string, error) {
	query := `
		SELECT open_id
		FROM weapp_sessions
		WHERE last_active_at < CURRENT_TIMESTAMP - interval '1 second' * $1
		AND created_at < CURRENT_TIMESTAMP - interval '1 second' * $2
		ORDER BY last_active_at
		LIMIT $3
	`

	rows, err := r.db.pool.Query(ctx, query, int(inactiveFor.Seconds()), int(minAge.Seconds()), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get inactive sessions: %w", err)
	}
	defer rows.Close()

	var openIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan openid: %w", err)
		}
		openIDs = append(openIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inactive sessions: %w", err)
	}

	return openIDs, nil
}

// DeleteInactive removes a batch of idle sessions and returns the count
func (r *Repository) DeleteInactive(ctx context.Context, inactiveFor, minAge time.Duration, batchSize int) (int, error) {
	query := `
		DELETE FROM weapp_sessions
		WHERE open_id IN (
			SELECT open_id
			FROM weapp_sessions
			WHERE last_active_at < CURRENT_TIMESTAMP - interval '1 second' * $1
			AND created_at < CURRENT_TIMESTAMP - interval '1 second' * $2
			ORDER BY last_active_at
			LIMIT $3
		)
	`

	result, err := r.db.pool.Exec(ctx, query, int(inactiveFor.Seconds()), int(minAge.Seconds()), batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// Count returns the number of stored sessions
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM weapp_sessions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}
