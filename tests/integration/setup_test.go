package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/featherline/weapp-bridge/internal/relay"
	"github.com/featherline/weapp-bridge/internal/sessionstore"
	"github.com/featherline/weapp-bridge/tests/testutil"
)

var (
	testContainers *testutil.TestContainers
	testDB         *sessionstore.DB
	testRepo       *sessionstore.Repository
	testCache      *sessionstore.RedisCache
	testStore      *sessionstore.Store
	testRelay      *relay.Client
)

// TestMain sets up and tears down test infrastructure
func TestMain(m *testing.M) {
	ctx := context.Background()

	tc, err := testutil.StartContainers(ctx)
	if err != nil {
		fmt.Printf("Failed to start containers: %v\n", err)
		os.Exit(1)
	}
	testContainers = tc

	if err := initSchema(ctx, tc.PostgresURL); err != nil {
		fmt.Printf("Failed to initialize schema: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}

	testDB, err = sessionstore.NewDB(&sessionstore.PostgresConfig{
		Host:            tc.Postgres.Host,
		Port:            tc.Postgres.Port,
		User:            testutil.PostgresUser,
		Password:        testutil.PostgresPassword,
		Database:        testutil.PostgresDB,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	})
	if err != nil {
		fmt.Printf("Failed to create database connection: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}
	testRepo = sessionstore.NewRepository(testDB)

	testCache, err = sessionstore.NewRedisCache(&sessionstore.RedisConfig{
		Host:          tc.Redis.Host,
		Port:          tc.Redis.Port,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		PoolSize:      10,
		SessionTTL:    5 * time.Minute,
		TouchInterval: 100 * time.Millisecond,
	})
	if err != nil {
		fmt.Printf("Failed to create cache connection: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}
	testStore = sessionstore.NewStore(testCache, testRepo)

	testRelay, err = relay.NewClient(&relay.Config{
		URL:                   tc.NATSURL,
		Name:                  "integration-test",
		StreamName:            "TEST_WEAPP_EVENTS",
		StreamMaxAge:          time.Hour,
		StreamMaxBytes:        64 << 20,
		StreamMaxMsgs:         100000,
		StreamMaxMsgSize:      1 << 20,
		StreamReplicas:        1,
		DLQStreamName:         "TEST_WEAPP_EVENTS_DLQ",
		ConsumerName:          "test-relay",
		ConsumerAckWait:       30 * time.Second,
		ConsumerMaxDeliver:    5,
		ConsumerMaxAckPending: 100,
		BatchSize:             10,
		BatchTimeout:          500 * time.Millisecond,
		Concurrency:           4,
		MetricsInterval:       time.Minute,
		DLQMaxRetries:         3,
		DLQRetryInterval:      time.Second,
	})
	if err != nil {
		fmt.Printf("Failed to create relay connection: %v\n", err)
		tc.Cleanup(ctx)
		os.Exit(1)
	}

	code := m.Run()

	testRelay.Close()
	testCache.Close()
	testDB.Close()
	tc.Cleanup(ctx)

	os.Exit(code)
}

// initSchema creates the weapp_sessions table
func initSchema(ctx context.Context, connStr string) error {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	query := `
		CREATE TABLE IF NOT EXISTS weapp_sessions (
			open_id VARCHAR(128) PRIMARY KEY,
			session_key VARCHAR(64) NOT NULL,
			union_id VARCHAR(128) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_active_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_weapp_sessions_last_active ON weapp_sessions(last_active_at);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// resetSessions clears session state from both layers
func resetSessions(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	if _, err := testDB.Pool().Exec(ctx, "TRUNCATE TABLE weapp_sessions"); err != nil {
		t.Fatalf("Failed to reset database: %v", err)
	}
	if err := testCache.Client().FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to reset cache: %v", err)
	}
}
