// Package testutil spins up the backing services integration tests
// need: PostgreSQL, Redis, and NATS with JetStream.
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Endpoint is a parsed host/port pair for one backing service
type Endpoint struct {
	Host string
	Port int
}

// TestContainers holds all test containers
type TestContainers struct {
	PostgresContainer testcontainers.Container
	RedisContainer    testcontainers.Container
	NATSContainer     testcontainers.Container

	PostgresURL string
	Postgres    Endpoint
	Redis       Endpoint
	NATSURL     string
}

// PostgresUser, PostgresPassword and PostgresDB are the credentials
// the test database is created with.
const (
	PostgresUser     = "weapp"
	PostgresPassword = "weapp"
	PostgresDB       = "weapp_bridge_test"
)

// StartContainers starts all required containers for testing
func StartContainers(ctx context.Context) (*TestContainers, error) {
	tc := &TestContainers{}

	// PostgreSQL
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase(PostgresDB),
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}
	tc.PostgresContainer = pgContainer

	tc.Postgres, err = endpoint(ctx, pgContainer, "5432")
	if err != nil {
		return nil, err
	}
	tc.PostgresURL = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		PostgresUser, PostgresPassword, tc.Postgres.Host, tc.Postgres.Port, PostgresDB)

	// Redis
	redisContainer, err := redis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}
	tc.RedisContainer = redisContainer

	tc.Redis, err = endpoint(ctx, redisContainer, "6379")
	if err != nil {
		return nil, err
	}

	// NATS with JetStream
	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp", "6222/tcp", "8222/tcp"},
			WaitingFor: wait.ForLog("Server is ready").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start nats container: %w", err)
	}
	tc.NATSContainer = natsContainer

	natsEndpoint, err := endpoint(ctx, natsContainer, "4222")
	if err != nil {
		return nil, err
	}
	tc.NATSURL = fmt.Sprintf("nats://%s:%d", natsEndpoint.Host, natsEndpoint.Port)

	return tc, nil
}

func endpoint(ctx context.Context, c testcontainers.Container, port nat.Port) (Endpoint, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to get mapped port %s: %w", port, err)
	}

	p, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid mapped port %q: %w", mapped.Port(), err)
	}

	return Endpoint{Host: host, Port: p}, nil
}

// ParseURL splits a service URL into an Endpoint
func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to parse URL: %w", err)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid port in %q: %w", raw, err)
	}

	return Endpoint{Host: u.Hostname(), Port: port}, nil
}

// Cleanup terminates all containers
func (tc *TestContainers) Cleanup(ctx context.Context) error {
	var errs []error

	for _, c := range []testcontainers.Container{
		tc.PostgresContainer,
		tc.RedisContainer,
		tc.NATSContainer,
	} {
		if c == nil {
			continue
		}
		if err := c.Terminate(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
