package sessionstore

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RedisConfig holds connection settings for the hot session cache
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	MaxIdleTime     time.Duration

	// SessionTTL bounds how long a session survives in Redis without
	// a touch. TouchInterval throttles activity updates so a chatty
	// client does not rewrite the key on every request.
	SessionTTL    time.Duration
	TouchInterval time.Duration
}

// NewRedisConfigFromEnv creates a RedisConfig from environment variables
func NewRedisConfigFromEnv() (*RedisConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("REDIS_PORT", "6379"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}

	db, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	poolSize, err := strconv.Atoi(getEnvOrDefault("REDIS_POOL_SIZE", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_POOL_SIZE: %w", err)
	}

	minIdleConns, err := strconv.Atoi(getEnvOrDefault("REDIS_MIN_IDLE_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_MIN_IDLE_CONNS: %w", err)
	}

	sessionTTL, err := parseDuration(getEnvOrDefault("SESSION_TTL", "72h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	touchInterval, err := parseDuration(getEnvOrDefault("SESSION_TOUCH_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TOUCH_INTERVAL: %w", err)
	}

	return &RedisConfig{
		Host:            getEnvOrDefault("REDIS_HOST", "localhost"),
		Port:            port,
		Password:        os.Getenv("REDIS_PASSWORD"),
		DB:              db,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        poolSize,
		MinIdleConns:    minIdleConns,
		MaxIdleTime:     5 * time.Minute,
		SessionTTL:      sessionTTL,
		TouchInterval:   touchInterval,
	}, nil
}

// Address returns the Redis server address
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PostgresConfig holds connection settings for the durable session store
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPostgresConfigFromEnv creates a PostgresConfig from environment variables
func NewPostgresConfigFromEnv() (*PostgresConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}

	maxConns, err := strconv.Atoi(getEnvOrDefault("POSTGRES_MAX_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_MAX_CONNS: %w", err)
	}

	minConns, err := strconv.Atoi(getEnvOrDefault("POSTGRES_MIN_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_MIN_CONNS: %w", err)
	}

	return &PostgresConfig{
		Host:            getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("POSTGRES_USER", "weapp"),
		Password:        getEnvOrDefault("POSTGRES_PASSWORD", "weapp"),
		Database:        getEnvOrDefault("POSTGRES_DB", "weapp_bridge"),
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}, nil
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// JanitorConfig controls the inactive-session sweep
type JanitorConfig struct {
	InactivityTimeout time.Duration
	MinimumAge        time.Duration
	SweepInterval     time.Duration
	BatchSize         int
	DryRun            bool
}

// LoadJanitorConfig loads janitor configuration from environment variables
func LoadJanitorConfig() JanitorConfig {
	return JanitorConfig{
		InactivityTimeout: getEnvDuration("JANITOR_INACTIVITY_TIMEOUT", 72*time.Hour),
		MinimumAge:        getEnvDuration("JANITOR_MINIMUM_AGE", time.Hour),
		SweepInterval:     getEnvDuration("JANITOR_SWEEP_INTERVAL", 10*time.Minute),
		BatchSize:         getEnvInt("JANITOR_BATCH_SIZE", 500),
		DryRun:            getEnvBool("JANITOR_DRY_RUN", false),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseDuration(s string) (time.Duration, error) {
	// Accept either a duration string ("72h") or bare seconds
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}
