// Package callback is the HTTP ingress for WeChat message push: URL
// verification, signed event intake, session login, and operational
// session endpoints.
package callback

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the callback service configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// CallbackToken is the shared secret configured in the WeChat
	// console, used for signature verification on /callback.
	CallbackToken string

	// APIKey gates the operational /v1 endpoints. Empty disables the
	// gate.
	APIKey string

	// Async writer configuration
	WriteQueueSize int
	WriteWorkers   int

	// Rate limiting for /callback, requests per minute per IP
	RateLimit int

	RequestTimeout  int
	ShutdownTimeout int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	writeQueueSize, err := strconv.Atoi(getEnvOrDefault("WRITE_QUEUE_SIZE", "10000"))
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_QUEUE_SIZE: %w", err)
	}

	writeWorkers, err := strconv.Atoi(getEnvOrDefault("WRITE_WORKERS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_WORKERS: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnvOrDefault("CALLBACK_RATE_LIMIT", "600"))
	if err != nil {
		return nil, fmt.Errorf("invalid CALLBACK_RATE_LIMIT: %w", err)
	}

	requestTimeout, err := strconv.Atoi(getEnvOrDefault("REQUEST_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("SHUTDOWN_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	token := os.Getenv("CALLBACK_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("CALLBACK_TOKEN is required")
	}

	return &Config{
		Host:            getEnvOrDefault("HOST", "0.0.0.0"),
		Port:            port,
		CallbackToken:   token,
		APIKey:          os.Getenv("API_KEY"),
		WriteQueueSize:  writeQueueSize,
		WriteWorkers:    writeWorkers,
		RateLimit:       rateLimit,
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
