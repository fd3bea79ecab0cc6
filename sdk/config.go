package sdk

import (
	"net/url"
	"time"

	"github.com/featherline/weapp-bridge/sdk/tokenstore"
)

// DefaultBaseURL is the production endpoint of the Mini Program platform
const DefaultBaseURL = "https://api.weixin.qq.com"

const defaultUserAgent = "weapp-bridge-go-sdk/1.0.0"

// InjectionMode selects how the access token is attached to outgoing requests
type InjectionMode string

const (
	// InjectQuery appends the token as an access_token query parameter.
	// This is what the platform expects and is the default.
	InjectQuery InjectionMode = "query"

	// InjectHeader sends the token as an Authorization: Bearer header.
	// Useful when requests are routed through a proxy that rewrites the
	// header into the query form.
	InjectHeader InjectionMode = "header"
)

// Config holds the configuration for the platform client.
// Only AppID and AppSecret are required; everything else has defaults.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithCredentials("wx1234567890abcdef", "secret").
//	    WithRequestTimeout(10 * time.Second).
//	    WithCircuitBreaker(sdk.DefaultCircuitBreakerConfig())
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// AppID is the Mini Program app ID. Required.
	AppID AppID

	// AppSecret is the credential paired with AppID, used to obtain
	// access tokens. Required.
	AppSecret AppSecret

	// BaseURL is the base URL of the platform API.
	// Default: https://api.weixin.qq.com
	BaseURL string

	// RequestTimeout is the HTTP request timeout. This includes
	// connection time, redirects, and reading the response body.
	// Default: 30s
	RequestTimeout time.Duration

	// ConnectTimeout bounds establishing the TCP connection.
	// Default: 10s
	ConnectTimeout time.Duration

	// RetryConfig holds retry-related settings.
	RetryConfig RetryConfig

	// RefreshBuffer is subtracted from a cached token's lifetime: a
	// token is refreshed once it is within this window of expiry.
	// Default: 5m
	RefreshBuffer time.Duration

	// TokenInjection selects how the access token is attached to
	// requests. Default: InjectQuery
	TokenInjection InjectionMode

	// TransportConfig holds HTTP transport settings.
	// Configures connection pooling and keep-alive behavior.
	TransportConfig TransportConfig

	// CircuitBreakerConfig holds circuit breaker settings.
	// If nil, circuit breaker is disabled.
	CircuitBreakerConfig *CircuitBreakerConfig

	// RetryStrategy defines the backoff between retry attempts.
	// If nil, exponential backoff with jitter is used.
	RetryStrategy RetryStrategy

	// Observer for monitoring operations.
	// If nil, NoopObserver is used.
	Observer Observer

	// TokenStore is an optional external token cache shared between
	// processes. When set, the client consults it before fetching a
	// fresh token and writes every fetched token back to it.
	TokenStore tokenstore.Store

	// Verbose enables request and response detail in the logging hooks.
	// Bodies are never logged, and sensitive query parameters are
	// redacted regardless of this setting.
	Verbose bool

	// UserAgent overrides the User-Agent header on outgoing requests
	UserAgent string
}

// RetryConfig holds retry-related configuration for automatic request
// retries. The SDK retries transient failures with jittered exponential
// backoff by default.
//
// Example:
//
//	config.RetryConfig = sdk.RetryConfig{
//	    MaxRetries: 5,
//	    RetryDelay: 50 * time.Millisecond,
//	    MaxDelay:   10 * time.Second,
//	}
type RetryConfig struct {
	// MaxRetries is the total number of attempts per operation,
	// including the first one. With the default of 3, an operation is
	// tried once and retried up to twice. Setting it to 0 disables the
	// client: operations fail with a configuration error before any
	// attempt is made.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base delay before the first retry. Subsequent
	// retries back off exponentially from this value.
	// Default: 100ms
	RetryDelay time.Duration

	// MaxDelay caps the backoff delay regardless of attempt count.
	// Default: 30s
	MaxDelay time.Duration

	// RetryPost allows POST, PUT and PATCH requests to be retried.
	// These are not idempotent on the platform side, so retrying them
	// is opt-in. GET, HEAD and DELETE are always eligible.
	// Default: false
	RetryPost bool
}

// TransportConfig holds HTTP transport configuration for connection pooling.
// These settings control how the SDK manages HTTP connections.
//
// Example:
//
//	config.TransportConfig = sdk.TransportConfig{
//	    MaxIdleConns:    200,
//	    MaxConnsPerHost: 50,
//	    IdleConnTimeout: 120 * time.Second,
//	}
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	// across all hosts. Zero means no limit.
	// Default: 100
	MaxIdleConns int

	// MaxConnsPerHost controls the maximum connections per host.
	// This includes connections in the dialing, active, and idle states.
	// Default: 10
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum time an idle connection will remain idle
	// before closing itself. Zero means no limit.
	// Default: 90s
	IdleConnTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults suitable for most
// use cases. Credentials still have to be supplied before the config is
// usable.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithCredentials("wx1234567890abcdef", "secret")
//	client, err := sdk.NewClient(config)
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		RequestTimeout: 30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		RetryConfig: RetryConfig{
			MaxRetries: 3,
			RetryDelay: 100 * time.Millisecond,
			MaxDelay:   30 * time.Second,
		},
		RefreshBuffer:  5 * time.Minute,
		TokenInjection: InjectQuery,
		TransportConfig: TransportConfig{
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
		},
		Observer:  &NoopObserver{},
		UserAgent: defaultUserAgent,
	}
}

// WithCredentials sets the app ID and app secret
func (c *Config) WithCredentials(appID AppID, secret AppSecret) *Config {
	c.AppID = appID
	c.AppSecret = secret
	return c
}

// WithBaseURL sets the base URL of the platform API. Point this at a
// regional endpoint, a corporate proxy, or a test server.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://api.weixin.qq.com")
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithRequestTimeout sets the request timeout for all operations.
// This includes connection time, redirects, and reading the response.
func (c *Config) WithRequestTimeout(timeout time.Duration) *Config {
	c.RequestTimeout = timeout
	return c
}

// WithConnectTimeout bounds how long the transport waits for a TCP
// connection to be established.
func (c *Config) WithConnectTimeout(timeout time.Duration) *Config {
	c.ConnectTimeout = timeout
	return c
}

// WithRetries sets the total number of attempts per operation,
// including the first one.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithRetries(5) // One try plus up to four retries
func (c *Config) WithRetries(maxRetries int) *Config {
	c.RetryConfig.MaxRetries = maxRetries
	return c
}

// WithRetryDelay sets the base delay before the first retry
func (c *Config) WithRetryDelay(delay time.Duration) *Config {
	c.RetryConfig.RetryDelay = delay
	return c
}

// WithRetryPost allows POST, PUT and PATCH requests to be retried.
// Only enable this for endpoints known to tolerate duplicate delivery.
func (c *Config) WithRetryPost() *Config {
	c.RetryConfig.RetryPost = true
	return c
}

// WithRefreshBuffer sets how long before expiry a cached token stops
// being used. A larger buffer refreshes earlier.
func (c *Config) WithRefreshBuffer(buffer time.Duration) *Config {
	c.RefreshBuffer = buffer
	return c
}

// WithTokenInjection selects how the access token is attached to
// outgoing requests.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithTokenInjection(sdk.InjectHeader)
func (c *Config) WithTokenInjection(mode InjectionMode) *Config {
	c.TokenInjection = mode
	return c
}

// WithCircuitBreaker enables and configures circuit breaker protection.
// Circuit breaker prevents hammering the platform when it is down by
// failing fast after repeated transport failures.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithCircuitBreaker(sdk.CircuitBreakerConfig{
//	        FailureThreshold: 5,
//	        SuccessThreshold: 2,
//	        Timeout: 30 * time.Second,
//	    })
func (c *Config) WithCircuitBreaker(config CircuitBreakerConfig) *Config {
	c.CircuitBreakerConfig = &config
	return c
}

// WithRetryStrategy sets a custom retry strategy for determining retry
// delays. By default, exponential backoff with jitter is used.
//
// Example:
//
//	// Use fixed interval retries
//	config := sdk.DefaultConfig().
//	    WithRetryStrategy(sdk.NewConstantBackoff(time.Second))
func (c *Config) WithRetryStrategy(strategy RetryStrategy) *Config {
	c.RetryStrategy = strategy
	return c
}

// WithObserver sets a custom observer for monitoring SDK operations.
// Observers can track requests, retries, token refreshes, and circuit
// breaker transitions.
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithTokenStore sets an external token cache shared between processes.
// With a store configured, one process refreshing the token saves every
// other process a fetch.
//
// Example:
//
//	store := tokenstore.NewMemoryStore()
//	config := sdk.DefaultConfig().WithTokenStore(store)
func (c *Config) WithTokenStore(store tokenstore.Store) *Config {
	c.TokenStore = store
	return c
}

// WithVerboseLogging enables request and response detail in the logging
// hooks. Sensitive values stay redacted.
func (c *Config) WithVerboseLogging() *Config {
	c.Verbose = true
	return c
}

// Validate validates the configuration and sets defaults for missing
// values. This is called automatically by NewClient.
//
// Returns an error if the configuration is invalid (e.g., missing or
// malformed credentials).
func (c *Config) Validate() error {
	if err := c.AppID.Validate(); err != nil {
		return err
	}
	if err := c.AppSecret.Validate(); err != nil {
		return err
	}
	if c.BaseURL == "" {
		return ErrInvalidConfig
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return NewError(ErrorTypeConfig, "base_url", "base URL must be absolute with scheme and host")
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RetryConfig.MaxRetries < 0 {
		return NewError(ErrorTypeConfig, "max_retries", "max retries must not be negative")
	}
	if c.RetryConfig.RetryDelay <= 0 {
		c.RetryConfig.RetryDelay = 100 * time.Millisecond
	}
	if c.RetryConfig.MaxDelay <= 0 {
		c.RetryConfig.MaxDelay = 30 * time.Second
	}
	if c.RefreshBuffer < 0 {
		return NewError(ErrorTypeConfig, "refresh_buffer", "refresh buffer must not be negative")
	}
	switch c.TokenInjection {
	case "":
		c.TokenInjection = InjectQuery
	case InjectQuery, InjectHeader:
	default:
		return NewError(ErrorTypeConfig, "token_injection", "token injection mode must be query or header")
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	// Validate circuit breaker config if present
	if c.CircuitBreakerConfig != nil {
		if c.CircuitBreakerConfig.FailureThreshold <= 0 {
			c.CircuitBreakerConfig.FailureThreshold = 5
		}
		if c.CircuitBreakerConfig.SuccessThreshold <= 0 {
			c.CircuitBreakerConfig.SuccessThreshold = 2
		}
		if c.CircuitBreakerConfig.Timeout <= 0 {
			c.CircuitBreakerConfig.Timeout = 30 * time.Second
		}
		if c.CircuitBreakerConfig.HalfOpenRequests <= 0 {
			c.CircuitBreakerConfig.HalfOpenRequests = 3
		}
	}
	return nil
}
