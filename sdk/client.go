package sdk

import (
	"context"
	"fmt"
	"sync"
)

// Client is a WeChat Mini Program platform client. It manages the
// access token transparently, retries transient failures, and redacts
// credentials from everything it reports. All methods are safe for
// concurrent use.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithCredentials("wx1234567890abcdef", "app-secret")
//
//	client, err := sdk.NewClient(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	session, err := client.Code2Session(ctx, jsCode)
//	if err != nil {
//	    log.Printf("login failed: %v", err)
//	}
type Client interface {
	AuthAPI
	UserAPI
	QRCodeAPI
	SecurityAPI
	OpenAPI
	SubscribeAPI

	// Token returns a usable access token, fetching one if necessary.
	// Most callers never need this: every API method injects the token
	// itself. It is exposed for callers signing requests outside the
	// SDK.
	Token(ctx context.Context) (string, error)

	// InvalidateToken drops the cached access token so the next call
	// fetches a fresh one. Use it after the platform rejects a token
	// before its expected expiry (see IsCredentialError).
	InvalidateToken()

	// Close closes the client and releases all resources. After Close,
	// the client must not be used. Close is safe to call multiple times.
	Close() error
}

// AuthAPI covers login and session endpoints
type AuthAPI interface {
	// Code2Session exchanges a wx.login() code for the user's identity
	// and session key. This endpoint authenticates with the app
	// credentials directly and does not consume an access token.
	Code2Session(ctx context.Context, jsCode string) (*SessionInfo, error)
}

// UserAPI covers user data endpoints
type UserAPI interface {
	// GetPhoneNumber exchanges a phone-number authorization code for
	// the user's phone number.
	GetPhoneNumber(ctx context.Context, code string) (*PhoneInfo, error)
}

// QRCodeAPI covers code image and link generation endpoints
type QRCodeAPI interface {
	// GetWxaCode generates a Mini Program code image for a fixed page
	// path. The platform caps the total number of codes generated this
	// way; use GetWxaCodeUnlimit for per-user codes.
	GetWxaCode(ctx context.Context, req *WxaCodeRequest) ([]byte, error)

	// GetWxaCodeUnlimit generates a Mini Program code image with a
	// free-form scene string and no generation quota.
	GetWxaCodeUnlimit(ctx context.Context, req *WxaCodeUnlimitRequest) ([]byte, error)

	// CreateQRCode generates a classic square QR code for a page path
	CreateQRCode(ctx context.Context, path string, width int) ([]byte, error)

	// GenerateURLScheme creates a scheme URL that opens the Mini
	// Program from outside the host app.
	GenerateURLScheme(ctx context.Context, req *URLSchemeRequest) (string, error)

	// GenerateURLLink creates an HTTPS link that opens the Mini Program
	GenerateURLLink(ctx context.Context, req *URLLinkRequest) (string, error)

	// GenerateShortLink creates a short link usable inside the host app
	GenerateShortLink(ctx context.Context, pageURL, pageTitle string, isPermanent bool) (string, error)
}

// SecurityAPI covers content moderation and risk endpoints
type SecurityAPI interface {
	// MsgSecCheck checks a piece of user-generated text against the
	// platform's content policy.
	MsgSecCheck(ctx context.Context, req *MsgSecCheckRequest) (*MsgSecCheckResult, error)

	// MediaCheckAsync submits an image or audio URL for asynchronous
	// moderation. The verdict arrives later on the message push
	// callback; the returned trace ID correlates the two.
	MediaCheckAsync(ctx context.Context, req *MediaCheckRequest) (string, error)

	// GetUserRiskRank scores the risk of a user action from 0 (safe)
	// to 4 (high risk).
	GetUserRiskRank(ctx context.Context, req *RiskRankRequest) (int, error)
}

// OpenAPI covers quota and diagnostics endpoints
type OpenAPI interface {
	// ClearQuota resets the daily API usage counters. The platform
	// allows a limited number of resets per month.
	ClearQuota(ctx context.Context) error

	// GetAPIQuota returns the daily quota and usage for one endpoint
	// path, e.g. "/wxa/getwxacode".
	GetAPIQuota(ctx context.Context, cgiPath string) (*Quota, error)

	// ClearQuotaByAppSecret resets the daily API usage counters using
	// the app secret directly, without an access token. Useful when
	// quota exhaustion prevents the token itself from being fetched.
	ClearQuotaByAppSecret(ctx context.Context) error

	// GetRidInfo returns the stored request details for a rid, the
	// request identifier the platform attaches to error responses.
	GetRidInfo(ctx context.Context, rid string) (*RidInfo, error)

	// GetAPIDomainIP returns the IP addresses of the platform API
	// domain, for allowlist maintenance.
	GetAPIDomainIP(ctx context.Context) ([]string, error)

	// GetCallbackIP returns the IP addresses the platform pushes
	// callbacks from, for allowlist maintenance.
	GetCallbackIP(ctx context.Context) ([]string, error)
}

// SubscribeAPI covers subscribe message endpoints
type SubscribeAPI interface {
	// SendSubscribeMessage delivers a subscribe message to a user who
	// granted the one-time subscription.
	SendSubscribeMessage(ctx context.Context, msg *SubscribeMessage) error
}

// client is the concrete implementation of the Client interface
type client struct {
	config    *Config
	transport *httpTransport
	tokens    *TokenManager

	// pipeline is the full interceptor chain: logging, retry,
	// credential injection, circuit breaking, then the transport
	pipeline Handler

	// identityPipeline skips credential injection, for the handful of
	// endpoints that authenticate with the app credentials directly
	identityPipeline Handler

	mu     sync.RWMutex
	closed bool
}

// NewClient creates a platform client from the provided configuration.
// The configuration is validated first; missing optional values are
// filled with defaults.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithCredentials("wx1234567890abcdef", "app-secret").
//	    WithRetries(5).
//	    WithCircuitBreaker(sdk.DefaultCircuitBreakerConfig())
//
//	client, err := sdk.NewClient(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func NewClient(config *Config) (Client, error) {
	if config == nil {
		return nil, NewError(ErrorTypeConfig, "client", "config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transport, err := newHTTPTransport(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	strategy := config.RetryStrategy
	if strategy == nil {
		strategy = NewJitteredBackoff(config.RetryConfig.RetryDelay, config.RetryConfig.MaxDelay)
	}
	executor := newRetryExecutor(strategy, config.Observer)

	fetcher := &tokenEndpointFetcher{
		transport: transport,
		appID:     config.AppID,
		secret:    config.AppSecret,
	}

	tokens, err := NewTokenManager(TokenManagerConfig{
		AppID:         config.AppID,
		Fetcher:       fetcher,
		RefreshBuffer: config.RefreshBuffer,
		MaxAttempts:   config.RetryConfig.MaxRetries,
		Strategy:      strategy,
		Store:         config.TokenStore,
		Observer:      config.Observer,
	})
	if err != nil {
		return nil, err
	}

	base := Handler(transport.roundTrip)
	if config.CircuitBreakerConfig != nil {
		breaker := newObservedCircuitBreaker(
			NewCircuitBreaker(*config.CircuitBreakerConfig),
			config.BaseURL,
			config.Observer,
		)
		base = newBreakerInterceptor(breaker)(base)
	}

	logging := newLoggingInterceptor(config.Observer)
	retry := newRetryInterceptor(executor, config.RetryConfig.MaxRetries, config.RetryConfig.RetryPost)
	inject := newCredentialInterceptor(tokens, config.TokenInjection)

	return &client{
		config:           config,
		transport:        transport,
		tokens:           tokens,
		pipeline:         chainInterceptors(base, logging, retry, inject),
		identityPipeline: chainInterceptors(base, logging, retry),
	}, nil
}

// Token returns a usable access token
func (c *client) Token(ctx context.Context) (string, error) {
	if err := c.checkClosed(); err != nil {
		return "", err
	}
	return c.tokens.GetToken(ctx)
}

// InvalidateToken drops the cached access token
func (c *client) InvalidateToken() {
	c.tokens.Invalidate()
}

// Close closes the client and releases resources
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.close()
	return nil
}

// checkClosed checks if the client is closed
func (c *client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}
	return nil
}

// callJSON executes a JSON request through the full pipeline and
// decodes the errcode envelope into result, which may be nil for
// endpoints whose success carries no payload.
func (c *client) callJSON(ctx context.Context, method, path string, payload, result interface{}) error {
	resp, err := c.call(ctx, c.pipeline, method, path, payload)
	if err != nil {
		return err
	}
	return decodeEnvelope(method+" "+pathOnly(path), resp.Body, result)
}

// callIdentityJSON is callJSON over the pipeline without credential
// injection, for endpoints that carry identity in their own parameters
func (c *client) callIdentityJSON(ctx context.Context, method, path string, payload, result interface{}) error {
	resp, err := c.call(ctx, c.identityPipeline, method, path, payload)
	if err != nil {
		return err
	}
	return decodeEnvelope(method+" "+pathOnly(path), resp.Body, result)
}

// callBinary executes a request whose success response is raw bytes,
// such as a code image
func (c *client) callBinary(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	resp, err := c.call(ctx, c.pipeline, method, path, payload)
	if err != nil {
		return nil, err
	}
	return decodeBinary(method+" "+pathOnly(path), resp)
}

// call encodes the payload and runs the request through a pipeline
func (c *client) call(ctx context.Context, pipeline Handler, method, path string, payload interface{}) (*Response, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	op := method + " " + pathOnly(path)
	body, err := encodeBody(op, payload)
	if err != nil {
		return nil, err
	}

	return pipeline(ctx, &Request{Method: method, Path: path, Body: body})
}
