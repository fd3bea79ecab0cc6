// Package sdk provides a Go client for the WeChat Mini Program server
// API. It manages the access token lifecycle transparently, retries
// transient failures with jittered backoff, and keeps credentials out
// of logs.
//
// # Features
//
// The SDK provides:
//   - Automatic access token caching, refresh, and single-flight fetch
//   - Pluggable shared token stores (memory, Redis, Postgres) for
//     multi-replica deployments
//   - Automatic retries with jittered exponential backoff
//   - Circuit breaker pattern for fail-fast behavior during outages
//   - Context support for cancellation and timeouts
//   - Credential redaction in every log line and observer callback
//   - Typed errors distinguishing transport failures from platform
//     rejections
//   - AES-128-CBC decryption of encrypted user data envelopes
//
// # Basic Usage
//
// Create a client and exchange a login code for a session:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/featherline/weapp-bridge/sdk"
//	)
//
//	func main() {
//	    config := sdk.DefaultConfig().
//	        WithCredentials("wx1234567890abcdef", "app-secret")
//
//	    client, err := sdk.NewClient(config)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    ctx := context.Background()
//
//	    session, err := client.Code2Session(ctx, jsCode)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Printf("user %s logged in", session.OpenID)
//	}
//
// # Access Tokens
//
// Every API call that needs an access token obtains one from the
// client's token manager automatically. The manager caches the token,
// refreshes it before expiry, and merges concurrent refreshes into a
// single fetch. Callers never handle tokens unless they ask to:
//
//	token, err := client.Token(ctx)
//
// When the platform rejects a token before its expected expiry,
// invalidate the cache and retry:
//
//	if sdk.IsCredentialError(err) {
//	    client.InvalidateToken()
//	}
//
// # Configuration
//
// The SDK is configured with a fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithCredentials("wx1234567890abcdef", "app-secret").
//	    WithRequestTimeout(10 * time.Second).
//	    WithRetries(5).
//	    WithCircuitBreaker(sdk.DefaultCircuitBreakerConfig()).
//	    WithTokenStore(tokenstore.NewMemoryStore())
//
// # Error Handling
//
// Errors carry a category that tells callers whether the request ever
// reached the platform:
//
//	var sdkErr *sdk.Error
//	if errors.As(err, &sdkErr) {
//	    switch sdkErr.Type {
//	    case sdk.ErrorTypeTransport:
//	        // Network or HTTP failure, retrying may help
//	    case sdk.ErrorTypeApplication:
//	        // The platform rejected the call; inspect sdkErr.Code
//	    case sdk.ErrorTypeDecode:
//	        // Response body did not match the expected shape
//	    }
//	}
//
// Transient failures are retried automatically before the error is
// surfaced, so an error reaching the caller is final for the
// configured retry budget.
//
// # Monitoring
//
// The Observer interface exposes request, retry, token, and circuit
// breaker events. Observers receive redacted URLs and never see bodies:
//
//	metrics := sdk.NewMetricsCollector()
//	config := sdk.DefaultConfig().
//	    WithCredentials(appID, secret).
//	    WithObserver(metrics)
package sdk
