package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/featherline/weapp-bridge/sdk"
)

// logObserver prints pipeline events as they happen. Combine it with
// the built-in MetricsCollector via NewCompositeObserver to get both
// logs and counters from one client.
type logObserver struct{}

func (logObserver) OnRequestStart(method, url string) {
	fmt.Printf("→ %s %s\n", method, url)
}

func (logObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	if err != nil {
		fmt.Printf("← %s %s failed after %v: %v\n", method, url, duration, err)
		return
	}
	fmt.Printf("← %s %s %d in %v\n", method, url, statusCode, duration)
}

func (logObserver) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {
	fmt.Printf("⟳ retry %d for %s in %v after: %v\n", attempt, op, delay, err)
}

func (logObserver) OnTokenRefresh(appID string, lifetime time.Duration, err error) {
	if err != nil {
		fmt.Printf("⚠ token refresh for %s failed: %v\n", appID, err)
		return
	}
	fmt.Printf("✓ token refreshed for %s, lifetime %v\n", appID, lifetime)
}

func (logObserver) OnTokenCacheHit(appID string)  {}
func (logObserver) OnTokenCacheMiss(appID string) { fmt.Printf("token cache miss for %s\n", appID) }

func (logObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState sdk.CircuitState) {
	fmt.Printf("circuit %s: %v → %v\n", endpoint, oldState, newState)
}

func main() {
	collector := sdk.NewMetricsCollector()

	config := sdk.DefaultConfig().
		WithCredentials(
			sdk.AppID(os.Getenv("WEAPP_APP_ID")),
			sdk.AppSecret(os.Getenv("WEAPP_APP_SECRET")),
		).
		WithObserver(sdk.NewCompositeObserver(logObserver{}, collector))

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	// Drive some traffic so the collector has something to report
	if _, err := client.GetCallbackIP(ctx); err != nil {
		log.Printf("GetCallbackIP: %v", err)
	}
	if _, err := client.GetAPIDomainIP(ctx); err != nil {
		log.Printf("GetAPIDomainIP: %v", err)
	}

	// Dump the collected metrics
	metrics := collector.GetMetrics()
	out, _ := json.MarshalIndent(metrics, "", "  ")
	fmt.Printf("\nCollected metrics:\n%s\n", out)
}
