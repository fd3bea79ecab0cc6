package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/featherline/weapp-bridge/sdk"
)

// Demonstrates how the client behaves when the platform is slow or
// failing: bounded retries with jittered backoff and a circuit
// breaker that sheds load once the endpoint looks dead.
func main() {
	config := sdk.DefaultConfig().
		WithCredentials(
			sdk.AppID(os.Getenv("WEAPP_APP_ID")),
			sdk.AppSecret(os.Getenv("WEAPP_APP_SECRET")),
		).
		WithRequestTimeout(5 * time.Second).
		WithRetries(3).
		WithRetryDelay(200 * time.Millisecond).
		WithCircuitBreaker(sdk.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		})

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := client.GetCallbackIP(ctx)
		switch {
		case err == nil:
			fmt.Printf("call %d: ok\n", i)

		case errors.Is(err, sdk.ErrCircuitOpen):
			// The breaker is shedding load; wait instead of hammering
			fmt.Printf("call %d: circuit open, backing off\n", i)
			time.Sleep(5 * time.Second)

		case sdk.IsCredentialError(err):
			// The platform rejected our token before its expiry.
			// Drop it and let the next call fetch a fresh one.
			fmt.Printf("call %d: stale token, invalidating\n", i)
			client.InvalidateToken()

		default:
			var pe *sdk.PlatformError
			if errors.As(err, &pe) {
				fmt.Printf("call %d: platform rejected with code %d: %s\n", i, pe.Code, pe.Message)
			} else {
				fmt.Printf("call %d: %v\n", i, err)
			}
		}

		time.Sleep(time.Second)
	}
}
