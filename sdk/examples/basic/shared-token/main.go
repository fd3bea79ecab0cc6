package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/featherline/weapp-bridge/sdk"
	"github.com/featherline/weapp-bridge/sdk/tokenstore"
)

// Shows several client instances sharing one access token through
// Redis. The platform invalidates the previous token when a new one
// is issued, so independent processes fetching their own tokens keep
// logging each other out; a shared store is the fix.
func main() {
	rdb := redis.NewClient(&redis.Options{
		Addr: envOr("REDIS_ADDR", "localhost:6379"),
	})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis is not reachable: %v", err)
	}

	store := tokenstore.NewRedisStore(rdb)

	// Both clients see the same token
	clientA := mustClient(store)
	defer clientA.Close()
	clientB := mustClient(store)
	defer clientB.Close()

	tokenA, err := clientA.Token(ctx)
	if err != nil {
		log.Fatalf("client A token: %v", err)
	}
	tokenB, err := clientB.Token(ctx)
	if err != nil {
		log.Fatalf("client B token: %v", err)
	}

	if tokenA == tokenB {
		fmt.Println("✓ Both clients share one access token")
	} else {
		fmt.Println("✗ Tokens differ; check the store wiring")
	}
}

func mustClient(store tokenstore.Store) sdk.Client {
	config := sdk.DefaultConfig().
		WithCredentials(
			sdk.AppID(os.Getenv("WEAPP_APP_ID")),
			sdk.AppSecret(os.Getenv("WEAPP_APP_SECRET")),
		).
		WithTokenStore(store)

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
