package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/featherline/weapp-bridge/internal/callback"
	"github.com/featherline/weapp-bridge/internal/relay"
	"github.com/featherline/weapp-bridge/internal/sessionstore"
	"github.com/featherline/weapp-bridge/internal/telemetry"
	"github.com/featherline/weapp-bridge/sdk"
	"github.com/featherline/weapp-bridge/sdk/tokenstore"
)

func main() {
	// Load callback service configuration
	cfg, err := callback.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize telemetry
	telemetryConfig := telemetry.NewConfigFromEnv()
	telemetryConfig.ServiceName = "weapp-bridge-callback"
	if err := telemetry.Init(telemetryConfig); err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	telemetry.L().Info("weapp-bridge callback service starting")

	// Initialize Redis session cache
	redisConfig, err := sessionstore.NewRedisConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load Redis configuration: %v", err)
	}
	cache, err := sessionstore.NewRedisCache(redisConfig)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.Close()
	telemetry.L().Info("connected to Redis")

	// Initialize PostgreSQL
	pgConfig, err := sessionstore.NewPostgresConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load PostgreSQL configuration: %v", err)
	}
	db, err := sessionstore.NewDB(pgConfig)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	telemetry.L().Info("connected to PostgreSQL")

	repo := sessionstore.NewRepository(db)
	store := sessionstore.NewStore(cache, repo)

	// Initialize NATS relay client
	relayConfig, err := relay.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load relay configuration: %v", err)
	}
	relayClient, err := relay.NewClient(relayConfig)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer relayClient.Close()
	telemetry.L().Info("connected to NATS JetStream")

	// Initialize the platform SDK client. The token lives in Redis so
	// every replica shares one credential.
	sdkConfig := sdk.DefaultConfig().
		WithCredentials(
			sdk.AppID(os.Getenv("WEAPP_APP_ID")),
			sdk.AppSecret(os.Getenv("WEAPP_APP_SECRET")),
		).
		WithTokenStore(tokenstore.NewRedisStore(cache.Client())).
		WithObserver(telemetry.NewPrometheusObserver())

	sdkClient, err := sdk.NewClient(sdkConfig)
	if err != nil {
		log.Fatalf("Failed to create platform client: %v", err)
	}
	defer sdkClient.Close()

	// Async Postgres writer keeps the login path fast
	writer := callback.NewAsyncWriter(repo, cfg.WriteQueueSize, cfg.WriteWorkers)
	defer writer.Shutdown()

	handler := callback.NewHandler(cfg, store, relayClient, sdkClient, writer, os.Getenv("WEAPP_APP_ID"))

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "weapp-bridge-callback",
		ReadTimeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.RequestTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	})

	callback.SetupMiddleware(app)
	callback.SetupRoutes(app, handler, cfg)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		telemetry.L().Info("shutting down gracefully")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		// Drain the async writer before the server stops accepting
		writer.Shutdown()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			telemetry.WithError(err).Error("server forced to shutdown")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	telemetry.L().Infof("weapp-bridge callback listening on %s", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
