package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/featherline/weapp-bridge/internal/relay"
	"github.com/featherline/weapp-bridge/internal/sessionstore"
	"github.com/featherline/weapp-bridge/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize telemetry
	telemetryConfig := telemetry.NewConfigFromEnv()
	telemetryConfig.ServiceName = "weapp-bridge-relay"
	if err := telemetry.Init(telemetryConfig); err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	telemetry.L().Info("weapp-bridge relay starting")

	// Initialize configurations
	relayConfig, err := relay.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load relay config: %v", err)
	}

	pgConfig, err := sessionstore.NewPostgresConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}

	redisConfig, err := sessionstore.NewRedisConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load cache config: %v", err)
	}

	// Initialize database
	db, err := sessionstore.NewDB(pgConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	telemetry.L().Info("connected to PostgreSQL")

	// Initialize Redis cache
	cache, err := sessionstore.NewRedisCache(redisConfig)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.Close()
	telemetry.L().Info("connected to Redis")

	repo := sessionstore.NewRepository(db)
	store := sessionstore.NewStore(cache, repo)

	// Initialize NATS
	relayClient, err := relay.NewClient(relayConfig)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer relayClient.Close()
	telemetry.L().Info("connected to NATS JetStream")

	metrics := relay.NewMetrics()

	// The relay keeps session state in step with the event stream:
	// an unsubscribe ends the session, anything else counts as
	// activity.
	sink := &sessionSink{store: store}
	processor := relay.NewProcessor(relayConfig, relayClient, sink, metrics)

	// Janitor sweeps idle session rows; Redis entries expire on their
	// own TTL.
	janitorConfig := sessionstore.LoadJanitorConfig()
	janitor := sessionstore.NewJanitor(repo, relayClient.GetNC(), janitorConfig)

	// Start health check server
	go startHealthServer(getHealthPort(), metrics)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	processorDone := make(chan error, 1)
	go func() {
		processorDone <- processor.Start(ctx)
	}()

	go func() {
		telemetry.L().Info("starting session janitor")
		janitor.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		telemetry.L().Infof("received signal %v, shutting down gracefully", sig)
		cancel()
		processor.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		select {
		case <-processorDone:
			telemetry.L().Info("relay shutdown complete")
		case <-shutdownCtx.Done():
			telemetry.L().Warn("relay shutdown timeout")
		}

	case err := <-processorDone:
		if err != nil {
			log.Fatalf("Processor error: %v", err)
		}
	}
}

// sessionSink applies relayed callback events to the session store
type sessionSink struct {
	store *sessionstore.Store
}

func (s *sessionSink) HandleEvent(ctx context.Context, msg *relay.EventMessage) error {
	if msg.OpenID == "" {
		return nil
	}

	if msg.EventType == "unsubscribe" {
		if err := s.store.Delete(ctx, msg.OpenID); err != nil &&
			!errors.Is(err, sessionstore.ErrSessionNotFound) {
			return err
		}
		return nil
	}

	if err := s.store.Touch(ctx, msg.OpenID); err != nil &&
		!errors.Is(err, sessionstore.ErrSessionNotFound) {
		return err
	}
	return nil
}

func getHealthPort() int {
	if v := os.Getenv("HEALTH_CHECK_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			return port
		}
	}
	return 8081
}

func startHealthServer(port int, metrics *relay.Metrics) {
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if metrics.IsHealthy() {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"status":"healthy","service":"weapp-bridge-relay"}`)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unhealthy","service":"weapp-bridge-relay"}`)
		}
	})

	http.Handle("/metrics", telemetry.PrometheusHandler())

	telemetry.L().Infof("health check server listening on port %d", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), nil); err != nil {
		telemetry.WithError(err).Error("health server error")
	}
}
