package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var (
	metricsOnce sync.Once

	// Callback ingress metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	callbackEventsTotal *prometheus.CounterVec
	signatureFailures   prometheus.Counter

	// Session store metrics
	sessionCacheHits         prometheus.Counter
	sessionCacheMisses       prometheus.Counter
	sessionOperationDuration *prometheus.HistogramVec
	sessionsPurgedTotal      prometheus.Counter

	// Relay metrics
	eventsRelayedTotal      *prometheus.CounterVec
	eventProcessingDuration *prometheus.HistogramVec
	relayBatchSize          *prometheus.HistogramVec
	relayQueueDepth         *prometheus.GaugeVec
	dlqEventsTotal          *prometheus.CounterVec

	// Platform client metrics, fed by the PrometheusObserver bridge
	platformRequestsTotal   *prometheus.CounterVec
	platformRequestDuration *prometheus.HistogramVec
	platformRetriesTotal    *prometheus.CounterVec
	tokenRefreshTotal       *prometheus.CounterVec
	tokenCacheTotal         *prometheus.CounterVec
	circuitTransitionsTotal *prometheus.CounterVec

	// System metrics
	serviceUp                 prometheus.Gauge
	databaseConnectionsActive prometheus.Gauge
	redisConnectionsActive    prometheus.Gauge
)

// InitMetrics initializes all metrics
func InitMetrics(cfg *Config) error {
	var err error
	metricsOnce.Do(func() {
		initPrometheusMetrics()

		if cfg.EnableMetrics {
			err = initOTELMetrics(cfg)
		}

		serviceUp.Set(1)
	})
	return err
}

func initPrometheusMetrics() {
	// Callback ingress metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	callbackEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callback_events_total",
		Help: "Total number of platform callback events received",
	}, []string{"event"})

	signatureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callback_signature_failures_total",
		Help: "Total number of callbacks rejected for a bad signature",
	})

	// Session store metrics
	sessionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_cache_hits_total",
		Help: "Total number of session cache hits",
	})

	sessionCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_cache_misses_total",
		Help: "Total number of session cache misses",
	})

	sessionOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "session_operation_duration_seconds",
		Help:    "Duration of session store operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	sessionsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_purged_total",
		Help: "Total number of expired sessions removed by the janitor",
	})

	// Relay metrics
	eventsRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_relayed_total",
		Help: "Total number of callback events relayed",
	}, []string{"type", "status"})

	eventProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_processing_duration_seconds",
		Help:    "Duration of event processing in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	relayBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_batch_size",
		Help:    "Size of relay processing batches",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"type"})

	relayQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_queue_depth",
		Help: "Current depth of the relay stream",
	}, []string{"queue"})

	dlqEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlq_events_total",
		Help: "Total number of events sent to the dead letter queue",
	}, []string{"reason"})

	// Platform client metrics
	platformRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platform_requests_total",
		Help: "Total number of requests to the Mini Program platform",
	}, []string{"method", "endpoint", "outcome"})

	platformRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platform_request_duration_seconds",
		Help:    "Duration of platform requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	platformRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platform_retries_total",
		Help: "Total number of platform request retries",
	}, []string{"op"})

	tokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_token_refresh_total",
		Help: "Total number of access token refreshes",
	}, []string{"outcome"})

	tokenCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_token_cache_total",
		Help: "Total number of access token cache lookups",
	}, []string{"result"})

	circuitTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platform_circuit_transitions_total",
		Help: "Total number of platform circuit breaker transitions",
	}, []string{"from", "to"})

	// System metrics
	serviceUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "service_up",
		Help: "Whether the service is up (1) or down (0)",
	})

	databaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "database_connections_active",
		Help: "Number of active database connections",
	})

	redisConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_connections_active",
		Help: "Number of active Redis connections",
	})
}

func initOTELMetrics(cfg *Config) error {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	if !cfg.ExportToFile {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create metrics exporter: %w", err)
		}

		provider := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(
				sdkmetric.NewPeriodicReader(
					exporter,
					sdkmetric.WithInterval(time.Duration(cfg.MetricsInterval)*time.Second),
				),
			),
		)

		otel.SetMeterProvider(provider)
	}

	return nil
}

// Metric recording functions. Each guards against metrics not being
// initialized so library code stays usable in tests and tools that
// never call InitMetrics.

// RecordHTTPRequest records a callback ingress HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	}
	if httpRequestDuration != nil {
		httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	}
}

// RecordCallbackEvent records a received platform callback event
func RecordCallbackEvent(event string) {
	if callbackEventsTotal != nil {
		callbackEventsTotal.WithLabelValues(event).Inc()
	}
}

// RecordSignatureFailure records a callback rejected for a bad signature
func RecordSignatureFailure() {
	if signatureFailures != nil {
		signatureFailures.Inc()
	}
}

// RecordSessionCacheHit records a session cache hit
func RecordSessionCacheHit() {
	if sessionCacheHits != nil {
		sessionCacheHits.Inc()
	}
}

// RecordSessionCacheMiss records a session cache miss
func RecordSessionCacheMiss() {
	if sessionCacheMisses != nil {
		sessionCacheMisses.Inc()
	}
}

// RecordSessionOperation records a session store operation duration
func RecordSessionOperation(operation, status string, duration time.Duration) {
	if sessionOperationDuration != nil {
		sessionOperationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	}
}

// RecordSessionsPurged records sessions removed by the janitor
func RecordSessionsPurged(count int) {
	if sessionsPurgedTotal != nil {
		sessionsPurgedTotal.Add(float64(count))
	}
}

// RecordEventRelayed records a relayed callback event
func RecordEventRelayed(eventType, status string, duration time.Duration) {
	if eventsRelayedTotal != nil {
		eventsRelayedTotal.WithLabelValues(eventType, status).Inc()
	}
	if eventProcessingDuration != nil {
		eventProcessingDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	}
}

// RecordRelayBatchSize records the size of a relay batch
func RecordRelayBatchSize(batchType string, size int) {
	if relayBatchSize != nil {
		relayBatchSize.WithLabelValues(batchType).Observe(float64(size))
	}
}

// RecordDLQEvent records an event sent to the dead letter queue
func RecordDLQEvent(reason string) {
	if dlqEventsTotal != nil {
		dlqEventsTotal.WithLabelValues(reason).Inc()
	}
}

// UpdateRelayQueueDepth updates the relay stream depth metric
func UpdateRelayQueueDepth(queue string, depth int) {
	if relayQueueDepth != nil {
		relayQueueDepth.WithLabelValues(queue).Set(float64(depth))
	}
}

// UpdateDatabaseConnections updates the database connections metric
func UpdateDatabaseConnections(count int) {
	if databaseConnectionsActive != nil {
		databaseConnectionsActive.Set(float64(count))
	}
}

// UpdateRedisConnections updates the Redis connections metric
func UpdateRedisConnections(count int) {
	if redisConnectionsActive != nil {
		redisConnectionsActive.Set(float64(count))
	}
}
