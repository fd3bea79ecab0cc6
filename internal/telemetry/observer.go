package telemetry

import (
	"time"

	"github.com/featherline/weapp-bridge/sdk"
)

// PrometheusObserver bridges the SDK's observer hooks into the service
// metrics. Attach it to the client config so every platform call, retry,
// token refresh and circuit transition shows up on /metrics.
//
// InitMetrics must run before the observer sees traffic; callbacks fired
// earlier are dropped.
type PrometheusObserver struct{}

// NewPrometheusObserver creates the metrics bridge
func NewPrometheusObserver() *PrometheusObserver {
	return &PrometheusObserver{}
}

// OnRequestStart is a no-op; requests are counted on completion
func (p *PrometheusObserver) OnRequestStart(method, url string) {}

// OnRequestEnd records the platform request outcome and latency
func (p *PrometheusObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	if platformRequestsTotal == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	endpoint := endpointLabel(url)
	platformRequestsTotal.WithLabelValues(method, endpoint, outcome).Inc()
	platformRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// OnRetryAttempt counts platform request retries
func (p *PrometheusObserver) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {
	if platformRetriesTotal == nil {
		return
	}
	platformRetriesTotal.WithLabelValues(op).Inc()
}

// OnTokenRefresh counts token refresh outcomes
func (p *PrometheusObserver) OnTokenRefresh(appID string, lifetime time.Duration, err error) {
	if tokenRefreshTotal == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// OnTokenCacheHit counts served cached tokens
func (p *PrometheusObserver) OnTokenCacheHit(appID string) {
	if tokenCacheTotal == nil {
		return
	}
	tokenCacheTotal.WithLabelValues("hit").Inc()
}

// OnTokenCacheMiss counts token cache misses
func (p *PrometheusObserver) OnTokenCacheMiss(appID string) {
	if tokenCacheTotal == nil {
		return
	}
	tokenCacheTotal.WithLabelValues("miss").Inc()
}

// OnCircuitBreakerStateChange counts circuit transitions
func (p *PrometheusObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState sdk.CircuitState) {
	if circuitTransitionsTotal == nil {
		return
	}
	circuitTransitionsTotal.WithLabelValues(oldState.String(), newState.String()).Inc()
}

// endpointLabel strips the query from a redacted URL so the label set
// stays bounded
func endpointLabel(url string) string {
	for i := 0; i < len(url); i++ {
		if url[i] == '?' {
			return url[:i]
		}
	}
	return url
}
