package sdk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_RequestsAndErrors(t *testing.T) {
	metrics := NewMetricsCollector()

	metrics.OnRequestStart("GET", "/cgi-bin/token")
	metrics.OnRequestStart("GET", "/cgi-bin/token")
	metrics.OnRequestEnd("GET", "/cgi-bin/token", 200, 10*time.Millisecond, nil)
	metrics.OnRequestEnd("GET", "/cgi-bin/token", 503, 5*time.Millisecond, errors.New("http 503"))

	snapshot := metrics.GetMetrics()

	requests := snapshot["requests"].(map[string]int64)
	assert.Equal(t, int64(2), requests["GET /cgi-bin/token"])

	latencies := snapshot["latencies"].(map[string][]time.Duration)
	assert.Len(t, latencies["GET /cgi-bin/token"], 2)

	errCounts := snapshot["errors"].(map[string]int64)
	assert.Equal(t, int64(1), errCounts["GET /cgi-bin/token"])
}

func TestMetricsCollector_TokenCacheHitRate(t *testing.T) {
	metrics := NewMetricsCollector()

	for i := 0; i < 3; i++ {
		metrics.OnTokenCacheHit("wx1234567890abcdef")
	}
	metrics.OnTokenCacheMiss("wx1234567890abcdef")

	snapshot := metrics.GetMetrics()
	assert.Equal(t, int64(3), snapshot["token_cache_hits"])
	assert.Equal(t, int64(1), snapshot["token_cache_misses"])
	assert.InDelta(t, 0.75, snapshot["token_cache_hit_rate"].(float64), 0.001)
}

func TestMetricsCollector_EmptyHitRateIsZero(t *testing.T) {
	snapshot := NewMetricsCollector().GetMetrics()
	assert.Equal(t, float64(0), snapshot["token_cache_hit_rate"])
}

func TestMetricsCollector_TokenRefreshes(t *testing.T) {
	metrics := NewMetricsCollector()

	metrics.OnTokenRefresh("wx1234567890abcdef", 2*time.Hour, nil)
	metrics.OnTokenRefresh("wx1234567890abcdef", 0, errors.New("fetch failed"))

	snapshot := metrics.GetMetrics()
	assert.Equal(t, int64(2), snapshot["token_refreshes"])
	assert.Equal(t, int64(1), snapshot["token_refresh_errors"])
}

func TestMetricsCollector_ConcurrentUse(t *testing.T) {
	metrics := NewMetricsCollector()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				metrics.OnRequestStart("GET", "/cgi-bin/token")
				metrics.OnRequestEnd("GET", "/cgi-bin/token", 200, time.Millisecond, nil)
				metrics.OnRetryAttempt("GET /cgi-bin/token", 1, time.Millisecond, errors.New("x"))
				metrics.OnTokenCacheHit("wx1234567890abcdef")
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	snapshot := metrics.GetMetrics()
	requests := snapshot["requests"].(map[string]int64)
	assert.Equal(t, int64(1000), requests["GET /cgi-bin/token"])
	assert.Equal(t, int64(1000), snapshot["token_cache_hits"])
}

// panickingObserver panics on every callback
type panickingObserver struct {
	NoopObserver
}

func (p *panickingObserver) OnRequestStart(method, url string) {
	panic("observer bug")
}

func (p *panickingObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	panic("observer bug")
}

func TestCompositeObserver_FanOut(t *testing.T) {
	first := &capturingObserver{}
	second := &capturingObserver{}
	composite := NewCompositeObserver(first, second)

	composite.OnRequestStart("GET", "/cgi-bin/token")
	composite.OnRequestEnd("GET", "/cgi-bin/token", 200, time.Millisecond, nil)

	assert.Equal(t, []string{"GET /cgi-bin/token"}, first.starts)
	assert.Equal(t, []string{"GET /cgi-bin/token"}, second.starts)
	assert.Len(t, first.ends, 1)
	assert.Len(t, second.ends, 1)
}

func TestCompositeObserver_PanicIsolation(t *testing.T) {
	healthy := &capturingObserver{}
	composite := NewCompositeObserver(&panickingObserver{}, healthy)

	assert.NotPanics(t, func() {
		composite.OnRequestStart("GET", "/cgi-bin/token")
		composite.OnRequestEnd("GET", "/cgi-bin/token", 200, time.Millisecond, nil)
	})

	// The panic in the first observer must not starve the second
	assert.Len(t, healthy.starts, 1)
	assert.Len(t, healthy.ends, 1)
}

// stateChangeObserver records circuit breaker transitions
type stateChangeObserver struct {
	NoopObserver
	changes []string
}

func (o *stateChangeObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState) {
	o.changes = append(o.changes, endpoint+": "+oldState.String()+" -> "+newState.String())
}

func TestObservedCircuitBreaker_NotifiesTransitions(t *testing.T) {
	observer := &stateChangeObserver{}
	cb := newObservedCircuitBreaker(
		NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
			HalfOpenRequests: 1,
		}),
		"https://api.weixin.qq.com",
		observer,
	)

	_ = cb.Execute(transportFailure)
	assert.Empty(t, observer.changes)

	_ = cb.Execute(transportFailure)
	require.Len(t, observer.changes, 1)
	assert.Equal(t, "https://api.weixin.qq.com: closed -> open", observer.changes[0])

	cb.Reset()
	require.Len(t, observer.changes, 2)
	assert.Equal(t, "https://api.weixin.qq.com: open -> closed", observer.changes[1])
}
