package sdk

import (
	"sync"
	"time"
)

// Observer provides hooks for monitoring SDK operations.
// Implement this interface to track performance metrics, debug issues,
// or integrate with your observability stack.
//
// The SDK calls observer methods at key points during operation
// execution. URLs passed to observers are already redacted; bodies are
// never passed. Observer methods should be fast and non-blocking to
// avoid impacting performance.
//
// Example implementation:
//
//	type LogObserver struct {
//	    logger *log.Logger
//	}
//
//	func (o *LogObserver) OnRequestEnd(method, url string, status int, duration time.Duration, err error) {
//	    if err != nil {
//	        o.logger.Printf("[ERROR] %s %s - %v (took %v)", method, url, err, duration)
//	    } else {
//	        o.logger.Printf("[%d] %s %s (took %v)", status, method, url, duration)
//	    }
//	}
type Observer interface {
	// OnRequestStart is called when a request enters the pipeline.
	// Use this to track request rates or log request initiation.
	//
	// Parameters:
	//   - method: HTTP method (GET, POST)
	//   - url: Redacted request URL
	OnRequestStart(method, url string)

	// OnRequestEnd is called when a request completes.
	// Use this to track latencies, error rates, or log completions.
	//
	// Parameters:
	//   - method: HTTP method
	//   - url: Redacted request URL
	//   - statusCode: HTTP status code, 0 when no response was received
	//   - duration: Time taken for the request
	//   - err: Error if the request failed, nil on success
	OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error)

	// OnRetryAttempt is called before each retry sleep.
	// Use this to track retry rates or debug retry behavior.
	//
	// Parameters:
	//   - op: Operation label, e.g. "POST /wxa/getwxacode" or "token.fetch"
	//   - attempt: Retry attempt number (1, 2, 3...)
	//   - delay: Delay before this retry attempt
	//   - err: The error that triggered the retry
	OnRetryAttempt(op string, attempt int, delay time.Duration, err error)

	// OnTokenRefresh is called after each access token fetch.
	// Use this to monitor refresh cadence and failures.
	//
	// Parameters:
	//   - appID: The app the token belongs to
	//   - lifetime: Granted token lifetime, 0 on failure
	//   - err: Error if the fetch failed, nil on success
	OnTokenRefresh(appID string, lifetime time.Duration, err error)

	// OnTokenCacheHit is called when a cached access token is served.
	// Use this to track how often calls avoid a token fetch.
	OnTokenCacheHit(appID string)

	// OnTokenCacheMiss is called when no usable cached token exists and
	// a fetch becomes necessary.
	OnTokenCacheMiss(appID string)

	// OnCircuitBreakerStateChange is called when a circuit breaker changes state.
	// Use this to monitor platform health or alert on circuit opens.
	//
	// Parameters:
	//   - endpoint: The endpoint whose circuit changed
	//   - oldState: Previous circuit state
	//   - newState: New circuit state
	OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState)
}

// NoopObserver is a no-op implementation of Observer that does nothing.
// This is the default observer used when none is configured.
// It has zero overhead and is safe for production use.
type NoopObserver struct{}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(method, url string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
}

// OnRetryAttempt does nothing
func (n *NoopObserver) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {}

// OnTokenRefresh does nothing
func (n *NoopObserver) OnTokenRefresh(appID string, lifetime time.Duration, err error) {}

// OnTokenCacheHit does nothing
func (n *NoopObserver) OnTokenCacheHit(appID string) {}

// OnTokenCacheMiss does nothing
func (n *NoopObserver) OnTokenCacheMiss(appID string) {}

// OnCircuitBreakerStateChange does nothing
func (n *NoopObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState) {
}

// MetricsCollector is a simple in-memory metrics implementation.
// It collects basic metrics about SDK operations including request
// counts, latencies, error rates, retry attempts, and token cache
// hit rates.
//
// Note: This implementation stores all data in memory and is primarily
// intended for debugging and testing. For production use, consider
// implementing Observer to export metrics to your monitoring system.
//
// Example:
//
//	metrics := sdk.NewMetricsCollector()
//	config := sdk.DefaultConfig().
//	    WithObserver(metrics)
//
//	client, _ := sdk.NewClient(config)
//	// Use client...
//
//	snapshot := metrics.GetMetrics()
//	fmt.Printf("Token cache hit rate: %.2f%%\n", snapshot["token_cache_hit_rate"].(float64)*100)
type MetricsCollector struct {
	mu                  sync.RWMutex
	requestCount        map[string]int64
	latencies           map[string][]time.Duration
	errorCount          map[string]int64
	retryCount          map[string]int64
	circuitStateChanges map[string]int64
	tokenRefreshCount   int64
	tokenRefreshErrors  int64
	tokenCacheHitCount  int64
	tokenCacheMissCount int64
}

// NewMetricsCollector creates a new metrics collector for tracking SDK
// operations. The collector is thread-safe and can be used concurrently.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestCount:        make(map[string]int64),
		latencies:           make(map[string][]time.Duration),
		errorCount:          make(map[string]int64),
		retryCount:          make(map[string]int64),
		circuitStateChanges: make(map[string]int64),
	}
}

// OnRequestStart increments request count
func (m *MetricsCollector) OnRequestStart(method, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[method+" "+url]++
}

// OnRequestEnd records request duration and errors
func (m *MetricsCollector) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + url
	m.latencies[key] = append(m.latencies[key], duration)
	if err != nil {
		m.errorCount[key]++
	}
}

// OnRetryAttempt increments retry count
func (m *MetricsCollector) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount[op]++
}

// OnTokenRefresh tracks refresh outcomes
func (m *MetricsCollector) OnTokenRefresh(appID string, lifetime time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenRefreshCount++
	if err != nil {
		m.tokenRefreshErrors++
	}
}

// OnTokenCacheHit increments token cache hit count
func (m *MetricsCollector) OnTokenCacheHit(appID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenCacheHitCount++
}

// OnTokenCacheMiss increments token cache miss count
func (m *MetricsCollector) OnTokenCacheMiss(appID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenCacheMissCount++
}

// OnCircuitBreakerStateChange tracks state changes
func (m *MetricsCollector) OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitStateChanges[endpoint]++
}

// GetMetrics returns a snapshot of current metrics.
// The returned map is a copy and safe to read without locks.
//
// The metrics include:
//   - "requests": Map of endpoint to request count
//   - "latencies": Map of endpoint to latency measurements
//   - "errors": Map of endpoint to error count
//   - "retries": Map of operation to retry count
//   - "circuit_breaker_state_changes": Map of endpoint to state change count
//   - "token_refreshes": Total token refresh attempts
//   - "token_refresh_errors": Failed token refreshes
//   - "token_cache_hits": Total token cache hits
//   - "token_cache_misses": Total token cache misses
//   - "token_cache_hit_rate": Calculated hit rate (0.0 to 1.0)
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Create copies to avoid data races
	requestsCopy := make(map[string]int64)
	for k, v := range m.requestCount {
		requestsCopy[k] = v
	}

	latenciesCopy := make(map[string][]time.Duration)
	for k, v := range m.latencies {
		latenciesCopy[k] = append([]time.Duration(nil), v...)
	}

	errorsCopy := make(map[string]int64)
	for k, v := range m.errorCount {
		errorsCopy[k] = v
	}

	retriesCopy := make(map[string]int64)
	for k, v := range m.retryCount {
		retriesCopy[k] = v
	}

	circuitChangesCopy := make(map[string]int64)
	for k, v := range m.circuitStateChanges {
		circuitChangesCopy[k] = v
	}

	cacheTotal := m.tokenCacheHitCount + m.tokenCacheMissCount
	cacheHitRate := float64(0)
	if cacheTotal > 0 {
		cacheHitRate = float64(m.tokenCacheHitCount) / float64(cacheTotal)
	}

	return map[string]interface{}{
		"requests":                      requestsCopy,
		"latencies":                     latenciesCopy,
		"errors":                        errorsCopy,
		"retries":                       retriesCopy,
		"circuit_breaker_state_changes": circuitChangesCopy,
		"token_refreshes":               m.tokenRefreshCount,
		"token_refresh_errors":          m.tokenRefreshErrors,
		"token_cache_hits":              m.tokenCacheHitCount,
		"token_cache_misses":            m.tokenCacheMissCount,
		"token_cache_hit_rate":          cacheHitRate,
	}
}

// observedCircuitBreaker wraps a circuit breaker to notify observers of
// state changes without modifying the circuit breaker implementation.
type observedCircuitBreaker struct {
	cb        CircuitBreaker
	endpoint  string
	observer  Observer
	lastState CircuitState
}

// newObservedCircuitBreaker creates a circuit breaker that notifies an
// observer of state changes.
func newObservedCircuitBreaker(cb CircuitBreaker, endpoint string, observer Observer) CircuitBreaker {
	return &observedCircuitBreaker{
		cb:        cb,
		endpoint:  endpoint,
		observer:  observer,
		lastState: cb.State(),
	}
}

// Execute runs the function and notifies state changes
func (o *observedCircuitBreaker) Execute(fn func() error) error {
	err := o.cb.Execute(fn)

	currentState := o.cb.State()
	if currentState != o.lastState {
		o.observer.OnCircuitBreakerStateChange(o.endpoint, o.lastState, currentState)
		o.lastState = currentState
	}

	return err
}

// State returns the current state
func (o *observedCircuitBreaker) State() CircuitState {
	return o.cb.State()
}

// Reset resets the circuit and notifies of state change
func (o *observedCircuitBreaker) Reset() {
	oldState := o.cb.State()
	o.cb.Reset()
	newState := o.cb.State()

	if oldState != newState {
		o.observer.OnCircuitBreakerStateChange(o.endpoint, oldState, newState)
		o.lastState = newState
	}
}

// CompositeObserver allows multiple observers to be combined into one.
// All observer methods are called on each child observer in order.
// If an observer panics, the panic is caught to prevent affecting
// other observers.
//
// This is useful for combining different monitoring approaches:
//   - Logging observer for debugging
//   - Metrics observer for monitoring
//   - Tracing observer for distributed tracing
//
// Example:
//
//	composite := sdk.NewCompositeObserver(
//	    sdk.NewLogrusObserver(logger, false),
//	    sdk.NewMetricsCollector(),
//	)
//	config := sdk.DefaultConfig().WithObserver(composite)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to multiple
// observers. This allows you to use multiple monitoring strategies
// simultaneously.
func NewCompositeObserver(observers ...Observer) Observer {
	return &CompositeObserver{observers: observers}
}

func (c *CompositeObserver) each(fn func(Observer)) {
	for _, obs := range c.observers {
		// Recover from panics to prevent one observer from breaking others
		func() {
			defer func() {
				_ = recover()
			}()
			fn(obs)
		}()
	}
}

// OnRequestStart notifies all observers of request start
func (c *CompositeObserver) OnRequestStart(method, url string) {
	c.each(func(o Observer) { o.OnRequestStart(method, url) })
}

// OnRequestEnd notifies all observers of request completion
func (c *CompositeObserver) OnRequestEnd(method, url string, statusCode int, duration time.Duration, err error) {
	c.each(func(o Observer) { o.OnRequestEnd(method, url, statusCode, duration, err) })
}

// OnRetryAttempt notifies all observers
func (c *CompositeObserver) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {
	c.each(func(o Observer) { o.OnRetryAttempt(op, attempt, delay, err) })
}

// OnTokenRefresh notifies all observers
func (c *CompositeObserver) OnTokenRefresh(appID string, lifetime time.Duration, err error) {
	c.each(func(o Observer) { o.OnTokenRefresh(appID, lifetime, err) })
}

// OnTokenCacheHit notifies all observers
func (c *CompositeObserver) OnTokenCacheHit(appID string) {
	c.each(func(o Observer) { o.OnTokenCacheHit(appID) })
}

// OnTokenCacheMiss notifies all observers
func (c *CompositeObserver) OnTokenCacheMiss(appID string) {
	c.each(func(o Observer) { o.OnTokenCacheMiss(appID) })
}

// OnCircuitBreakerStateChange notifies all observers
func (c *CompositeObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState) {
	c.each(func(o Observer) { o.OnCircuitBreakerStateChange(endpoint, oldState, newState) })
}
