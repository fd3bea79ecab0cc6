package relay

import (
	"sync"
	"time"
)

// Metrics holds relay processing counters, guarded by a mutex so the
// fetch loop and the reporting ticker can share them.
type Metrics struct {
	mu sync.RWMutex

	eventsProcessed int64
	eventsSucceeded int64
	eventsFailed    int64

	batchesProcessed    int64
	batchProcessingTime time.Duration
	avgBatchSize        float64

	eventCounts map[string]int64
	errorCounts map[string]int64

	startTime       time.Time
	lastProcessedAt time.Time
	isHealthy       bool
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		eventCounts: make(map[string]int64),
		errorCounts: make(map[string]int64),
		startTime:   time.Now(),
		isHealthy:   true,
	}
}

// RecordEvent records a successfully processed event
func (m *Metrics) RecordEvent(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventCounts[eventType]++
	m.eventsProcessed++
	m.eventsSucceeded++
	m.lastProcessedAt = time.Now()
}

// RecordError records a processing failure
func (m *Metrics) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorCounts[errorType]++
	m.eventsProcessed++
	m.eventsFailed++
}

// RecordBatch records batch processing metrics
func (m *Metrics) RecordBatch(size int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchesProcessed++
	m.batchProcessingTime += duration

	if m.avgBatchSize == 0 {
		m.avgBatchSize = float64(size)
	} else {
		m.avgBatchSize = (m.avgBatchSize*float64(m.batchesProcessed-1) + float64(size)) / float64(m.batchesProcessed)
	}
}

// GetStats returns current metrics
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	timeSinceLastProcessed := time.Duration(0)
	if !m.lastProcessedAt.IsZero() {
		timeSinceLastProcessed = time.Since(m.lastProcessedAt)
	}

	eventCounts := make(map[string]int64, len(m.eventCounts))
	for k, v := range m.eventCounts {
		eventCounts[k] = v
	}
	errorCounts := make(map[string]int64, len(m.errorCounts))
	for k, v := range m.errorCounts {
		errorCounts[k] = v
	}

	return map[string]interface{}{
		"uptime_seconds":        time.Since(m.startTime).Seconds(),
		"events_processed":      m.eventsProcessed,
		"events_succeeded":      m.eventsSucceeded,
		"events_failed":         m.eventsFailed,
		"batches_processed":     m.batchesProcessed,
		"avg_batch_size":        m.avgBatchSize,
		"event_counts":          eventCounts,
		"error_counts":          errorCounts,
		"last_processed_ago_ms": timeSinceLastProcessed.Milliseconds(),
		"is_healthy":            m.isHealthy,
	}
}

// SetHealthy sets the health status
func (m *Metrics) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isHealthy = healthy
}

// IsHealthy returns the health status
func (m *Metrics) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isHealthy
}
