package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordEvent(t *testing.T) {
	m := NewMetrics()

	m.RecordEvent("subscribe")
	m.RecordEvent("subscribe")
	m.RecordEvent("text")

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats["events_processed"])
	assert.Equal(t, int64(3), stats["events_succeeded"])
	assert.Equal(t, int64(0), stats["events_failed"])

	counts := stats["event_counts"].(map[string]int64)
	assert.Equal(t, int64(2), counts["subscribe"])
	assert.Equal(t, int64(1), counts["text"])
}

func TestMetrics_RecordError(t *testing.T) {
	m := NewMetrics()

	m.RecordError("sink_error")
	m.RecordError("sink_error")
	m.RecordError("unmarshal_error")

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats["events_failed"])

	counts := stats["error_counts"].(map[string]int64)
	assert.Equal(t, int64(2), counts["sink_error"])
	assert.Equal(t, int64(1), counts["unmarshal_error"])
}

func TestMetrics_RecordBatch(t *testing.T) {
	m := NewMetrics()

	m.RecordBatch(10, 100*time.Millisecond)
	m.RecordBatch(20, 200*time.Millisecond)

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["batches_processed"])
	assert.InDelta(t, 15.0, stats["avg_batch_size"].(float64), 0.01)
}

func TestMetrics_Health(t *testing.T) {
	m := NewMetrics()
	assert.True(t, m.IsHealthy())

	m.SetHealthy(false)
	assert.False(t, m.IsHealthy())
	assert.Equal(t, false, m.GetStats()["is_healthy"])
}
