package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSubject(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		expected  string
	}{
		{"subscribe event", "subscribe", "weapp.event.subscribe"},
		{"plain message", "text", "weapp.event.text"},
		{"empty type", "", "weapp.event.unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EventSubject(tt.eventType))
		})
	}
}

func TestCallbackEvent_Type(t *testing.T) {
	t.Run("event push uses Event field", func(t *testing.T) {
		e := &CallbackEvent{MsgType: "event", Event: "subscribe"}
		assert.Equal(t, "subscribe", e.Type())
	})

	t.Run("plain message falls back to MsgType", func(t *testing.T) {
		e := &CallbackEvent{MsgType: "text", Content: "hello"}
		assert.Equal(t, "text", e.Type())
	})
}

func TestNewEventMessage(t *testing.T) {
	payload := json.RawMessage(`{"MsgType":"event","Event":"subscribe","FromUserName":"oAbCdEfGhIjKlMnOpQrStUvWxYz0"}`)
	event := &CallbackEvent{
		FromUserName: "oAbCdEfGhIjKlMnOpQrStUvWxYz0",
		MsgType:      "event",
		Event:        "subscribe",
	}

	msg := NewEventMessage("wx1234567890abcdef", event, payload)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "oAbCdEfGhIjKlMnOpQrStUvWxYz0", msg.OpenID)
	assert.Equal(t, "wx1234567890abcdef", msg.AppID)
	assert.Equal(t, "subscribe", msg.EventType)
	assert.WithinDuration(t, time.Now().UTC(), msg.ReceivedAt, 5*time.Second)
	assert.Equal(t, payload, msg.Payload)
}

func TestEventMessage_Roundtrip(t *testing.T) {
	msg := NewEventMessage("wx1234567890abcdef", &CallbackEvent{
		FromUserName: "oAbCdEfGhIjKlMnOpQrStUvWxYz0",
		MsgType:      "event",
		Event:        "unsubscribe",
	}, json.RawMessage(`{}`))

	data, err := msg.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEventMessage(data)
	require.NoError(t, err)

	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, msg.OpenID, decoded.OpenID)
	assert.Equal(t, msg.EventType, decoded.EventType)
}

func TestGenerateMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateMessageID()
		assert.False(t, seen[id], "duplicate message id %s", id)
		seen[id] = true
	}
}

func TestUnmarshalDLQMessage_Invalid(t *testing.T) {
	_, err := UnmarshalDLQMessage([]byte("not json"))
	assert.Error(t, err)
}

func TestSinkFunc(t *testing.T) {
	var got *EventMessage
	sink := SinkFunc(func(ctx context.Context, event *EventMessage) error {
		got = event
		return nil
	})

	msg := &EventMessage{ID: "abc", EventType: "subscribe"}
	err := sink.HandleEvent(context.Background(), msg)

	require.NoError(t, err)
	assert.Same(t, msg, got)
}

func TestNewConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.URL)
	assert.Equal(t, "WEAPP_EVENTS", cfg.StreamName)
	assert.Equal(t, "WEAPP_EVENTS_DLQ", cfg.DLQStreamName)
	assert.Equal(t, "weapp-relay", cfg.ConsumerName)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchTimeout)
	assert.Equal(t, 5, cfg.DLQMaxRetries)
}
