// Package relay moves callback events from the ingress service to
// downstream consumers over NATS JetStream, with batching and a DLQ
// for events that repeatedly fail.
package relay

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Subject layout. Events publish under a per-type subject so
// consumers can filter; the stream captures the whole tree.
const (
	SubjectPrefix = "weapp.event."
	SubjectAll    = "weapp.event.>"
	SubjectDLQ    = "weapp.dlq.event"
)

// EventSubject returns the subject for a given callback event type
func EventSubject(eventType string) string {
	if eventType == "" {
		eventType = "unknown"
	}
	return SubjectPrefix + eventType
}

// CallbackEvent is the decoded body of a platform message push.
// Field names follow the wire format WeChat sends.
type CallbackEvent struct {
	ToUserName   string `json:"ToUserName"`
	FromUserName string `json:"FromUserName"`
	CreateTime   int64  `json:"CreateTime"`
	MsgType      string `json:"MsgType"`
	Event        string `json:"Event,omitempty"`
	Content      string `json:"Content,omitempty"`
	MsgID        int64  `json:"MsgId,omitempty"`
}

// Type normalizes the event type used for subject routing. Plain
// messages route by MsgType; event pushes by their Event field.
func (e *CallbackEvent) Type() string {
	if e.Event != "" {
		return e.Event
	}
	return e.MsgType
}

// EventMessage is the relay envelope published to JetStream
type EventMessage struct {
	ID         string          `json:"id"`
	OpenID     string          `json:"open_id"`
	AppID      string          `json:"app_id"`
	EventType  string          `json:"event_type"`
	ReceivedAt time.Time       `json:"received_at"`
	Retries    int             `json:"retries,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// DLQMessage wraps an event that exhausted its delivery attempts
type DLQMessage struct {
	OriginalMessage json.RawMessage `json:"original_message"`
	OriginalSubject string          `json:"original_subject"`
	Error           string          `json:"error"`
	FailedAt        time.Time       `json:"failed_at"`
	Retries         int             `json:"retries"`
	MaxRetries      int             `json:"max_retries"`
}

// NewEventMessage builds a relay envelope from a decoded callback
func NewEventMessage(appID string, event *CallbackEvent, payload json.RawMessage) *EventMessage {
	return &EventMessage{
		ID:         generateMessageID(),
		OpenID:     event.FromUserName,
		AppID:      appID,
		EventType:  event.Type(),
		ReceivedAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Marshal converts the message to JSON bytes
func (m *EventMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Marshal converts the message to JSON bytes
func (m *DLQMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalEventMessage unmarshals a relay envelope from JSON
func UnmarshalEventMessage(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UnmarshalDLQMessage unmarshals a DLQ message from JSON
func UnmarshalDLQMessage(data []byte) (*DLQMessage, error) {
	var msg DLQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// generateMessageID returns an id suitable for JetStream dedup
func generateMessageID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return time.Now().UTC().Format("20060102150405") + "-" + hex.EncodeToString(b)
}
