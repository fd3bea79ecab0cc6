package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/nats-io/nats.go"

	"github.com/featherline/weapp-bridge/internal/telemetry"
)

// Client represents a NATS JetStream client for the event relay
type Client struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config *Config
}

// NewClient connects to NATS and ensures the event streams exist
func NewClient(config *Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				telemetry.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			telemetry.L().WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			telemetry.WithError(err).Error("NATS error")
		}),
	}

	if config.User != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.User, config.Password))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &Client{
		nc:     nc,
		js:     js,
		config: config,
	}

	if err := client.initializeStreams(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize streams: %w", err)
	}

	return client, nil
}

// initializeStreams creates or updates the event and DLQ streams
func (c *Client) initializeStreams() error {
	eventStreamConfig := &nats.StreamConfig{
		Name:        c.config.StreamName,
		Description: "WeChat callback event stream",
		Subjects:    []string{SubjectAll},
		Retention:   nats.LimitsPolicy,
		MaxAge:      c.config.StreamMaxAge,
		MaxBytes:    c.config.StreamMaxBytes,
		MaxMsgs:     c.config.StreamMaxMsgs,
		MaxMsgSize:  c.config.StreamMaxMsgSize,
		Replicas:    c.config.StreamReplicas,
		Duplicates:  5 * time.Minute,
		NoAck:       false,
		Storage:     nats.FileStorage,
	}

	_, err := c.js.AddStream(eventStreamConfig)
	if err != nil {
		_, err = c.js.UpdateStream(eventStreamConfig)
		if err != nil {
			return fmt.Errorf("failed to create/update event stream: %w", err)
		}
	}

	dlqStreamConfig := &nats.StreamConfig{
		Name:        c.config.DLQStreamName,
		Description: "WeChat callback event DLQ stream",
		Subjects:    []string{SubjectDLQ},
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    c.config.StreamMaxBytes / 10,
		MaxMsgs:     c.config.StreamMaxMsgs / 10,
		MaxMsgSize:  c.config.StreamMaxMsgSize,
		Replicas:    c.config.StreamReplicas,
		NoAck:       false,
		Storage:     nats.FileStorage,
	}

	_, err = c.js.AddStream(dlqStreamConfig)
	if err != nil {
		_, err = c.js.UpdateStream(dlqStreamConfig)
		if err != nil {
			return fmt.Errorf("failed to create/update DLQ stream: %w", err)
		}
	}

	return nil
}

// PublishEvent publishes a callback event envelope. The message id
// doubles as the JetStream dedup key, and the active trace context is
// carried in the headers so the consumer span links up.
func (c *Client) PublishEvent(ctx context.Context, msg *EventMessage) error {
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event message: %w", err)
	}

	headers := nats.Header{}
	if span, ok := tracer.SpanFromContext(ctx); ok {
		carrier := tracer.HTTPHeadersCarrier(headers)
		if err := tracer.Inject(span.Context(), carrier); err != nil {
			telemetry.WithError(err).Debug("failed to inject trace context")
		}
	}

	natsMsg := &nats.Msg{
		Subject: EventSubject(msg.EventType),
		Data:    data,
		Header:  headers,
	}

	pubAck, err := c.js.PublishMsgAsync(natsMsg, nats.MsgId(msg.ID))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	select {
	case <-pubAck.Ok():
		return nil
	case err := <-pubAck.Err():
		return fmt.Errorf("event publish failed: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateConsumer creates a durable consumer for processing events
func (c *Client) CreateConsumer(streamName, consumerName string) (*nats.ConsumerInfo, error) {
	consumerConfig := &nats.ConsumerConfig{
		Durable:         consumerName,
		AckPolicy:       nats.AckExplicitPolicy,
		AckWait:         c.config.ConsumerAckWait,
		MaxDeliver:      c.config.ConsumerMaxDeliver,
		MaxAckPending:   c.config.ConsumerMaxAckPending,
		ReplayPolicy:    nats.ReplayInstantPolicy,
		DeliverPolicy:   nats.DeliverAllPolicy,
		FilterSubject:   "",
		SampleFrequency: "100%",
	}

	info, err := c.js.AddConsumer(streamName, consumerConfig)
	if err != nil {
		info, err = c.js.UpdateConsumer(streamName, consumerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create/update consumer: %w", err)
		}
	}

	return info, nil
}

// Subscribe creates a pull subscription and a fetch loop feeding the
// handler. The loop exits when the connection closes.
func (c *Client) Subscribe(streamName, consumerName string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.js.PullSubscribe(
		"",
		consumerName,
		nats.ManualAck(),
		nats.Bind(streamName, consumerName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	go func() {
		for {
			msgs, err := sub.Fetch(c.config.BatchSize, nats.MaxWait(c.config.BatchTimeout))
			if err != nil {
				if errors.Is(err, nats.ErrConnectionClosed) {
					return
				}
				if !errors.Is(err, nats.ErrTimeout) {
					telemetry.WithError(err).Error("error fetching events")
				}
				continue
			}

			for _, msg := range msgs {
				handler(msg)
			}
		}
	}()

	return sub, nil
}

// Health checks the NATS connection health
func (c *Client) Health() error {
	if !c.nc.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}

	if _, err := c.js.AccountInfo(); err != nil {
		return fmt.Errorf("JetStream health check failed: %w", err)
	}

	return nil
}

// Close closes the NATS connection
func (c *Client) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}

// StreamInfo returns information about a stream
func (c *Client) StreamInfo(streamName string) (*nats.StreamInfo, error) {
	return c.js.StreamInfo(streamName)
}

// ConsumerInfo returns information about a consumer
func (c *Client) ConsumerInfo(streamName, consumerName string) (*nats.ConsumerInfo, error) {
	return c.js.ConsumerInfo(streamName, consumerName)
}

// GetConfig returns the client configuration
func (c *Client) GetConfig() *Config {
	return c.config
}

// GetNC returns the underlying NATS connection
func (c *Client) GetNC() *nats.Conn {
	return c.nc
}
