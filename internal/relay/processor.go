package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/featherline/weapp-bridge/internal/telemetry"
)

// Sink is where the processor hands decoded events. Returning an
// error Naks the message for redelivery; after MaxDeliver attempts it
// lands in the DLQ.
type Sink interface {
	HandleEvent(ctx context.Context, event *EventMessage) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, event *EventMessage) error

// HandleEvent calls f(ctx, event)
func (f SinkFunc) HandleEvent(ctx context.Context, event *EventMessage) error {
	return f(ctx, event)
}

// batch accumulates fetched messages until size or interval flush
type batch struct {
	messages  []*nats.Msg
	startTime time.Time
}

// Processor consumes events from JetStream and delivers them to the
// sink in batches.
type Processor struct {
	config     *Config
	client     *Client
	sink       Sink
	dlqHandler *DLQHandler
	metrics    *Metrics

	pending *batch
	batchMu sync.Mutex

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewProcessor creates a new event processor
func NewProcessor(config *Config, client *Client, sink Sink, metrics *Metrics) *Processor {
	return &Processor{
		config:     config,
		client:     client,
		sink:       sink,
		dlqHandler: NewDLQHandler(client),
		metrics:    metrics,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

// Start begins consuming events. Blocks until the context is
// cancelled or Stop is called.
func (p *Processor) Start(ctx context.Context) error {
	telemetry.WithFields(logrus.Fields{
		"stream":   p.config.StreamName,
		"consumer": p.config.ConsumerName,
	}).Info("relay processor starting")

	if _, err := p.client.CreateConsumer(p.config.StreamName, p.config.ConsumerName); err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sub, err := p.client.Subscribe(p.config.StreamName, p.config.ConsumerName, p.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	go func() {
		if err := p.dlqHandler.ProcessDLQ(ctx); err != nil && !errors.Is(err, context.Canceled) {
			telemetry.WithError(err).Error("DLQ processor stopped")
		}
	}()

	batchTicker := time.NewTicker(p.config.BatchTimeout)
	defer batchTicker.Stop()

	metricsTicker := time.NewTicker(p.config.MetricsInterval)
	defer metricsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.shutdown()
		case <-p.stopCh:
			return p.shutdown()
		case <-batchTicker.C:
			p.flushPending(ctx)
		case <-metricsTicker.C:
			p.reportStreamDepth()
		}
	}
}

// handleMessage adds a fetched message to the pending batch and
// flushes when the batch is full
func (p *Processor) handleMessage(msg *nats.Msg) {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	if p.pending == nil {
		p.pending = &batch{
			messages:  make([]*nats.Msg, 0, p.config.BatchSize),
			startTime: time.Now(),
		}
	}

	p.pending.messages = append(p.pending.messages, msg)

	if len(p.pending.messages) >= p.config.BatchSize {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.processBatch(ctx, p.pending)
		p.pending = nil
	}
}

// flushPending processes a partially filled batch on the interval tick
func (p *Processor) flushPending(ctx context.Context) {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	if p.pending != nil && len(p.pending.messages) > 0 {
		p.processBatch(ctx, p.pending)
		p.pending = nil
	}
}

// processBatch delivers a batch to the sink with bounded concurrency
func (p *Processor) processBatch(ctx context.Context, b *batch) {
	start := time.Now()

	sem := make(chan struct{}, p.config.Concurrency)
	var wg sync.WaitGroup

	for _, msg := range b.messages {
		wg.Add(1)
		go func(m *nats.Msg) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			p.processMessage(ctx, m)
		}(msg)
	}

	wg.Wait()

	p.metrics.RecordBatch(len(b.messages), time.Since(start))
	telemetry.RecordRelayBatchSize("event", len(b.messages))
}

// processMessage decodes one event and hands it to the sink
func (p *Processor) processMessage(ctx context.Context, msg *nats.Msg) {
	span := p.startConsumeSpan(msg)
	defer span.Finish()

	start := time.Now()

	event, err := UnmarshalEventMessage(msg.Data)
	if err != nil {
		// Undecodable payloads can never succeed; route to DLQ and ack
		p.metrics.RecordError("unmarshal_error")
		telemetry.RecordDLQEvent("unmarshal_error")
		span.SetTag("error", err)
		if dlqErr := p.dlqHandler.SendToDLQ(ctx, msg, err); dlqErr != nil {
			telemetry.WithError(dlqErr).Error("failed to send event to DLQ")
			msg.Nak()
			return
		}
		msg.Ack()
		return
	}

	if err := p.sink.HandleEvent(ctx, event); err != nil {
		p.metrics.RecordError("sink_error")
		telemetry.RecordEventRelayed(event.EventType, "error", time.Since(start))
		span.SetTag("error", err)
		msg.Nak()
		return
	}

	if err := msg.Ack(); err != nil {
		telemetry.WithError(err).Warn("failed to ack event")
		return
	}

	p.metrics.RecordEvent(event.EventType)
	telemetry.RecordEventRelayed(event.EventType, "ok", time.Since(start))
}

// startConsumeSpan continues the trace carried in the message headers
func (p *Processor) startConsumeSpan(msg *nats.Msg) *tracer.Span {
	opts := []tracer.StartSpanOption{
		tracer.ServiceName("weapp-bridge-relay"),
		tracer.ResourceName("consume " + msg.Subject),
		tracer.SpanType("queue"),
		tracer.Tag("messaging.system", "nats"),
		tracer.Tag("messaging.destination", msg.Subject),
		tracer.Tag("messaging.operation", "receive"),
	}

	carrier := tracer.HTTPHeadersCarrier(msg.Header)
	if spanCtx, err := tracer.Extract(carrier); err == nil && spanCtx != nil {
		opts = append(opts, tracer.ChildOf(spanCtx))
	}

	return tracer.StartSpan("nats.consume", opts...)
}

// reportStreamDepth refreshes queue depth gauges and logs a summary
func (p *Processor) reportStreamDepth() {
	if info, err := p.client.StreamInfo(p.config.StreamName); err == nil {
		telemetry.UpdateRelayQueueDepth("events", int(info.State.Msgs))
	}
	if info, err := p.client.StreamInfo(p.config.DLQStreamName); err == nil {
		telemetry.UpdateRelayQueueDepth("dlq", int(info.State.Msgs))
	}

	stats := p.metrics.GetStats()
	telemetry.WithFields(logrus.Fields{
		"processed": stats["events_processed"],
		"succeeded": stats["events_succeeded"],
		"failed":    stats["events_failed"],
		"batches":   stats["batches_processed"],
	}).Info("relay metrics")
}

// Stop gracefully stops the processor
func (p *Processor) Stop() {
	close(p.stopCh)
	<-p.stoppedCh
}

// shutdown flushes pending work before exit
func (p *Processor) shutdown() error {
	telemetry.L().Info("relay processor shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.flushPending(ctx)
	p.reportStreamDepth()

	close(p.stoppedCh)
	return nil
}
