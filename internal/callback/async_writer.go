package callback

import (
	"context"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/sirupsen/logrus"

	"github.com/featherline/weapp-bridge/internal/sessionstore"
	"github.com/featherline/weapp-bridge/internal/telemetry"
)

// SessionPersister is the durable half of the session store as the
// async writer needs it.
type SessionPersister interface {
	Upsert(ctx context.Context, sess *sessionstore.Session) (int, error)
}

// writeRequest carries one session write with its traced context
type writeRequest struct {
	ctx     context.Context
	session *sessionstore.Session
	retries int
}

// AsyncWriterStats provides statistics about the async writer
type AsyncWriterStats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`
	WorkerCount   int `json:"worker_count"`
}

// AsyncWriter persists sessions to Postgres off the request path.
// When the queue is full the write is dropped: Redis already holds
// the session and the drop is counted.
type AsyncWriter struct {
	repo     SessionPersister
	queue    chan writeRequest
	workers  int
	maxRetry int
}

// NewAsyncWriter creates a new async writer with a worker pool
func NewAsyncWriter(repo SessionPersister, queueSize, workers int) *AsyncWriter {
	aw := &AsyncWriter{
		repo:     repo,
		queue:    make(chan writeRequest, queueSize),
		workers:  workers,
		maxRetry: 3,
	}

	for i := 0; i < workers; i++ {
		go aw.worker(i)
	}

	return aw
}

// Write queues a session write with traced context
func (aw *AsyncWriter) Write(ctx context.Context, sess *sessionstore.Session) {
	select {
	case aw.queue <- writeRequest{ctx: ctx, session: sess}:
	default:
		telemetry.WithFields(logrus.Fields{
			"open_id": sess.OpenID,
		}).Warn("session write queue full, dropping write")
		telemetry.RecordSessionOperation("async_write", "dropped", 0)
	}
}

// worker processes write requests from the queue
func (aw *AsyncWriter) worker(id int) {
	for req := range aw.queue {
		span, ctx := tracer.StartSpanFromContext(req.ctx, "postgresql.async_write",
			tracer.ServiceName("weapp-bridge-session-writer"),
			tracer.ResourceName("Upsert"),
			tracer.SpanType("db"),
			tracer.Tag("session.open_id", req.session.OpenID),
		)

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		_, err := aw.repo.Upsert(ctx, req.session)
		cancel()

		if err != nil {
			span.SetTag("error", err)
		}
		span.Finish()

		if err != nil {
			telemetry.RecordSessionOperation("async_write", "error", time.Since(start))
			if req.retries < aw.maxRetry {
				req.retries++
				time.Sleep(time.Duration(req.retries) * time.Second)
				select {
				case aw.queue <- req:
				default:
					telemetry.WithError(err).WithField("open_id", req.session.OpenID).
						Error("failed to requeue session write")
				}
			} else {
				telemetry.WithError(err).WithFields(logrus.Fields{
					"worker":  id,
					"open_id": req.session.OpenID,
				}).Error("session write exceeded max retries")
			}
			continue
		}

		telemetry.RecordSessionOperation("async_write", "ok", time.Since(start))
	}
}

// QueueDepth returns the current queue depth
func (aw *AsyncWriter) QueueDepth() int {
	return len(aw.queue)
}

// Stats returns current statistics
func (aw *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		QueueDepth:    len(aw.queue),
		QueueCapacity: cap(aw.queue),
		WorkerCount:   aw.workers,
	}
}

// Shutdown stops the async writer queue. Queued writes already picked
// up by workers still complete.
func (aw *AsyncWriter) Shutdown() {
	close(aw.queue)
}
