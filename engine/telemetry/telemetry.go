// Package telemetry emits usage records off the request path: a bounded
// queue drained by a single worker, dropping (with a counter) when full.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/AxleData/axle/engine/domain"
	"github.com/AxleData/axle/pkg/metrics"
	"github.com/AxleData/axle/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// Sink receives usage records. Write failures are logged and the record is
// lost; that is acceptable for telemetry.
type Sink interface {
	Write(ctx context.Context, rec domain.UsageRecord) error
}

// writeTimeout bounds a single sink write inside the drain worker.
const writeTimeout = 2 * time.Second

// Emitter is the fire-and-forget front of the telemetry pipeline. Record
// never blocks the caller.
type Emitter struct {
	sink    Sink
	queue   chan domain.UsageRecord
	log     *slog.Logger
	dropped *metrics.Counter
	depth   *metrics.Gauge
	done    chan struct{}
}

// NewEmitter creates an Emitter and starts its drain worker. queueSize <= 0
// defaults to 1024.
func NewEmitter(sink Sink, log *slog.Logger, reg *metrics.Registry, queueSize int) *Emitter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	e := &Emitter{
		sink:  sink,
		queue: make(chan domain.UsageRecord, queueSize),
		log:   log,
		done:  make(chan struct{}),
	}
	if reg != nil {
		e.dropped = reg.Counter("telemetry_dropped_total", "Usage records dropped because the queue was full")
		e.depth = reg.Gauge("telemetry_queue_depth", "Usage records waiting in the emit queue")
	}
	go e.drain()
	return e
}

// Record enqueues a usage record. When the queue is full the record is
// dropped and counted; the caller is never delayed.
func (e *Emitter) Record(rec domain.UsageRecord) {
	select {
	case e.queue <- rec:
		if e.depth != nil {
			e.depth.Set(int64(len(e.queue)))
		}
	default:
		if e.dropped != nil {
			e.dropped.Inc()
		}
	}
}

// Close stops accepting records and waits for the queue to flush, up to a
// deadline.
func (e *Emitter) Close() {
	close(e.queue)
	select {
	case <-e.done:
	case <-time.After(5 * time.Second):
		e.log.Warn("telemetry flush deadline exceeded")
	}
}

func (e *Emitter) drain() {
	defer close(e.done)
	for rec := range e.queue {
		if e.depth != nil {
			e.depth.Set(int64(len(e.queue)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := e.sink.Write(ctx, rec); err != nil {
			e.log.Warn("telemetry write failed", "path", rec.Path, "err", err)
		}
		cancel()
	}
}

// NATSSink publishes usage records to a NATS subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink creates a NATSSink.
func NewNATSSink(nc *nats.Conn, subject string) *NATSSink {
	return &NATSSink{nc: nc, subject: subject}
}

func (s *NATSSink) Write(ctx context.Context, rec domain.UsageRecord) error {
	return natsutil.Publish(ctx, s.nc, s.subject, rec)
}

// LogSink writes usage records to the structured log. Used when no NATS URL
// is configured.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Write(_ context.Context, rec domain.UsageRecord) error {
	s.Log.Info("usage",
		"org_id", rec.OrgID,
		"method", rec.Method,
		"path", rec.Path,
		"status", rec.Status,
		"duration_ms", rec.DurationMS,
	)
	return nil
}
