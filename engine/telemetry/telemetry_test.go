package telemetry

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/AxleData/axle/engine/domain"
	"github.com/AxleData/axle/pkg/metrics"
)

type captureSink struct {
	mu      sync.Mutex
	records []domain.UsageRecord
	block   chan struct{} // when non-nil, Write blocks until closed
}

func (s *captureSink) Write(_ context.Context, rec domain.UsageRecord) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEmitterDeliversInOrder(t *testing.T) {
	sink := &captureSink{}
	e := NewEmitter(sink, testLogger(), nil, 16)

	for i := 0; i < 3; i++ {
		e.Record(domain.UsageRecord{Path: "/vehicles/years", Status: 200, DurationMS: int64(i)})
	}
	e.Close()

	if sink.count() != 3 {
		t.Fatalf("delivered %d records, want 3", sink.count())
	}
	if sink.records[0].DurationMS != 0 || sink.records[2].DurationMS != 2 {
		t.Fatal("records must drain in enqueue order")
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &captureSink{block: block}
	reg := metrics.New()
	e := NewEmitter(sink, testLogger(), reg, 2)

	// Worker takes one record and blocks in Write; two more fill the queue;
	// everything after that must drop without blocking.
	for i := 0; i < 10; i++ {
		e.Record(domain.UsageRecord{Path: "/vehicles/search"})
	}

	dropped := reg.Counter("telemetry_dropped_total", "")
	if dropped.Value() == 0 {
		t.Fatal("expected drops with a full queue")
	}
	if reg.Gauge("telemetry_queue_depth", "").Value() == 0 {
		t.Fatal("queue depth gauge should reflect the backlog")
	}

	close(block)
	e.Close()
	if sink.count() == 0 {
		t.Fatal("queued records must still flush")
	}
}

func TestRecordNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	e := NewEmitter(&captureSink{block: block}, testLogger(), nil, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			e.Record(domain.UsageRecord{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked the caller")
	}
}

func TestLogSink(t *testing.T) {
	s := LogSink{Log: testLogger()}
	if err := s.Write(context.Background(), domain.UsageRecord{Path: "/x"}); err != nil {
		t.Fatalf("LogSink.Write: %v", err)
	}
}
