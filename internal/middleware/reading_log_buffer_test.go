package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"Floramigo/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordReading(string)              {}
func (nopMetrics) RecordEvent(string, string)        {}
func (nopMetrics) RecordMessageSent(string)          {}
func (nopMetrics) RecordError(string)                {}
func (nopMetrics) RecordSignal(string, float64, int) {}
func (nopMetrics) RecordLatency(string, float64)     {}

// flakyLog fails while down is set.
type flakyLog struct {
	mu     sync.Mutex
	down   bool
	rows   []float64
	last   map[string]float64
	closed bool
}

func (l *flakyLog) Init(context.Context) error { return nil }

func (l *flakyLog) Append(_ context.Context, s *models.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return errors.New("backend down")
	}
	l.rows = append(l.rows, s.Readings["v"])
	l.last = s.Readings
	return nil
}

func (l *flakyLog) Close() error {
	l.closed = true
	return nil
}

func (l *flakyLog) setDown(v bool) {
	l.mu.Lock()
	l.down = v
	l.mu.Unlock()
}

func (l *flakyLog) snapshot() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]float64(nil), l.rows...)
}

func snap(v float64) *models.Snapshot {
	return &models.Snapshot{Timestamp: time.Unix(1748764800, 0), Readings: map[string]float64{"v": v}}
}

func TestBufferedReadingLogKeepsOrderAcrossOutage(t *testing.T) {
	next := &flakyLog{}
	b := NewBufferedReadingLog(next, nopMetrics{}, WithBackoff(time.Millisecond, 5*time.Millisecond))
	ctx := context.Background()
	if err := b.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	_ = b.Append(ctx, snap(1))
	next.setDown(true)
	for _, v := range []float64{2, 3} {
		if err := b.Append(ctx, snap(v)); err != nil {
			t.Fatalf("append during outage: %v", err)
		}
	}
	next.setDown(false)
	_ = b.Append(ctx, snap(4))

	deadline := time.Now().Add(2 * time.Second)
	for b.Pending() > 0 || len(next.snapshot()) < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("buffer not drained: %v", next.snapshot())
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := b.Close(); err != nil || !next.closed {
		t.Fatalf("close: %v", err)
	}
	got := next.snapshot()
	for i, want := range []float64{1, 2, 3, 4} {
		if got[i] != want {
			t.Fatalf("rows = %v, want 1..4 in order", got)
		}
	}
}

func TestBufferedReadingLogFullBuffer(t *testing.T) {
	next := &flakyLog{down: true}
	// not started: nothing drains the queue
	b := NewBufferedReadingLog(next, nopMetrics{}, WithBufferSize(1))
	ctx := context.Background()
	if err := b.Append(ctx, snap(1)); err != nil {
		t.Fatalf("first append is buffered: %v", err)
	}
	if err := b.Append(ctx, snap(2)); err == nil {
		t.Fatalf("expected error once the buffer is full")
	}
}

func TestBufferedReadingLogRejectsInvalid(t *testing.T) {
	b := NewBufferedReadingLog(&flakyLog{}, nopMetrics{})
	ctx := context.Background()
	bad := []*models.Snapshot{
		nil,
		{Readings: map[string]float64{"v": 1}},
	}
	for i, s := range bad {
		if err := b.Append(ctx, s); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestBufferedReadingLogBlanksNonFiniteReadings(t *testing.T) {
	next := &flakyLog{}
	b := NewBufferedReadingLog(next, nopMetrics{})
	in := &models.Snapshot{Timestamp: time.Now(), Readings: map[string]float64{
		"v":   21.5,
		"nan": math.NaN(),
		"inf": math.Inf(-1),
	}}
	if err := b.Append(context.Background(), in); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(next.last) != 1 || next.last["v"] != 21.5 {
		t.Fatalf("logged readings = %v, want only v", next.last)
	}
	if len(in.Readings) != 3 {
		t.Fatalf("caller snapshot modified: %v", in.Readings)
	}
}

func TestBufferedReadingLogCloseWritesQueue(t *testing.T) {
	next := &flakyLog{down: true}
	// long backoff: nothing is retried before Close
	b := NewBufferedReadingLog(next, nopMetrics{}, WithBackoff(time.Hour, time.Hour))
	ctx := context.Background()
	if err := b.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for i := 1; i <= 20; i++ {
		if err := b.Append(ctx, snap(float64(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	next.setDown(false)
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := next.snapshot()
	if len(got) != 20 || b.Pending() != 0 {
		t.Fatalf("rows = %v, pending = %d", got, b.Pending())
	}
	for i, v := range got {
		if v != float64(i+1) {
			t.Fatalf("rows out of order: %v", got)
		}
	}
}

func TestBufferedReadingLogCloseKeepsCountWhenBackendDown(t *testing.T) {
	next := &flakyLog{down: true}
	b := NewBufferedReadingLog(next, nopMetrics{}, WithBackoff(time.Hour, time.Hour))
	ctx := context.Background()
	if err := b.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for i := 1; i <= 3; i++ {
		_ = b.Append(ctx, snap(float64(i)))
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if b.Pending() != 3 || len(next.snapshot()) != 0 {
		t.Fatalf("pending = %d, rows = %v", b.Pending(), next.snapshot())
	}
}
