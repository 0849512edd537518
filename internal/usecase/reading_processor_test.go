package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"Floramigo/internal/domain/models"
	"Floramigo/internal/services/threshold"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func plantMonitor(t *testing.T, sink threshold.Sink) *threshold.MultiSignalMonitor {
	t.Helper()
	m, err := threshold.New(map[string]threshold.ThresholdConfig{
		"soil_moisture": {Low: threshold.Float(35), High: threshold.Float(80), Hysteresis: 2},
		"light_lux":     {Low: threshold.Float(200)},
	}, threshold.TimingConfig{SmoothingAlpha: 1, MinDuration: 500 * time.Millisecond, Cooldown: 2 * time.Second},
		threshold.WithSink(sink))
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	return m
}

func snapAt(sec float64, readings map[string]float64) *models.Snapshot {
	return &models.Snapshot{Timestamp: t0.Add(time.Duration(sec * float64(time.Second))), Readings: readings}
}

func TestProcessorLogsThenEvaluates(t *testing.T) {
	metrics := newFakeMetrics()
	store := &memStore{}
	sink := NewEventDispatcher(store, nil, metrics, nil)
	log := &memLog{}
	p := NewReadingProcessor(plantMonitor(t, sink), log, metrics, nil, nil)
	ctx := context.Background()

	for _, s := range []*models.Snapshot{
		snapAt(0, map[string]float64{"soil_moisture": 30, "co2_ppm": 900}),
		snapAt(0.6, map[string]float64{"soil_moisture": 30}),
	} {
		if _, err := p.Process(ctx, s); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if len(log.snaps) != 2 || log.snaps[0].Readings["co2_ppm"] != 900 {
		t.Fatalf("raw snapshots must be logged untouched: %+v", log.snaps)
	}
	ev, _ := store.Latest(ctx, "soil_moisture")
	if ev == nil || ev.Kind != threshold.EnterLow || !ev.Timestamp.Equal(t0.Add(600*time.Millisecond)) {
		t.Fatalf("latest event = %+v", ev)
	}
	if metrics.count(metrics.readings, "soil_moisture") != 2 || metrics.count(metrics.readings, "co2_ppm") != 0 {
		t.Fatalf("reading counters = %v", metrics.readings)
	}
	if metrics.count(metrics.events, "soil_moisture/enter_low") != 1 {
		t.Fatalf("event counters = %v", metrics.events)
	}

	st, ok, err := p.Status(ctx, "soil_moisture")
	if err != nil || !ok || st.State != "low" {
		t.Fatalf("status = %+v/%v/%v", st, ok, err)
	}
	if _, ok, _ := p.Status(ctx, "co2_ppm"); ok {
		t.Fatalf("unknown signal must not have a status")
	}
}

func TestProcessorStampsMissingTimestamp(t *testing.T) {
	log := &memLog{}
	p := NewReadingProcessor(plantMonitor(t, nil), log, newFakeMetrics(), fixedClock{t0}, nil)
	in := &models.Snapshot{Readings: map[string]float64{"light_lux": 500}}
	if _, err := p.Process(context.Background(), in); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !log.snaps[0].Timestamp.Equal(t0) {
		t.Fatalf("timestamp = %v, want clock time", log.snaps[0].Timestamp)
	}
	if !in.Timestamp.IsZero() {
		t.Fatalf("caller snapshot stamped: %v", in.Timestamp)
	}
	if !p.Now().Equal(t0) {
		t.Fatalf("Now = %v, want clock time", p.Now())
	}
}

func TestProcessorLogFailureDoesNotBlockEvaluation(t *testing.T) {
	metrics := newFakeMetrics()
	store := &memStore{}
	log := &memLog{err: errors.New("disk full")}
	p := NewReadingProcessor(plantMonitor(t, NewEventDispatcher(store, nil, metrics, nil)), log, metrics, nil, nil)
	ctx := context.Background()

	_, _ = p.Process(ctx, snapAt(0, map[string]float64{"light_lux": 20}))
	got, err := p.Process(ctx, snapAt(1, map[string]float64{"light_lux": 20}))
	if err == nil {
		t.Fatalf("log failure must be reported")
	}
	if got["light_lux"] != threshold.EnterLow {
		t.Fatalf("evaluation must continue: %v", got)
	}
	if metrics.count(metrics.errors, "reading_log") != 2 {
		t.Fatalf("errors = %v", metrics.errors)
	}
}

func TestProcessorReportsInvalidReading(t *testing.T) {
	metrics := newFakeMetrics()
	p := NewReadingProcessor(plantMonitor(t, nil), nil, metrics, nil, nil)
	_, err := p.Process(context.Background(), snapAt(0, map[string]float64{"soil_moisture": math.NaN(), "light_lux": 300}))
	var ire *threshold.InvalidReadingError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want InvalidReadingError", err)
	}
	if metrics.count(metrics.errors, "invalid_reading") != 1 {
		t.Fatalf("errors = %v", metrics.errors)
	}
}

func TestProcessorSerializesConcurrentCallers(t *testing.T) {
	metrics := newFakeMetrics()
	p := NewReadingProcessor(plantMonitor(t, nil), &memLog{}, metrics, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = p.Process(ctx, snapAt(float64(i), map[string]float64{"soil_moisture": 50}))
			_, _ = p.Statuses(ctx)
		}(i)
	}
	wg.Wait()
	if got := metrics.count(metrics.readings, "soil_moisture"); got != 50 {
		t.Fatalf("readings = %d, want 50", got)
	}
}

func TestProcessorHonoursContextWhileWaiting(t *testing.T) {
	p := NewReadingProcessor(plantMonitor(t, nil), nil, newFakeMetrics(), nil, nil)
	if err := p.mu.lock(context.Background()); err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer p.mu.unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Process(ctx, snapAt(0, map[string]float64{"light_lux": 1})); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestDispatcherFansOut(t *testing.T) {
	metrics := newFakeMetrics()
	store := &memStore{}
	pub := &memPublisher{err: errors.New("broker unavailable")}
	d := NewEventDispatcher(store, pub, metrics, nil)
	ev := threshold.Event{Signal: "light_lux", Kind: threshold.ExitLow, Value: 210, Timestamp: t0}

	err := d.OnEvent(context.Background(), ev)
	if err == nil {
		t.Fatalf("publish failure must surface")
	}
	if got, _ := store.Latest(context.Background(), "light_lux"); got == nil || got.Kind != threshold.ExitLow {
		t.Fatalf("store must still be updated: %+v", got)
	}
	if len(pub.events) != 1 || metrics.count(metrics.errors, "event_publish") != 1 {
		t.Fatalf("publisher calls = %d, errors = %v", len(pub.events), metrics.errors)
	}

	pub.err = nil
	if err := d.OnEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.count(metrics.sent, "kafka") != 1 {
		t.Fatalf("sent = %v", metrics.sent)
	}
}
