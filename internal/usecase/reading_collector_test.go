package usecase

import (
	"context"
	"testing"
	"time"

	"Floramigo/internal/domain/models"
)

func TestCollectorReconnectsAndKeepsFeeding(t *testing.T) {
	log := &memLog{}
	metrics := newFakeMetrics()
	p := NewReadingProcessor(plantMonitor(t, nil), log, metrics, nil, nil)
	src := &fakeSource{rounds: [][]*models.Snapshot{
		{snapAt(0, map[string]float64{"soil_moisture": 50})},
		{snapAt(1, map[string]float64{"soil_moisture": 51}), snapAt(2, map[string]float64{"soil_moisture": 52})},
	}}
	c := NewReadingCollector(src, p, metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		log.mu.Lock()
		n := len(log.snaps)
		log.mu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("logged %d snapshots, want 3", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.reconnects != 1 || !src.closed {
		t.Fatalf("reconnects = %d closed = %v", src.reconnects, src.closed)
	}
	if metrics.count(metrics.errors, "stream") != 1 {
		t.Fatalf("errors = %v", metrics.errors)
	}
}
