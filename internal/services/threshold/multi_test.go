package threshold

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type recordingSink struct {
	events  []Event
	failOn  string
	panicOn string
}

func (s *recordingSink) OnEvent(_ context.Context, ev Event) error {
	if ev.Signal == s.panicOn {
		panic("boom")
	}
	s.events = append(s.events, ev)
	if ev.Signal == s.failOn {
		return errors.New("notifier down")
	}
	return nil
}

func plantThresholds() map[string]ThresholdConfig {
	return map[string]ThresholdConfig{
		"soil_moisture": {Low: Float(35), High: Float(80), Hysteresis: 2},
		"temperature_c": {Low: Float(18), High: Float(30), Hysteresis: 0.5},
		"light_lux":     {Low: Float(200)},
	}
}

func newPlantMonitor(t *testing.T, opts ...Option) *MultiSignalMonitor {
	t.Helper()
	m, err := New(plantThresholds(), rawTiming(), opts...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return m
}

func TestUnknownSignalIgnored(t *testing.T) {
	m := newPlantMonitor(t)
	got, err := m.UpdateAt(context.Background(), map[string]float64{"unconfigured_signal": 99}, at(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got["unconfigured_signal"]; ok {
		t.Fatalf("unknown signal must not appear in result: %v", got)
	}
}

func TestResultHasEntryForEveryKnownSignal(t *testing.T) {
	m := newPlantMonitor(t)
	got, err := m.UpdateAt(context.Background(), map[string]float64{
		"soil_moisture": 55,
		"temperature_c": 22,
		"humidity":      40,
	}, at(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("result = %v, want two entries", got)
	}
	for _, name := range []string{"soil_moisture", "temperature_c"} {
		kind, ok := got[name]
		if !ok || kind != None {
			t.Fatalf("%s: got %q/%v, want explicit None", name, kind, ok)
		}
	}
}

func TestEventsReachSinkWithSmoothedValue(t *testing.T) {
	sink := &recordingSink{}
	timing := rawTiming()
	timing.SmoothingAlpha = 0.5
	m, err := New(plantThresholds(), timing, WithSink(sink))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, s := range []struct {
		sec  float64
		temp float64
	}{{0, 32}, {0.2, 32}, {0.7, 32}} {
		if _, err := m.UpdateAt(ctx, map[string]float64{"temperature_c": s.temp}, at(s.sec)); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if len(sink.events) != 1 {
		t.Fatalf("events = %v, want one", sink.events)
	}
	ev := sink.events[0]
	if ev.Signal != "temperature_c" || ev.Kind != EnterHigh || ev.Value != 32 || !ev.Timestamp.Equal(at(0.7)) {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestUpdateUsesInjectedClock(t *testing.T) {
	clock := &fakeClock{now: at(0)}
	sink := &recordingSink{}
	m := newPlantMonitor(t, WithClock(clock), WithSink(sink))
	ctx := context.Background()

	if _, err := m.Update(ctx, map[string]float64{"light_lux": 50}); err != nil {
		t.Fatalf("update: %v", err)
	}
	clock.now = at(0.5)
	got, err := m.Update(ctx, map[string]float64{"light_lux": 50})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got["light_lux"] != EnterLow {
		t.Fatalf("got %v, want enter_low", got)
	}
	if !sink.events[0].Timestamp.Equal(at(0.5)) {
		t.Fatalf("event timestamp %v, want clock time", sink.events[0].Timestamp)
	}
}

func TestInvalidReadingDoesNotStopBatch(t *testing.T) {
	m := newPlantMonitor(t)
	ctx := context.Background()
	batch := map[string]float64{"soil_moisture": math.NaN(), "light_lux": 10}

	if _, err := m.UpdateAt(ctx, batch, at(0)); err == nil {
		t.Fatalf("expected error for NaN reading")
	}
	got, err := m.UpdateAt(ctx, batch, at(0.5))
	var ire *InvalidReadingError
	if !errors.As(err, &ire) || ire.Signal != "soil_moisture" {
		t.Fatalf("err = %v, want InvalidReadingError for soil_moisture", err)
	}
	if got["light_lux"] != EnterLow {
		t.Fatalf("light_lux = %q, want enter_low", got["light_lux"])
	}
	if kind, ok := got["soil_moisture"]; !ok || kind != None {
		t.Fatalf("soil_moisture = %q/%v, want None entry", kind, ok)
	}
	mon, _ := m.Monitor("soil_moisture")
	if _, ok := mon.Smoothed(); ok {
		t.Fatalf("NaN must not seed the smoothed value")
	}
}

func TestSinkFailureReportedAfterWholeBatch(t *testing.T) {
	for _, tc := range []struct {
		name string
		sink *recordingSink
	}{
		{"error", &recordingSink{failOn: "light_lux"}},
		{"panic", &recordingSink{panicOn: "light_lux"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := newPlantMonitor(t, WithSink(tc.sink))
			ctx := context.Background()
			batch := map[string]float64{"light_lux": 10, "soil_moisture": 20, "temperature_c": 40}
			if _, err := m.UpdateAt(ctx, batch, at(0)); err != nil {
				t.Fatalf("arming batch: %v", err)
			}
			got, err := m.UpdateAt(ctx, batch, at(1))

			var se *SinkError
			if !errors.As(err, &se) || se.Signal != "light_lux" || se.Kind != EnterLow {
				t.Fatalf("err = %v, want SinkError for light_lux", err)
			}
			want := map[string]EventKind{"light_lux": EnterLow, "soil_moisture": EnterLow, "temperature_c": EnterHigh}
			for name, kind := range want {
				if got[name] != kind {
					t.Fatalf("%s = %q, want %q", name, got[name], kind)
				}
				mon, _ := m.Monitor(name)
				if mon.State() != kind.Target() {
					t.Fatalf("%s state %v, want committed %v", name, mon.State(), kind.Target())
				}
			}
			var delivered []string
			for _, ev := range tc.sink.events {
				delivered = append(delivered, ev.Signal)
			}
			if !contains(delivered, "soil_moisture") || !contains(delivered, "temperature_c") {
				t.Fatalf("other signals not delivered: %v", delivered)
			}
		})
	}
}

func TestSnapshot(t *testing.T) {
	m := newPlantMonitor(t)
	if _, err := m.UpdateAt(context.Background(), map[string]float64{"soil_moisture": 30}, at(0)); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap := m.Snapshot()
	if len(snap) != 3 || snap[0].Signal != "light_lux" || snap[1].Signal != "soil_moisture" {
		t.Fatalf("unexpected snapshot order: %+v", snap)
	}
	if snap[0].Smoothed != nil {
		t.Fatalf("light_lux has no reading yet")
	}
	if snap[1].Smoothed == nil || *snap[1].Smoothed != 30 || !snap[1].Pending || snap[1].State != "normal" {
		t.Fatalf("unexpected soil status: %+v", snap[1])
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
