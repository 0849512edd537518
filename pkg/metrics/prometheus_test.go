package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordReading("soil_moisture")
	r.RecordReading("soil_moisture")
	r.RecordEvent("soil_moisture", "enter_low")
	r.RecordSignal("soil_moisture", 31.5, 1)
	r.RecordError("sink")

	if got := testutil.ToFloat64(r.readingsTotal.WithLabelValues("soil_moisture")); got != 2 {
		t.Fatalf("readings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.eventsTotal.WithLabelValues("soil_moisture", "enter_low")); got != 1 {
		t.Fatalf("events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.smoothed.WithLabelValues("soil_moisture")); got != 31.5 {
		t.Fatalf("smoothed = %v", got)
	}
	if got := testutil.ToFloat64(r.state.WithLabelValues("soil_moisture")); got != 1 {
		t.Fatalf("state = %v", got)
	}
	if got := testutil.ToFloat64(r.errorsTotal.WithLabelValues("sink")); got != 1 {
		t.Fatalf("errors = %v", got)
	}
}

func TestRecordersOnSeparateRegistries(t *testing.T) {
	// each registry gets its own collectors; no duplicate registration panic
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
