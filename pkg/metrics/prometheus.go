package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	readingsTotal *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec
	messagesSent  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	smoothed      *prometheus.GaugeVec
	state         *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a Prometheus metrics recorder registered on reg.
// A nil reg registers on the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		readingsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floramigo_readings_total",
				Help: "Total number of readings evaluated per signal",
			},
			[]string{"signal"},
		),
		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floramigo_threshold_events_total",
				Help: "Total number of threshold crossing events emitted",
			},
			[]string{"signal", "kind"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floramigo_messages_sent_total",
				Help: "Total number of messages written to a backend",
			},
			[]string{"backend"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floramigo_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		smoothed: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "floramigo_signal_smoothed_value",
				Help: "Last smoothed value per signal",
			},
			[]string{"signal"},
		),
		state: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "floramigo_signal_state",
				Help: "Current band state per signal (0 normal, 1 low, 2 high)",
			},
			[]string{"signal"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "floramigo_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordReading counts one evaluated reading for a signal.
func (r *Recorder) RecordReading(signal string) {
	r.readingsTotal.WithLabelValues(signal).Inc()
}

// RecordEvent counts an emitted crossing.
func (r *Recorder) RecordEvent(signal, kind string) {
	r.eventsTotal.WithLabelValues(signal, kind).Inc()
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend string) {
	r.messagesSent.WithLabelValues(backend).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordSignal publishes the smoothed value and band state of a signal.
func (r *Recorder) RecordSignal(signal string, smoothed float64, state int) {
	r.smoothed.WithLabelValues(signal).Set(smoothed)
	r.state.WithLabelValues(signal).Set(float64(state))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
