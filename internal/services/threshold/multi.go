package threshold

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// MultiSignalMonitor owns a fixed set of SignalBandMonitors and routes
// reading batches to them. Callers must serialize Update calls.
type MultiSignalMonitor struct {
	monitors map[string]*SignalBandMonitor
	names    []string
	timing   TimingConfig
	sink     Sink
	clock    Clock
}

// Option configures a MultiSignalMonitor.
type Option func(*MultiSignalMonitor)

// WithSink registers the single consumer of fired events.
func WithSink(s Sink) Option {
	return func(m *MultiSignalMonitor) {
		m.sink = s
	}
}

// WithClock overrides the time source used by Update.
func WithClock(c Clock) Option {
	return func(m *MultiSignalMonitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// New builds one monitor per configured signal. Any invalid threshold or
// timing value fails construction with a *ConfigurationError.
func New(thresholds map[string]ThresholdConfig, timing TimingConfig, opts ...Option) (*MultiSignalMonitor, error) {
	if err := timing.Validate(); err != nil {
		return nil, err
	}

	m := &MultiSignalMonitor{
		monitors: make(map[string]*SignalBandMonitor, len(thresholds)),
		names:    make([]string, 0, len(thresholds)),
		timing:   timing,
		clock:    SystemClock{},
	}
	for name, cfg := range thresholds {
		mon, err := NewSignalBandMonitor(name, cfg, timing)
		if err != nil {
			return nil, err
		}
		m.monitors[name] = mon
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Update evaluates readings at the clock's current time.
func (m *MultiSignalMonitor) Update(ctx context.Context, readings map[string]float64) (map[string]EventKind, error) {
	return m.UpdateAt(ctx, readings, m.clock.Now())
}

// UpdateAt evaluates readings at ts. The result has an entry for every
// configured signal present in readings (None when nothing fired); unknown
// signals are skipped. Invalid readings and sink failures do not stop the
// batch: they are joined and returned once every signal was processed.
func (m *MultiSignalMonitor) UpdateAt(ctx context.Context, readings map[string]float64, ts time.Time) (map[string]EventKind, error) {
	out := make(map[string]EventKind, len(readings))
	var errs []error

	names := make([]string, 0, len(readings))
	for name := range readings {
		if _, ok := m.monitors[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		mon := m.monitors[name]
		kind, err := mon.Update(readings[name], ts)
		out[name] = kind
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if kind == None || m.sink == nil {
			continue
		}
		smoothed, _ := mon.Smoothed()
		ev := Event{Signal: name, Kind: kind, Value: smoothed, Timestamp: ts}
		if err := m.dispatch(ctx, ev); err != nil {
			errs = append(errs, &SinkError{Signal: name, Kind: kind, Err: err})
		}
	}

	return out, errors.Join(errs...)
}

// dispatch calls the sink, turning a panic into an error so the rest of
// the batch is still evaluated.
func (m *MultiSignalMonitor) dispatch(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return m.sink.OnEvent(ctx, ev)
}

// Signals returns the configured signal names in sorted order.
func (m *MultiSignalMonitor) Signals() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Monitor returns the monitor for name.
func (m *MultiSignalMonitor) Monitor(name string) (*SignalBandMonitor, bool) {
	mon, ok := m.monitors[name]
	return mon, ok
}

// Timing returns the shared timing parameters.
func (m *MultiSignalMonitor) Timing() TimingConfig { return m.timing }

// SignalStatus is a point-in-time view of one monitor.
type SignalStatus struct {
	Signal     string          `json:"signal"`
	State      string          `json:"state"`
	Smoothed   *float64        `json:"smoothed,omitempty"`
	Pending    bool            `json:"pending"`
	Thresholds ThresholdConfig `json:"thresholds"`
}

// Status describes one monitor.
func (m *SignalBandMonitor) Status() SignalStatus {
	st := SignalStatus{
		Signal:     m.name,
		State:      m.state.String(),
		Pending:    m.hasPending,
		Thresholds: m.cfg,
	}
	if m.hasSmoothed {
		v := m.smoothed
		st.Smoothed = &v
	}
	return st
}

// Snapshot returns the status of every monitor in signal name order.
func (m *MultiSignalMonitor) Snapshot() []SignalStatus {
	out := make([]SignalStatus, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, m.monitors[name].Status())
	}
	return out
}
