package threshold

import "time"

// SignalBandMonitor tracks one named signal through smoothing, hysteresis,
// dwell and cooldown. It is not safe for concurrent use.
type SignalBandMonitor struct {
	name   string
	cfg    ThresholdConfig
	timing TimingConfig

	smoothed    float64
	hasSmoothed bool
	state       State

	pendingSince time.Time
	hasPending   bool

	lastEmitted map[EventKind]time.Time
}

// NewSignalBandMonitor validates cfg and timing and returns a monitor in StateNormal.
func NewSignalBandMonitor(name string, cfg ThresholdConfig, timing TimingConfig) (*SignalBandMonitor, error) {
	if name == "" {
		return nil, &ConfigurationError{Reason: "signal name is empty"}
	}
	if err := cfg.Validate(name); err != nil {
		return nil, err
	}
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	return &SignalBandMonitor{
		name:        name,
		cfg:         cfg,
		timing:      timing,
		lastEmitted: make(map[EventKind]time.Time, 4),
	}, nil
}

// Update feeds one raw reading taken at ts and returns the kind of the
// transition it confirmed, or None. ts must not go backwards between calls;
// if it does, dwell and cooldown are measured against the stale values.
func (m *SignalBandMonitor) Update(value float64, ts time.Time) (EventKind, error) {
	if !isFinite(value) {
		return None, &InvalidReadingError{Signal: m.name, Value: value}
	}

	v := m.smooth(value)

	candidate := m.candidate(v)
	if candidate == None {
		m.hasPending = false
		return None, nil
	}

	if !m.hasPending {
		m.pendingSince = ts
		m.hasPending = true
		return None, nil
	}
	if ts.Sub(m.pendingSince) < m.timing.MinDuration {
		return None, nil
	}

	// pending stays armed while cooling down
	if last, ok := m.lastEmitted[candidate]; ok && ts.Sub(last) < m.timing.Cooldown {
		return None, nil
	}

	m.state = candidate.Target()
	m.hasPending = false
	m.lastEmitted[candidate] = ts
	return candidate, nil
}

func (m *SignalBandMonitor) smooth(value float64) float64 {
	if !m.hasSmoothed {
		m.smoothed = value
		m.hasSmoothed = true
		return m.smoothed
	}
	a := m.timing.SmoothingAlpha
	m.smoothed = a*value + (1-a)*m.smoothed
	return m.smoothed
}

// candidate returns the only transition reachable from the current state
// that the smoothed value v satisfies. Both boundaries are inclusive.
func (m *SignalBandMonitor) candidate(v float64) EventKind {
	switch m.state {
	case StateNormal:
		if m.cfg.Low != nil && v <= *m.cfg.Low {
			return EnterLow
		}
		if m.cfg.High != nil && v >= *m.cfg.High {
			return EnterHigh
		}
	case StateLow:
		if exit, ok := m.cfg.ExitLow(); ok && v >= exit {
			return ExitLow
		}
	case StateHigh:
		if exit, ok := m.cfg.ExitHigh(); ok && v <= exit {
			return ExitHigh
		}
	}
	return None
}

// Name returns the signal name.
func (m *SignalBandMonitor) Name() string { return m.name }

// State returns the confirmed band.
func (m *SignalBandMonitor) State() State { return m.state }

// Smoothed returns the running value; ok is false before the first reading.
func (m *SignalBandMonitor) Smoothed() (value float64, ok bool) {
	return m.smoothed, m.hasSmoothed
}

// Pending returns the start of the unconfirmed crossing, if any.
func (m *SignalBandMonitor) Pending() (since time.Time, ok bool) {
	return m.pendingSince, m.hasPending
}

// LastEmitted returns when kind last fired.
func (m *SignalBandMonitor) LastEmitted(kind EventKind) (time.Time, bool) {
	t, ok := m.lastEmitted[kind]
	return t, ok
}

// Thresholds returns the band configuration.
func (m *SignalBandMonitor) Thresholds() ThresholdConfig { return m.cfg }
