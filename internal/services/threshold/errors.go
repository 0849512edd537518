package threshold

import "fmt"

// ConfigurationError reports a threshold or timing setting that cannot be used.
// Signal is empty for errors in the shared timing parameters.
type ConfigurationError struct {
	Signal string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Signal != "" && e.Field != "":
		return fmt.Sprintf("threshold config %s.%s: %s", e.Signal, e.Field, e.Reason)
	case e.Signal != "":
		return fmt.Sprintf("threshold config %s: %s", e.Signal, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("timing config %s: %s", e.Field, e.Reason)
	default:
		return "threshold config: " + e.Reason
	}
}

// InvalidReadingError is returned for NaN or infinite readings.
// The monitor state is left untouched.
type InvalidReadingError struct {
	Signal string
	Value  float64
}

func (e *InvalidReadingError) Error() string {
	return fmt.Sprintf("invalid reading for %s: %v is not finite", e.Signal, e.Value)
}

// SinkError wraps a failure of the event sink for one fired event.
type SinkError struct {
	Signal string
	Kind   EventKind
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("event sink %s/%s: %v", e.Signal, e.Kind, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
