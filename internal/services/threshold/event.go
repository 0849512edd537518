package threshold

import (
	"context"
	"time"
)

// State is the confirmed band a signal currently occupies.
type State int

const (
	StateNormal State = iota
	StateLow
	StateHigh
)

func (s State) String() string {
	switch s {
	case StateLow:
		return "low"
	case StateHigh:
		return "high"
	default:
		return "normal"
	}
}

// EventKind names a confirmed band transition. None means nothing fired.
type EventKind string

const (
	None      EventKind = ""
	EnterLow  EventKind = "enter_low"
	ExitLow   EventKind = "exit_low"
	EnterHigh EventKind = "enter_high"
	ExitHigh  EventKind = "exit_high"
)

// Target returns the state a signal is in after the transition.
func (k EventKind) Target() State {
	switch k {
	case EnterLow:
		return StateLow
	case EnterHigh:
		return StateHigh
	default:
		return StateNormal
	}
}

// Event is emitted once per confirmed transition.
type Event struct {
	Signal    string    `json:"signal"`
	Kind      EventKind `json:"kind"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives fired events synchronously from inside Update.
// Implementations must not block indefinitely.
type Sink interface {
	OnEvent(ctx context.Context, ev Event) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) OnEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Clock supplies timestamps when the caller does not.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, which carries a monotonic reading.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
