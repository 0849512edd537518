package repository

import (
	"context"

	"Floramigo/internal/domain/models"
	"Floramigo/internal/services/threshold"
)

// ReadingSource streams sensor snapshots.
type ReadingSource interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Snapshot, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ReadingLog is the append-only record of raw snapshots.
type ReadingLog interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, s *models.Snapshot) error
	Close() error
}

// EventPublisher forwards crossing events to downstream consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev threshold.Event) error
	Close() error
}

// EventStateStore keeps the most recent event per signal.
type EventStateStore interface {
	Save(ctx context.Context, ev threshold.Event) error
	Latest(ctx context.Context, signal string) (*threshold.Event, error)
}

type Metrics interface {
	RecordReading(signal string)
	RecordEvent(signal, kind string)
	RecordMessageSent(backend string)
	RecordError(kind string)
	RecordSignal(signal string, smoothed float64, state int)
	RecordLatency(op string, seconds float64)
}
