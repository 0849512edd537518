package usecase

import (
	"context"
	"errors"
	"fmt"

	domrepo "Floramigo/internal/domain/repository"
	"Floramigo/internal/services/threshold"
	applogger "Floramigo/pkg/logger"
)

// EventDispatcher is the monitor's sink. It logs every crossing, keeps the
// latest event per signal and forwards to Kafka when a publisher is set.
type EventDispatcher struct {
	store   domrepo.EventStateStore
	pub     domrepo.EventPublisher
	metrics domrepo.Metrics
	l       *applogger.Logger
}

// NewEventDispatcher builds the sink; store and pub may be nil.
func NewEventDispatcher(store domrepo.EventStateStore, pub domrepo.EventPublisher, metrics domrepo.Metrics, l *applogger.Logger) *EventDispatcher {
	if l == nil {
		l = applogger.Nop()
	}
	return &EventDispatcher{store: store, pub: pub, metrics: metrics, l: l}
}

var _ threshold.Sink = (*EventDispatcher)(nil)

func (d *EventDispatcher) OnEvent(ctx context.Context, ev threshold.Event) error {
	d.l.Info("threshold crossed",
		applogger.String("signal", ev.Signal),
		applogger.String("kind", string(ev.Kind)),
		applogger.Float64("value", ev.Value),
		applogger.Time("ts", ev.Timestamp),
	)
	d.metrics.RecordEvent(ev.Signal, string(ev.Kind))

	var errs []error
	if d.store != nil {
		if err := d.store.Save(ctx, ev); err != nil {
			d.metrics.RecordError("event_store")
			errs = append(errs, err)
		}
	}
	if d.pub != nil {
		if err := d.pub.PublishEvent(ctx, ev); err != nil {
			d.metrics.RecordError("event_publish")
			errs = append(errs, fmt.Errorf("publish event: %w", err))
		} else {
			d.metrics.RecordMessageSent("kafka")
		}
	}
	return errors.Join(errs...)
}

// Close releases the publisher.
func (d *EventDispatcher) Close() error {
	if d.pub != nil {
		return d.pub.Close()
	}
	return nil
}
