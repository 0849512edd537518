package repository

import (
	"context"
	"time"

	domrepo "Floramigo/internal/domain/repository"
	"Floramigo/internal/services/threshold"
)

type eventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher writes crossing events to a Kafka topic keyed by
// signal, so all events of one signal stay ordered on one partition.
type KafkaEventPublisher struct {
	producer eventProducer
	topic    string
}

func NewKafkaEventPublisher(producer eventProducer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

// eventMessage is the wire schema on the events topic.
type eventMessage struct {
	Signal    string    `json:"signal"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"ts"`
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, ev threshold.Event) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Signal), eventMessage{
		Signal:    ev.Signal,
		Kind:      string(ev.Kind),
		State:     ev.Kind.Target().String(),
		Value:     ev.Value,
		Timestamp: ev.Timestamp.UTC(),
	})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
