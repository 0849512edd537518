package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"Floramigo/internal/services/threshold"
)

type published struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	msgs   []published
	closed bool
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: string(key), value: b})
	return nil
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func TestKafkaEventPublisher(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaEventPublisher(prod, "plant-events")
	ts := time.Date(2025, 6, 1, 8, 0, 1, 0, time.UTC)

	if err := pub.PublishEvent(context.Background(), threshold.Event{
		Signal: "soil_moisture", Kind: threshold.EnterLow, Value: 33.2, Timestamp: ts,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(prod.msgs) != 1 || prod.msgs[0].topic != "plant-events" || prod.msgs[0].key != "soil_moisture" {
		t.Fatalf("unexpected messages %+v", prod.msgs)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(prod.msgs[0].value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["kind"] != "enter_low" || got["state"] != "low" || got["value"] != 33.2 || got["ts"] != "2025-06-01T08:00:01Z" {
		t.Fatalf("unexpected payload %v", got)
	}

	if err := pub.Close(); err != nil || !prod.closed {
		t.Fatalf("close must reach producer")
	}
}
