package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Floramigo/internal/domain/models"
	domrepo "Floramigo/internal/domain/repository"
	pkgkafka "Floramigo/pkg/kafka"
	applogger "Floramigo/pkg/logger"
	"Floramigo/pkg/util"
)

// KafkaReadingsHandler feeds snapshots published on a Kafka topic into the
// processor. Two payloads are accepted:
//
//	{"ts": "...", "readings": {"soil_moisture": 41.2, ...}}
//	{"ts": 1748764800, "signal": "soil_moisture", "value": 41.2}
//
// ts may be RFC3339 or unix seconds/millis; without it the processor clock
// stamps the snapshot.
type KafkaReadingsHandler struct {
	topic   string
	proc    *ReadingProcessor
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaReadingsHandler(topic string, proc *ReadingProcessor, metrics domrepo.Metrics, l *applogger.Logger) *KafkaReadingsHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaReadingsHandler{topic: topic, proc: proc, metrics: metrics, l: l}
}

func (h *KafkaReadingsHandler) Topic() string { return h.topic }

type readingsMessage struct {
	TS       json.RawMessage    `json:"ts"`
	Readings map[string]float64 `json:"readings"`
	Signal   string             `json:"signal"`
	Value    *float64           `json:"value"`
}

// Handle only fails on undecodable payloads so the consumer dead-letters
// them. Engine errors are logged: redelivering a batch would feed the same
// readings into the smoothing twice.
func (h *KafkaReadingsHandler) Handle(ctx context.Context, b []byte) error {
	snap, err := decodeReadings(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if !snap.Timestamp.IsZero() {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(snap.Timestamp).Seconds())
	}
	if _, err := h.proc.Process(ctx, snap); err != nil {
		h.l.Warn("kafka snapshot processed with errors",
			applogger.String("topic", h.topic),
			applogger.Error(err))
	}
	return nil
}

func decodeReadings(b []byte) (*models.Snapshot, error) {
	var m readingsMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode readings: %w", err)
	}
	snap := &models.Snapshot{Readings: m.Readings}
	if m.Signal != "" {
		if m.Value == nil {
			return nil, fmt.Errorf("decode readings: signal %s without value", m.Signal)
		}
		if snap.Readings == nil {
			snap.Readings = make(map[string]float64, 1)
		}
		snap.Readings[m.Signal] = *m.Value
	}
	if len(snap.Readings) == 0 {
		return nil, fmt.Errorf("decode readings: no readings")
	}
	if raw := string(bytes.Trim(m.TS, `"`)); raw != "" && raw != "null" {
		ts, ok := util.ParseTime(raw)
		if !ok {
			return nil, fmt.Errorf("decode readings: bad ts %q", raw)
		}
		snap.Timestamp = ts.UTC()
	}
	return snap, nil
}

var _ pkgkafka.MessageHandler = (*KafkaReadingsHandler)(nil)
