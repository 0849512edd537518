package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"Floramigo/internal/domain/models"
	"Floramigo/internal/services/threshold"
)

type fakeMetrics struct {
	mu       sync.Mutex
	readings map[string]int
	events   map[string]int
	errors   map[string]int
	sent     map[string]int
	smoothed map[string]float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		readings: map[string]int{},
		events:   map[string]int{},
		errors:   map[string]int{},
		sent:     map[string]int{},
		smoothed: map[string]float64{},
	}
}

func (m *fakeMetrics) RecordReading(signal string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[signal]++
}

func (m *fakeMetrics) RecordEvent(signal, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[signal+"/"+kind]++
}

func (m *fakeMetrics) RecordMessageSent(backend string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[backend]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordSignal(signal string, smoothed float64, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.smoothed[signal] = smoothed
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func (m *fakeMetrics) count(table map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return table[key]
}

type memLog struct {
	mu    sync.Mutex
	snaps []*models.Snapshot
	err   error
}

func (l *memLog) Init(context.Context) error { return nil }

func (l *memLog) Append(_ context.Context, s *models.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s.Clone())
	return l.err
}

func (l *memLog) Close() error { return nil }

type memStore struct {
	mu     sync.Mutex
	latest map[string]threshold.Event
}

func (s *memStore) Save(_ context.Context, ev threshold.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		s.latest = map[string]threshold.Event{}
	}
	s.latest[ev.Signal] = ev
	return nil
}

func (s *memStore) Latest(_ context.Context, signal string) (*threshold.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.latest[signal]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

type memPublisher struct {
	events []threshold.Event
	err    error
}

func (p *memPublisher) PublishEvent(_ context.Context, ev threshold.Event) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *memPublisher) Close() error { return nil }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var errHubGone = errors.New("hub gone")

// fakeSource serves one round of snapshots per Read call and reports a
// stream error after every round but the last.
type fakeSource struct {
	mu         sync.Mutex
	rounds     [][]*models.Snapshot
	reads      int
	reconnects int
	closed     bool
}

func (s *fakeSource) Connect(context.Context) error { return nil }

func (s *fakeSource) Read(ctx context.Context) (<-chan *models.Snapshot, <-chan error) {
	s.mu.Lock()
	round := s.rounds[s.reads]
	s.reads++
	last := s.reads == len(s.rounds)
	s.mu.Unlock()

	out := make(chan *models.Snapshot)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, snap := range round {
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
		if !last {
			errs <- errHubGone
			return
		}
		<-ctx.Done()
	}()
	return out, errs
}

func (s *fakeSource) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) IsConnected() bool { return true }
