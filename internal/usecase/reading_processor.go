package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Floramigo/internal/domain/models"
	domrepo "Floramigo/internal/domain/repository"
	"Floramigo/internal/services/threshold"
	applogger "Floramigo/pkg/logger"
)

// ReadingProcessor is the single entry point for snapshots. It serializes
// access to the monitor, which is not safe for concurrent use, so the
// collector, the Kafka handler and the HTTP API can all feed it.
type ReadingProcessor struct {
	mu      chanMutex
	monitor *threshold.MultiSignalMonitor
	log     domrepo.ReadingLog
	metrics domrepo.Metrics
	clock   threshold.Clock
	l       *applogger.Logger
}

// chanMutex is a mutex whose Lock honours context cancellation.
type chanMutex chan struct{}

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() { <-m }

// NewReadingProcessor wires the monitor to its readings log; log may be nil.
func NewReadingProcessor(
	monitor *threshold.MultiSignalMonitor,
	log domrepo.ReadingLog,
	metrics domrepo.Metrics,
	clock threshold.Clock,
	l *applogger.Logger,
) *ReadingProcessor {
	if clock == nil {
		clock = threshold.SystemClock{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &ReadingProcessor{
		mu:      make(chanMutex, 1),
		monitor: monitor,
		log:     log,
		metrics: metrics,
		clock:   clock,
		l:       l,
	}
}

// Process logs the raw snapshot, then evaluates it. A snapshot without a
// timestamp is evaluated at the clock's time; the caller's snapshot is left
// as is. A failing readings log is reported but never prevents evaluation.
func (p *ReadingProcessor) Process(ctx context.Context, s *models.Snapshot) (map[string]threshold.EventKind, error) {
	if s == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	if err := p.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer p.mu.unlock()

	start := time.Now()
	if s.Timestamp.IsZero() {
		s = s.Clone()
		s.Timestamp = p.clock.Now()
	}

	var logErr error
	if p.log != nil {
		if err := p.log.Append(ctx, s); err != nil {
			p.metrics.RecordError("reading_log")
			p.l.Error("append reading log", applogger.Error(err))
			logErr = fmt.Errorf("reading log: %w", err)
		}
	}

	results, err := p.monitor.UpdateAt(ctx, s.Readings, s.Timestamp)
	p.record(results)
	if err != nil {
		p.classify(err)
	}
	p.metrics.RecordLatency("process_snapshot", time.Since(start).Seconds())
	return results, errors.Join(logErr, err)
}

func (p *ReadingProcessor) record(results map[string]threshold.EventKind) {
	for name := range results {
		mon, ok := p.monitor.Monitor(name)
		if !ok {
			continue
		}
		p.metrics.RecordReading(name)
		if v, ok := mon.Smoothed(); ok {
			p.metrics.RecordSignal(name, v, int(mon.State()))
		}
	}
}

func (p *ReadingProcessor) classify(err error) {
	var ire *threshold.InvalidReadingError
	if errors.As(err, &ire) {
		p.metrics.RecordError("invalid_reading")
	}
	var se *threshold.SinkError
	if errors.As(err, &se) {
		p.metrics.RecordError("sink")
	}
	p.l.Warn("snapshot processed with errors", applogger.Error(err))
}

// Now reads the processor's clock.
func (p *ReadingProcessor) Now() time.Time { return p.clock.Now() }

// Signals lists the configured signals.
func (p *ReadingProcessor) Signals() []string { return p.monitor.Signals() }

// Statuses returns a consistent view of every monitor.
func (p *ReadingProcessor) Statuses(ctx context.Context) ([]threshold.SignalStatus, error) {
	if err := p.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer p.mu.unlock()
	return p.monitor.Snapshot(), nil
}

// Status returns the view of one monitor; ok is false for unknown signals.
func (p *ReadingProcessor) Status(ctx context.Context, name string) (threshold.SignalStatus, bool, error) {
	if err := p.mu.lock(ctx); err != nil {
		return threshold.SignalStatus{}, false, err
	}
	defer p.mu.unlock()
	mon, ok := p.monitor.Monitor(name)
	if !ok {
		return threshold.SignalStatus{}, false, nil
	}
	return mon.Status(), true, nil
}

// Close flushes and closes the readings log.
func (p *ReadingProcessor) Close() error {
	if p.log != nil {
		return p.log.Close()
	}
	return nil
}
