package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"Floramigo/internal/domain/models"
	domrepo "Floramigo/internal/domain/repository"
	applogger "Floramigo/pkg/logger"
)

// BufferedReadingLog sits between the collector and a ReadingLog. It
// validates snapshots and, while the backend is failing, queues them and
// retries in the background so rows are not reordered. Close writes out
// the queue before closing the backend.
type BufferedReadingLog struct {
	next       domrepo.ReadingLog
	metrics    domrepo.Metrics
	log        *applogger.Logger
	bufCh      chan *models.Snapshot
	stopCh     chan struct{}
	done       chan struct{}
	backoffMin time.Duration
	backoffMax time.Duration
	queued     atomic.Int64 // enqueued and not yet written

	mu      sync.Mutex
	started bool
}

type BufferOption func(*BufferedReadingLog)

// WithBufferSize sets how many snapshots are kept while the backend is down.
func WithBufferSize(n int) BufferOption {
	return func(b *BufferedReadingLog) {
		if n > 0 {
			b.bufCh = make(chan *models.Snapshot, n)
		}
	}
}

// WithBackoff sets the retry backoff range for buffered writes.
func WithBackoff(min, max time.Duration) BufferOption {
	return func(b *BufferedReadingLog) {
		if min > 0 {
			b.backoffMin = min
		}
		if max >= b.backoffMin {
			b.backoffMax = max
		}
	}
}

func WithLogger(l *applogger.Logger) BufferOption {
	return func(b *BufferedReadingLog) {
		if l != nil {
			b.log = l
		}
	}
}

func NewBufferedReadingLog(next domrepo.ReadingLog, metrics domrepo.Metrics, opts ...BufferOption) *BufferedReadingLog {
	b := &BufferedReadingLog{
		next:       next,
		metrics:    metrics,
		log:        applogger.Nop(),
		bufCh:      make(chan *models.Snapshot, 1000),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ domrepo.ReadingLog = (*BufferedReadingLog)(nil)

// Init initializes the backend and starts the background flusher.
func (b *BufferedReadingLog) Init(ctx context.Context) error {
	if err := b.next.Init(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		b.started = true
		go b.flush()
	}
	return nil
}

// Append writes through when nothing is queued; otherwise, or when the
// write fails, the snapshot joins the queue. Only a full queue is an error.
// Readings that are not finite are left out of the logged row; the rest of
// the snapshot is still written.
func (b *BufferedReadingLog) Append(ctx context.Context, s *models.Snapshot) error {
	start := time.Now()
	s, err := b.sanitize(s)
	if err != nil {
		b.metrics.RecordError("reading_log_validate")
		return err
	}
	if b.queued.Load() == 0 {
		err := b.next.Append(ctx, s)
		if err == nil {
			b.metrics.RecordLatency("reading_log_append", time.Since(start).Seconds())
			return nil
		}
		b.metrics.RecordError("reading_log_append")
		b.log.Warn("reading log write failed, buffering", applogger.Error(err))
	}
	b.queued.Add(1)
	select {
	case b.bufCh <- s.Clone():
		return nil
	default:
		b.queued.Add(-1)
		b.metrics.RecordError("reading_log_buffer_full")
		return fmt.Errorf("reading log buffer full, snapshot at %s dropped", s.Timestamp.Format(time.RFC3339))
	}
}

// Pending reports how many snapshots wait for the backend.
func (b *BufferedReadingLog) Pending() int { return int(b.queued.Load()) }

func (b *BufferedReadingLog) flush() {
	defer close(b.done)
	for {
		select {
		case <-b.stopCh:
			b.drain(nil)
			return
		case s := <-b.bufCh:
			if !b.writeWithRetry(s) {
				b.drain(s)
				return
			}
		}
	}
}

// writeWithRetry retries s with backoff. It returns false, with s still
// unwritten, once a stop is requested.
func (b *BufferedReadingLog) writeWithRetry(s *models.Snapshot) bool {
	backoff := b.backoffMin
	for {
		if err := b.next.Append(context.Background(), s); err == nil {
			b.queued.Add(-1)
			return true
		}
		b.metrics.RecordError("reading_log_flush")
		select {
		case <-b.stopCh:
			return false
		case <-time.After(backoff):
		}
		if backoff < b.backoffMax {
			backoff = min(backoff*2, b.backoffMax)
		}
	}
}

// drain writes head, then everything still queued, in order. It gives up
// at the first failed write and reports what was left behind.
func (b *BufferedReadingLog) drain(head *models.Snapshot) {
	for {
		s := head
		head = nil
		if s == nil {
			select {
			case s = <-b.bufCh:
			default:
				return
			}
		}
		if err := b.next.Append(context.Background(), s); err != nil {
			b.metrics.RecordError("reading_log_flush")
			b.log.Warn("reading log closed with unwritten snapshots",
				applogger.Int("unwritten", b.Pending()),
				applogger.Error(err))
			return
		}
		b.queued.Add(-1)
	}
}

// Close writes out the queue, stops the flusher and closes the backend.
func (b *BufferedReadingLog) Close() error {
	b.mu.Lock()
	if b.started {
		b.started = false
		close(b.stopCh)
		b.mu.Unlock()
		<-b.done
	} else {
		b.mu.Unlock()
		b.drain(nil)
	}
	return b.next.Close()
}

// sanitize rejects snapshots that cannot be logged at all and strips
// readings that can: non-finite values and unnamed entries become empty
// cells. The caller's snapshot is never modified.
func (b *BufferedReadingLog) sanitize(s *models.Snapshot) (*models.Snapshot, error) {
	if s == nil {
		return nil, fmt.Errorf("snapshot nil")
	}
	if s.Timestamp.IsZero() {
		return nil, fmt.Errorf("snapshot timestamp missing")
	}
	var out *models.Snapshot
	for name, v := range s.Readings {
		if name != "" && !math.IsNaN(v) && !math.IsInf(v, 0) {
			continue
		}
		if out == nil {
			out = s.Clone()
		}
		delete(out.Readings, name)
		b.metrics.RecordError("reading_log_invalid_value")
		b.log.Warn("reading left out of log",
			applogger.String("signal", name),
			applogger.Float64("value", v))
	}
	if out == nil {
		return s, nil
	}
	return out, nil
}
