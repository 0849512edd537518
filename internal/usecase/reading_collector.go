package usecase

import (
	"context"
	"sync"

	"Floramigo/internal/domain/models"
	domrepo "Floramigo/internal/domain/repository"
	applogger "Floramigo/pkg/logger"
)

// ReadingCollector pulls snapshots from the sensor hub and feeds them to
// the processor, reconnecting whenever the stream fails.
type ReadingCollector struct {
	source  domrepo.ReadingSource
	proc    *ReadingProcessor
	metrics domrepo.Metrics
	l       *applogger.Logger
	wg      sync.WaitGroup
}

func NewReadingCollector(source domrepo.ReadingSource, proc *ReadingProcessor, metrics domrepo.Metrics, l *applogger.Logger) *ReadingCollector {
	if l == nil {
		l = applogger.Nop()
	}
	return &ReadingCollector{source: source, proc: proc, metrics: metrics, l: l}
}

// IsConnected returns true if the sensor hub is connected.
func (c *ReadingCollector) IsConnected() bool {
	return c.source.IsConnected()
}

// Start connects and consumes in the background until ctx ends.
func (c *ReadingCollector) Start(ctx context.Context) error {
	if err := c.source.Connect(ctx); err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	return nil
}

func (c *ReadingCollector) run(ctx context.Context) {
	for {
		snaps, errs := c.source.Read(ctx)
		err := c.consume(ctx, snaps, errs)
		if err == nil {
			return
		}
		c.metrics.RecordError("stream")
		c.l.Warn("sensor hub stream failed, reconnecting", applogger.Error(err))
		for {
			rerr := c.source.Reconnect(ctx)
			if rerr == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.metrics.RecordError("stream_reconnect")
			c.l.Error("sensor hub reconnect failed", applogger.Error(rerr))
		}
	}
}

// consume returns nil when ctx ends and the stream error otherwise.
func (c *ReadingCollector) consume(ctx context.Context, snaps <-chan *models.Snapshot, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
			errs = nil
		case s, ok := <-snaps:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				// a closed stream without a reported error still needs a reconnect
				return errStreamClosed
			}
			if _, err := c.proc.Process(ctx, s); err != nil {
				c.l.Debug("snapshot processed with errors", applogger.Error(err))
			}
		}
	}
}

// Shutdown closes the stream and waits for the consume loop.
func (c *ReadingCollector) Shutdown(ctx context.Context) error {
	err := c.source.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
