package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Floramigo/internal/usecase"
	"Floramigo/pkg/config"
	xhttp "Floramigo/pkg/http"
	pkgkafka "Floramigo/pkg/kafka"
	applogger "Floramigo/pkg/logger"
)

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	proc        *usecase.ReadingProcessor
	dispatcher  *usecase.EventDispatcher
	collector   *usecase.ReadingCollector
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	closers     []namedCloser
}

// New creates a new App. Ingestion paths are attached with SetCollector
// and SetConsumer; an app without either still serves the HTTP API.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	proc *usecase.ReadingProcessor,
	dispatcher *usecase.EventDispatcher,
	handler xhttp.Handler,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:         cfg,
		log:         l,
		proc:        proc,
		dispatcher:  dispatcher,
		httpHandler: handler,
	}
}

// SetCollector attaches the sensor hub collector.
func (a *App) SetCollector(c *usecase.ReadingCollector) { a.collector = c }

// SetConsumer attaches the Kafka readings consumer and its handler.
func (a *App) SetConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = h
}

// AddCloser registers a resource closed last during shutdown.
func (a *App) AddCloser(name string, c io.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, c: c})
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithLogger(a.log),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	if a.collector != nil {
		go a.startCollector(ctx)
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
		}
	}

	a.log.Info("monitor running",
		applogger.Strings("signals", a.proc.Signals()),
		applogger.String("backend", a.cfg.Backend.Type))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// startCollector keeps trying to reach the sensor hub until the first
// connection succeeds; the collector reconnects by itself afterwards.
func (a *App) startCollector(ctx context.Context) {
	for {
		err := a.collector.Start(ctx)
		if err == nil {
			a.log.Info("collector started", applogger.String("url", a.cfg.SensorHub.URL))
			return
		}
		a.log.Warn("sensor hub unreachable", applogger.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.SensorHub.ReconnectDelay):
		}
	}
}

// shutdown stops the ingestion paths first so the readings log and the
// event publisher see no writes while they flush.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.proc.Close(); err != nil {
		a.log.Warn("reading log close error", applogger.Error(err))
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(); err != nil {
			a.log.Warn("event publisher close error", applogger.Error(err))
		}
	}
	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
