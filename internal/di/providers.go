package di

import (
	"context"
	"fmt"
	"time"

	"Floramigo/internal/domain/repository"
	"Floramigo/internal/handler/api"
	mid "Floramigo/internal/middleware"
	internalrepo "Floramigo/internal/repository"
	"Floramigo/internal/service/cache"
	"Floramigo/internal/service/ratelimit"
	"Floramigo/internal/service/sensorhub"
	"Floramigo/internal/services/threshold"
	"Floramigo/internal/usecase"
	pkgch "Floramigo/pkg/clickhouse"
	"Floramigo/pkg/config"
	xhttp "Floramigo/pkg/http"
	pkgkafka "Floramigo/pkg/kafka"
	applogger "Floramigo/pkg/logger"
	"Floramigo/pkg/metrics"
	"Floramigo/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

const initTimeout = 10 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideClickHouseClient connects to ClickHouse and creates the readings
// table. It returns nil when the readings log is not stored in ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Backend.Type != "clickhouse" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, true),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx, internalrepo.ReadingsSchema(cfg.ClickHouse.Database, cfg.Backend.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideReadingLog picks the readings log backend and puts the
// retrying buffer in front of it. The log is initialised here.
func ProvideReadingLog(
	cfg *config.Config,
	chClient *pkgch.Client,
	m repository.Metrics,
	l *applogger.Logger,
) (repository.ReadingLog, error) {
	var backend repository.ReadingLog
	switch cfg.Backend.Type {
	case "clickhouse":
		chLog := internalrepo.NewCHReadingLog(chClient, cfg.ClickHouse.Database, cfg.Backend.Table)
		chLog.SetLogger(l)
		backend = chLog
	default:
		backend = internalrepo.NewCSVReadingLog(cfg.Backend.CSVPath, cfg.Backend.Fields)
	}

	buf := mid.NewBufferedReadingLog(backend, m, mid.WithLogger(l))
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := buf.Init(ctx); err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return buf, nil
}

// ProvideRedisCache connects to Redis; nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}

// ProvideEventStore keeps the latest event per signal in Redis when it is
// available and in process memory otherwise.
func ProvideEventStore(cfg *config.Config, rc *cache.RedisCache) repository.EventStateStore {
	var c cache.BytesCache = cache.NewTTLCache()
	if rc != nil {
		c = rc
	}
	return internalrepo.NewCacheEventStore(c, cfg.Redis.EventTTL)
}

// ProvideKafkaProducer creates a Kafka producer; nil without an events topic.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Kafka.EventsTopic == "" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithLinger(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes events to Kafka; nil without a producer.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideEventDispatcher creates the sink every fired event goes through.
func ProvideEventDispatcher(
	store repository.EventStateStore,
	pub repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.EventDispatcher {
	return usecase.NewEventDispatcher(store, pub, m, l.With(applogger.String("component", "events")))
}

// ProvideMonitor builds one band monitor per configured signal.
func ProvideMonitor(cfg *config.Config, sink *usecase.EventDispatcher) (*threshold.MultiSignalMonitor, error) {
	mon, err := threshold.New(cfg.Monitor.Thresholds, cfg.Timing(), threshold.WithSink(sink))
	if err != nil {
		return nil, fmt.Errorf("threshold monitor: %w", err)
	}
	return mon, nil
}

// ProvideReadingProcessor creates the reading processor use case.
func ProvideReadingProcessor(
	mon *threshold.MultiSignalMonitor,
	log repository.ReadingLog,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ReadingProcessor {
	return usecase.NewReadingProcessor(mon, log, m, threshold.SystemClock{}, l)
}

// ProvideReadingSource creates the sensor hub WebSocket client; nil
// without a hub URL.
func ProvideReadingSource(cfg *config.Config, l *applogger.Logger) repository.ReadingSource {
	if cfg.SensorHub.URL == "" {
		return nil
	}
	return sensorhub.New(sensorhub.Config{
		URL:            cfg.SensorHub.URL,
		Fields:         cfg.Backend.Fields,
		PollInterval:   cfg.SensorHub.PollInterval,
		ReconnectDelay: cfg.SensorHub.ReconnectDelay,
		PingInterval:   cfg.SensorHub.PingInterval,
	}, l)
}

// ProvideReadingCollector creates the collector; nil without a source.
func ProvideReadingCollector(
	source repository.ReadingSource,
	proc *usecase.ReadingProcessor,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ReadingCollector {
	if source == nil {
		return nil
	}
	return usecase.NewReadingCollector(source, proc, m, l.With(applogger.String("component", "collector")))
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML;
// nil without a readings topic.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Kafka.ReadingsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			m.RecordError("kafka_handle")
			l.Warn("kafka message failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Any("offset", km.Offset),
				applogger.Error(err),
			)
		},
	})
	return consumer, nil
}

// ProvideKafkaReadingsHandler feeds the readings topic into the
// processor; nil without a readings topic.
func ProvideKafkaReadingsHandler(
	cfg *config.Config,
	proc *usecase.ReadingProcessor,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.KafkaReadingsHandler {
	if cfg.Kafka.ReadingsTopic == "" {
		return nil
	}
	return usecase.NewKafkaReadingsHandler(cfg.Kafka.ReadingsTopic, proc, m, l)
}

// ProvideHTTPHandler creates the band API with its health checks.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	proc *usecase.ReadingProcessor,
	store repository.EventStateStore,
	chClient *pkgch.Client,
	rc *cache.RedisCache,
	collector *usecase.ReadingCollector,
) xhttp.Handler {
	rl := ratelimit.New(cfg.Server.IngestBurst, cfg.Server.IngestRPS)
	h := api.NewBandsEchoHandler(l.With(applogger.String("component", "api")), proc, store, rl)
	if chClient != nil {
		h.AddHealthCheck("clickhouse", chClient.Health)
	}
	if rc != nil {
		h.AddHealthCheck("redis", rc.Ping)
	}
	if collector != nil {
		h.AddHealthCheck("sensor_hub", func(context.Context) error {
			if !collector.IsConnected() {
				return fmt.Errorf("not connected")
			}
			return nil
		})
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.ReadingCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaReadingsHandler,
	proc *usecase.ReadingProcessor,
	dispatcher *usecase.EventDispatcher,
	handler xhttp.Handler,
	rc *cache.RedisCache,
) *server.App {
	app := server.New(cfg, l, proc, dispatcher, handler)
	if collector != nil {
		app.SetCollector(collector)
	}
	if consumer != nil && kh != nil {
		app.SetConsumer(consumer, kh)
	}
	if rc != nil {
		app.AddCloser("redis", rc)
	}
	return app
}
