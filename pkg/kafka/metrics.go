package kafka

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce       sync.Once
	metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer

	producerMsgsTotal   *prometheus.CounterVec
	producerBytesTotal  *prometheus.CounterVec
	producerLatencyHist *prometheus.HistogramVec

	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerDLQTotal      *prometheus.CounterVec
)

// SetMetricsRegisterer sets the registerer used for producer and consumer
// metrics. It must be called before the first producer or consumer is built.
func SetMetricsRegisterer(reg prometheus.Registerer) {
	if reg != nil {
		metricsRegisterer = reg
	}
}

func initMetrics() {
	metricsOnce.Do(func() {
		f := promauto.With(metricsRegisterer)
		producerMsgsTotal = f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floramigo_kafka_producer_messages_total",
				Help: "Total messages published to Kafka",
			},
			[]string{"topic", "result"},
		)
		producerBytesTotal = f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floramigo_kafka_producer_bytes_total",
				Help: "Total payload bytes published",
			},
			[]string{"topic"},
		)
		producerLatencyHist = f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "floramigo_kafka_producer_publish_seconds",
				Help:    "Publish latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)
		consumerQueueDepth = f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "floramigo_kafka_consumer_queue_depth",
				Help: "Number of messages waiting in consumer queue",
			},
			[]string{"topic"},
		)
		consumerHandleLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "floramigo_kafka_consumer_handle_seconds",
				Help:    "Handling time per message",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)
		consumerDLQTotal = f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floramigo_kafka_consumer_dlq_total",
				Help: "Messages routed to the dead letter topic",
			},
			[]string{"topic"},
		)
	})
}
