//go:build wireinject
// +build wireinject

package di

import (
	"Floramigo/pkg/config"
	"Floramigo/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideReadingLog,
		ProvideEventStore,
		ProvideEventPublisher,
		ProvideReadingSource,

		// Engine and use cases
		ProvideEventDispatcher,
		ProvideMonitor,
		ProvideReadingProcessor,
		ProvideReadingCollector,
		ProvideKafkaReadingsHandler,

		// Transport
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
