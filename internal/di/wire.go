//go:build wireinject
// +build wireinject

package di

import (
	"SignalDesk/pkg/config"
	"SignalDesk/pkg/server"

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
		ProvideRedisClient,
		ProvideCache,
		ProvideClickHouseClient,
		ProvidePostgresClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideTelegram,

		// Market data
		ProvideCandleStore,
		ProvideProviderFactory,
		ProvideGateway,

		// Signal pipeline
		ProvideStrategies,
		ProvideAggregator,
		ProvidePricer,
		ProvideSignalStore,
		ProvideFeed,
		ProvideHub,
		ProvideSignalPublisher,
		ProvideLifecycle,
		ProvideQueue,
		ProvideSignalSink,
		ProvideThrottle,
		ProvideGenerator,
		ProvideScheduler,
		ProvidePositionManager,
		ProvideCandleHandlers,

		// HTTP
		ProvideHealthChecks,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
