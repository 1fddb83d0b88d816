//go:build wireinject
// +build wireinject

package di

import (
	"SignalRelay/pkg/config"
	"SignalRelay/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisClient,
		ProvideClickHouseClient,
		ProvideKafkaConsumer,

		// Repositories
		ProvideDirectory,
		ProvideHistory,
		ProvideEvents,
		ProvideDedupCache,
		ProvideDedup,

		// Delivery
		ProvideChannels,
		ProvideDirectoryInvalidator,
		ProvideJobQueue,
		ProvideInvalidator,
		ProvideDispatcher,

		// Use cases
		ProvideIngest,
		ProvideKafkaAlertsHandler,

		// HTTP
		ProvideWebhookHandler,
		ProvideHTTPServer,

		// Application server
		ProvideResources,
		ProvideApp,
	)
	return &server.App{}, nil
}
