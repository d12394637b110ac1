//go:build wireinject
// +build wireinject

package di

import (
	"FinReplay/pkg/config"
	"FinReplay/pkg/server"

	"github.com/google/wire"
)

var baseSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideEnvConfig,
	ProvideFeatures,

	// Infrastructure clients
	ProvideClickHouseClient,
	ProvideKafkaProducer,

	// Repositories
	ProvideFeedSource,
	ProvideKafkaResultPublisher,
	ProvideResultPublisher,
	ProvideSinks,
	ProvideSplitCatalog,

	// Ensemble
	ProvideProviderLoader,
	ProvideRegistry,

	ProvideEvaluator,
)

// InitializeApp wires the API server, queue workers and harness.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		baseSet,
		ProvideRedisClient,
		ProvideReportCache,
		ProvideReportStore,
		ProvideQueue,
		ProvideRateLimiter,
		ProvideProgressHub,
		ProvideProgressPublisher,
		ProvideEvaluationService,
		ProvideEvaluationJob,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeHarness wires the harness for a single command line run.
func InitializeHarness(cfg *config.Config) (*Harness, func(), error) {
	wire.Build(
		baseSet,
		ProvideNoProgress,
		ProvideHarness,
	)
	return nil, nil, nil
}
