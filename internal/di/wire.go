//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"AdaptiveEnsemble/pkg/config"
	"AdaptiveEnsemble/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideCandleStore,
		ProvideTradeStore,
		ProvideHistory,
		ProvideClosedTradeWriter,
		ProvideBundleStore,
		ProvideIntentSink,

		// Learning core
		ProvideGate,
		ProvideFeatureEngine,
		ProvideRegistry,
		ProvideDetector,
		ProvidePerformanceLog,
		ProvideLearner,
		ProvideTrainer,
		ProvidePredictor,

		// Use cases
		ProvideCore,
		ProvideFrameLoader,
		ProvideOutcomeHandler,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
