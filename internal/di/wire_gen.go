//go:build !wireinject
// +build !wireinject

// InitializeApp below is maintained by hand in the shape wire generates from
// wire.go. Keep its provider order in step with the wire.Build set.

package di

import (
	"AdaptiveEnsemble/pkg/config"
	"AdaptiveEnsemble/pkg/server"
)

// Injectors from wire.go:

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	client, cleanup, err := ProvideClickHouseClient(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	chTradeStore := ProvideTradeStore(client, cfg, logger)
	historicalTradeStore := ProvideHistory(chTradeStore)
	gate := ProvideGate(logger)
	engine := ProvideFeatureEngine(logger)
	registry := ProvideRegistry(cfg)
	regimeDetector := ProvideDetector(cfg)
	performanceLog := ProvidePerformanceLog(cfg)
	learner := ProvideLearner(cfg, registry, logger)
	trainer := ProvideTrainer(cfg, gate, engine, registry, regimeDetector, performanceLog, learner, historicalTradeStore, logger)
	predictor := ProvidePredictor(gate, engine, regimeDetector, performanceLog, logger)
	service, cleanup2, err := ProvideCache(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	bundleStore := ProvideBundleStore(service, logger)
	producer, cleanup3, err := ProvideKafkaProducer(cfg)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	intentSink := ProvideIntentSink(producer, cfg)
	metrics := ProvideMetrics(cfg)
	core := ProvideCore(cfg, trainer, predictor, learner, performanceLog, regimeDetector, bundleStore, intentSink, metrics, logger)
	candleStore := ProvideCandleStore(client, cfg, logger)
	frameLoader := ProvideFrameLoader(candleStore)
	consumer, err := ProvideKafkaConsumer(cfg, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	closedTradeWriter := ProvideClosedTradeWriter(chTradeStore)
	outcomeHandler := ProvideOutcomeHandler(cfg, core, closedTradeWriter, logger)
	httpServer := ProvideHTTPServer(cfg, core, frameLoader, logger)
	app := ProvideApp(cfg, logger, core, frameLoader, consumer, outcomeHandler, httpServer)
	return app, func() {
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}
