package di

import (
	"context"
	"fmt"
	"time"

	drepo "AdaptiveEnsemble/internal/domain/repository"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/handler/api"
	internalrepo "AdaptiveEnsemble/internal/repository"
	"AdaptiveEnsemble/internal/services/analytics"
	"AdaptiveEnsemble/internal/services/backtest"
	"AdaptiveEnsemble/internal/services/features"
	"AdaptiveEnsemble/internal/services/models"
	"AdaptiveEnsemble/internal/services/online"
	"AdaptiveEnsemble/internal/services/prediction"
	"AdaptiveEnsemble/internal/services/quality"
	"AdaptiveEnsemble/internal/services/training"
	"AdaptiveEnsemble/internal/usecase"
	"AdaptiveEnsemble/pkg/cache"
	pkgch "AdaptiveEnsemble/pkg/clickhouse"
	"AdaptiveEnsemble/pkg/config"
	xhttp "AdaptiveEnsemble/pkg/http"
	pkgkafka "AdaptiveEnsemble/pkg/kafka"
	applogger "AdaptiveEnsemble/pkg/logger"
	"AdaptiveEnsemble/pkg/metrics"
	"AdaptiveEnsemble/pkg/server"
)

// Providers for disabled backends return nil interfaces (never typed nil
// pointers) so the core's nil checks keep working.

func noop() {}

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder when metrics are enabled.
func ProvideMetrics(cfg *config.Config) drepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the schema.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, noop, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	client.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideCandleStore creates the OHLCV reader backing the operator commands.
func ProvideCandleStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) drepo.CandleStore {
	if ch == nil {
		return nil
	}
	s := internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database)
	s.SetLogger(l)
	return s
}

// ProvideTradeStore creates the closed-trades table adapter.
func ProvideTradeStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) *internalrepo.CHTradeStore {
	if ch == nil {
		return nil
	}
	s := internalrepo.NewCHTradeStore(ch, cfg.ClickHouse.Database)
	s.SetLogger(l)
	return s
}

// ProvideHistory exposes the trade store to the trainer.
func ProvideHistory(s *internalrepo.CHTradeStore) drepo.HistoricalTradeStore {
	if s == nil {
		return nil
	}
	return s
}

// ProvideClosedTradeWriter exposes the trade store to the outcome handler.
func ProvideClosedTradeWriter(s *internalrepo.CHTradeStore) drepo.ClosedTradeWriter {
	if s == nil {
		return nil
	}
	return s
}

// ProvideCache creates the bundle cache: Redis, optionally behind an in-process
// L1, or a process-local memory cache when Redis is disabled.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mem := cache.NewMemoryCache(cache.WithMemoryMaxSize(64))
		return mem, func() { _ = mem.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	if cfg.Redis.L1Size <= 0 {
		return rc, func() { _ = rc.Close() }, nil
	}
	layered := cache.NewLayeredCache(cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Redis.L1Size)), rc)
	return layered, func() { _ = layered.Close() }, nil
}

// ProvideBundleStore creates the bundle persistence adapter.
func ProvideBundleStore(c cache.Service, l *applogger.Logger) drepo.BundleStore {
	s := internalrepo.NewCacheBundleStore(c)
	s.SetLogger(l)
	return s
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, noop, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideIntentSink creates the Kafka intent and trade publisher.
func ProvideIntentSink(producer *pkgkafka.Producer, cfg *config.Config) drepo.IntentSink {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaIntentSink(producer, cfg.Kafka.IntentTopic, cfg.Kafka.TradeTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l)
	return consumer, nil
}

// ProvideGate creates the shared data quality gate.
func ProvideGate(l *applogger.Logger) *quality.Gate {
	g := quality.NewGate()
	g.SetLogger(l)
	return g
}

// ProvideFeatureEngine creates the shared feature engine.
func ProvideFeatureEngine(l *applogger.Logger) *features.Engine {
	e := features.NewEngine()
	e.SetLogger(l)
	return e
}

// ProvideRegistry builds the model registry from the models section.
func ProvideRegistry(cfg *config.Config) *models.Registry {
	mc := models.DefaultConfig()
	mc.EnableXGBoost = cfg.Models.EnableXGBoost
	mc.EnableLightGBM = cfg.Models.EnableLightGBM
	mc.EnableCatBoost = cfg.Models.EnableCatBoost
	mc.Forest.Trees = cfg.Models.ForestTrees
	mc.Forest.MaxDepth = cfg.Models.ForestMaxDepth
	mc.Forest.Seed = cfg.Models.Seed
	for _, p := range []*models.BoosterParams{&mc.XGBoost, &mc.LightGBM, &mc.CatBoost} {
		p.Rounds = cfg.Models.BoosterRounds
		p.LearningRate = cfg.Models.BoosterLearningRate
	}
	return models.NewRegistry(mc)
}

// ProvideDetector creates the regime detector.
func ProvideDetector(cfg *config.Config) domsvc.RegimeDetector {
	return analytics.NewRegimeDetector(cfg.Engine.RegimeLookback)
}

// ProvidePerformanceLog creates the per-regime model score log.
func ProvidePerformanceLog(cfg *config.Config) *analytics.PerformanceLog {
	return analytics.NewPerformanceLog(analytics.DefaultLogCapacity, cfg.Engine.RegimeMinSamples)
}

// ProvideLearner creates the online learner refitting the registry's small booster.
func ProvideLearner(cfg *config.Config, registry *models.Registry, l *applogger.Logger) *online.Learner {
	learner := online.NewLearner(cfg.Engine.OnlineBufferSize, func() domsvc.Regressor {
		r, err := registry.New(models.GradientBoosting)
		if err != nil {
			return models.NewGradientBoosting(models.DefaultGradientBoostingParams())
		}
		return r
	})
	learner.SetLogger(l)
	return learner
}

// ProvideTrainer creates the walk-forward trainer.
func ProvideTrainer(
	cfg *config.Config,
	gate *quality.Gate,
	engine *features.Engine,
	registry *models.Registry,
	detector domsvc.RegimeDetector,
	perf *analytics.PerformanceLog,
	learner *online.Learner,
	history drepo.HistoricalTradeStore,
	l *applogger.Logger,
) *training.Trainer {
	tc := training.DefaultConfig()
	tc.CVFolds = cfg.Engine.CVFolds
	tc.TopN = cfg.Engine.TopN
	tc.MinRows = cfg.Engine.MinRows
	tc.AugmentMinRows = cfg.Engine.AugmentMinRows
	tc.PenaltyLossThreshold = cfg.Engine.PenaltyLossThreshold
	tc.PenaltyLookback = cfg.Engine.PenaltyLookback
	if cfg.Engine.Concurrency > 0 {
		tc.Concurrency = cfg.Engine.Concurrency
	}
	t := training.NewTrainer(tc, gate, engine, registry, detector,
		training.WithPerformanceLog(perf),
		training.WithOnlineSink(learner),
		training.WithHistory(history),
	)
	t.SetLogger(l)
	return t
}

// ProvidePredictor creates the ensemble predictor.
func ProvidePredictor(
	gate *quality.Gate,
	engine *features.Engine,
	detector domsvc.RegimeDetector,
	perf *analytics.PerformanceLog,
	l *applogger.Logger,
) *prediction.Predictor {
	p := prediction.NewPredictor(gate, engine, detector, perf)
	p.SetLogger(l)
	return p
}

// BacktestConfig maps the engine section onto the backtest settings.
func BacktestConfig(cfg *config.Config) backtest.Config {
	return backtest.Config{
		InitialCapital:   cfg.Engine.InitialCapital,
		TradingFee:       cfg.Engine.TradingFee,
		Slippage:         cfg.Engine.Slippage,
		MinConfidence:    cfg.Engine.MinConfidence,
		PositionFraction: cfg.Engine.PositionFraction,
		TrainWindow:      cfg.Engine.TrainWindow,
		TestWindow:       cfg.Engine.TestWindow,
		DefaultTPPct:     cfg.Engine.DefaultTPPct,
		DefaultSLPct:     cfg.Engine.DefaultSLPct,
	}
}

// ProvideCore creates the learning core facade.
func ProvideCore(
	cfg *config.Config,
	trainer *training.Trainer,
	predictor *prediction.Predictor,
	learner *online.Learner,
	perf *analytics.PerformanceLog,
	detector domsvc.RegimeDetector,
	bundles drepo.BundleStore,
	sink drepo.IntentSink,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.Core {
	uc := usecase.Config{
		HorizonMinutes:        cfg.Engine.HorizonMinutes,
		RetrainTradeThreshold: cfg.Engine.RetrainTradeThreshold,
		RetrainTimeThreshold:  cfg.Engine.RetrainTimeThreshold,
		Backtest:              BacktestConfig(cfg),
	}
	c := usecase.NewCore(uc, trainer, predictor, learner, perf, detector,
		usecase.WithBundleStore(bundles),
		usecase.WithIntentSink(sink),
		usecase.WithMetrics(m),
	)
	c.SetLogger(l)
	return c
}

// ProvideFrameLoader creates the candle frame loader.
func ProvideFrameLoader(store drepo.CandleStore) *usecase.FrameLoader {
	return usecase.NewFrameLoader(store)
}

// ProvideOutcomeHandler creates the handler for closed live trades.
func ProvideOutcomeHandler(cfg *config.Config, core *usecase.Core, store drepo.ClosedTradeWriter, l *applogger.Logger) *usecase.OutcomeHandler {
	h := usecase.NewOutcomeHandler(cfg.Kafka.OutcomeTopic, core, store)
	h.SetLogger(l)
	return h
}

// ProvideHTTPServer creates the HTTP API when metrics are enabled.
func ProvideHTTPServer(cfg *config.Config, core *usecase.Core, frames *usecase.FrameLoader, l *applogger.Logger) *xhttp.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return xhttp.NewServer(api.NewCoreHandler(l, core, frames), l,
		xhttp.WithAddr(cfg.Metrics.Addr),
		xhttp.WithMetricsPath(cfg.Metrics.Path),
		xhttp.WithTimeouts(cfg.Metrics.ReadTimeout, cfg.Metrics.WriteTimeout, cfg.Metrics.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Metrics.SlowRequest),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	core *usecase.Core,
	frames *usecase.FrameLoader,
	consumer *pkgkafka.Consumer,
	outcomes *usecase.OutcomeHandler,
	httpSrv *xhttp.Server,
) *server.App {
	return server.New(cfg, l, core, frames, consumer, outcomes, httpSrv)
}
