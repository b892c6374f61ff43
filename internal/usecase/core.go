package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	dm "AdaptiveEnsemble/internal/domain/models"
	drepo "AdaptiveEnsemble/internal/domain/repository"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/analytics"
	"AdaptiveEnsemble/internal/services/backtest"
	"AdaptiveEnsemble/internal/services/online"
	"AdaptiveEnsemble/internal/services/prediction"
	"AdaptiveEnsemble/internal/services/training"
	applogger "AdaptiveEnsemble/pkg/logger"
	"AdaptiveEnsemble/pkg/metrics"
)

// Config holds the facade level settings.
type Config struct {
	HorizonMinutes        int
	RetrainTradeThreshold int
	RetrainTimeThreshold  time.Duration
	Backtest              backtest.Config
}

func DefaultConfig() Config {
	return Config{
		HorizonMinutes:        30,
		RetrainTradeThreshold: 100,
		RetrainTimeThreshold:  72 * time.Hour,
		Backtest:              backtest.DefaultConfig(),
	}
}

// Core is the single entry surface of the learning core. It owns the active
// bundle, the online learner and the regime performance log.
type Core struct {
	cfg       Config
	trainer   *training.Trainer
	predictor *prediction.Predictor
	learner   *online.Learner
	perf      *analytics.PerformanceLog
	detector  domsvc.RegimeDetector

	bundles drepo.BundleStore
	sink    drepo.IntentSink
	metrics drepo.Metrics
	now     func() time.Time
	logger  *applogger.Logger

	active atomic.Pointer[training.Bundle]
	// trainMu serializes training runs; readers never take it.
	trainMu       sync.Mutex
	tradesSince   atomic.Int64
	lastTrainedAt atomic.Int64
}

// Option configures a Core.
type Option func(*Core)

func WithBundleStore(s drepo.BundleStore) Option { return func(c *Core) { c.bundles = s } }
func WithIntentSink(s drepo.IntentSink) Option   { return func(c *Core) { c.sink = s } }
func WithMetrics(m drepo.Metrics) Option         { return func(c *Core) { c.metrics = m } }
func WithClock(now func() time.Time) Option      { return func(c *Core) { c.now = now } }

// NewCore wires the facade. The trainer is expected to feed learner and perf.
func NewCore(
	cfg Config,
	trainer *training.Trainer,
	predictor *prediction.Predictor,
	learner *online.Learner,
	perf *analytics.PerformanceLog,
	detector domsvc.RegimeDetector,
	opts ...Option,
) *Core {
	c := &Core{
		cfg:       cfg,
		trainer:   trainer,
		predictor: predictor,
		learner:   learner,
		perf:      perf,
		detector:  detector,
		metrics:   metrics.Nop{},
		now:       time.Now,
		logger:    applogger.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetLogger sets the logger for the facade.
func (c *Core) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Config returns the facade settings.
func (c *Core) Config() Config { return c.cfg }

// Train fits a bundle and makes it the active one. A failed run keeps the
// previous bundle. horizonMinutes <= 0 selects the configured horizon.
func (c *Core) Train(ctx context.Context, frame dm.Frame, horizonMinutes int) (*training.Bundle, error) {
	if horizonMinutes <= 0 {
		horizonMinutes = c.cfg.HorizonMinutes
	}
	c.trainMu.Lock()
	defer c.trainMu.Unlock()

	start := time.Now()
	b, err := c.trainer.Train(ctx, frame, horizonMinutes)
	if err != nil {
		c.fail("train", err)
		return nil, err
	}
	c.active.Store(b)
	c.tradesSince.Store(0)
	c.lastTrainedAt.Store(c.now().UnixNano())

	took := time.Since(start).Seconds()
	c.metrics.RecordTraining(took, b.Samples, len(b.Selected))
	c.metrics.RecordLatency("train", took)
	return b, nil
}

// Active returns the bundle currently used by PredictActive, or nil.
func (c *Core) Active() *training.Bundle { return c.active.Load() }

// Activate replaces the active bundle without training.
func (c *Core) Activate(b *training.Bundle) {
	if b == nil {
		return
	}
	c.active.Store(b)
	c.lastTrainedAt.Store(b.TrainedAt.UnixNano())
}

// Predict runs bundle on the latest bar of frame.
func (c *Core) Predict(b *training.Bundle, frame dm.Frame) (dm.Prediction, error) {
	if b == nil {
		return dm.Prediction{}, dm.Errorf(dm.KindNoActiveBundle, "no bundle given")
	}
	start := time.Now()
	pred, err := c.predictor.Predict(b, frame)
	if err != nil {
		c.fail("predict", err)
		return dm.Prediction{}, err
	}
	c.metrics.RecordPrediction(string(pred.Direction), pred.Confidence, false)
	c.metrics.RecordLatency("predict", time.Since(start).Seconds())
	return pred, nil
}

// PredictActive predicts with the active bundle and falls back to the technical
// signal when no bundle has been trained or loaded.
func (c *Core) PredictActive(frame dm.Frame) (dm.Prediction, error) {
	if b := c.active.Load(); b != nil {
		return c.Predict(b, frame)
	}
	pred, err := c.predictor.Fallback(frame)
	if err != nil {
		c.fail("fallback", err)
		return dm.Prediction{}, err
	}
	c.metrics.RecordPrediction(string(pred.Direction), pred.Confidence, true)
	return pred, nil
}

// CounterfactualPredict predicts as if the latest close were hypotheticalClose.
func (c *Core) CounterfactualPredict(b *training.Bundle, frame dm.Frame, hypotheticalClose float64) (dm.Prediction, error) {
	if b == nil {
		return dm.Prediction{}, dm.Errorf(dm.KindNoActiveBundle, "no bundle given")
	}
	pred, err := c.predictor.CounterfactualPredict(b, frame, hypotheticalClose)
	if err != nil {
		c.fail("counterfactual", err)
	}
	return pred, err
}

// OnlineEstimate returns the online learner's output for the latest bar, using
// the active bundle's feature schema.
func (c *Core) OnlineEstimate(frame dm.Frame) (float64, bool) {
	b := c.active.Load()
	if b == nil {
		return 0, false
	}
	row, _, err := c.predictor.FeatureVector(b, frame)
	if err != nil {
		return 0, false
	}
	return c.learner.Predict(row)
}

// FeedOutcome appends a realized sample to the online learner and refits it.
// Each outcome counts as one trade towards the retrain advisory.
func (c *Core) FeedOutcome(features []float64, realizedTargetPct float64) bool {
	c.learner.Add(features, realizedTargetPct)
	c.tradesSince.Add(1)
	return c.learner.Refit()
}

// ScorePrediction records, per model of pred, whether its direction matched the
// realized move.
func (c *Core) ScorePrediction(pred dm.Prediction, realizedPct float64) {
	if pred.IsFallback {
		return
	}
	actual := dm.DirectionOf(realizedPct)
	for name, v := range pred.Individual {
		hit := 0.0
		if dm.DirectionOf(v) == actual {
			hit = 1
		}
		c.perf.Record(pred.Regime, name, hit)
	}
}

// ScoreOutcome scores every model of b on a realized outcome. Each model is run
// on the outcome's raw feature row and its hit is recorded under regime, or
// under the bundle's regime when regime is not a known label.
func (c *Core) ScoreOutcome(b *training.Bundle, features []float64, realizedPct float64, regime dm.Regime) error {
	if b == nil {
		return dm.Errorf(dm.KindNoActiveBundle, "no bundle given")
	}
	individual, err := c.predictor.Individual(b, features)
	if err != nil {
		c.fail("score_outcome", err)
		return err
	}
	if !regime.Valid() {
		regime = b.Regime
	}
	c.ScorePrediction(dm.Prediction{Regime: regime, Individual: individual, BundleID: b.ID}, realizedPct)
	return nil
}

// RegimeOf classifies the recent window of frame.
func (c *Core) RegimeOf(frame dm.Frame) dm.Regime {
	return c.detector.Detect(frame)
}

// ShouldRetrain reports whether enough trades or time have passed since the last
// training run. It never retrains on its own.
func (c *Core) ShouldRetrain(now time.Time) (bool, string) {
	if c.active.Load() == nil {
		return true, "no active bundle"
	}
	if n := c.tradesSince.Load(); c.cfg.RetrainTradeThreshold > 0 && n >= int64(c.cfg.RetrainTradeThreshold) {
		return true, fmt.Sprintf("%d trades since last training", n)
	}
	last := time.Unix(0, c.lastTrainedAt.Load())
	if age := now.Sub(last); c.cfg.RetrainTimeThreshold > 0 && age >= c.cfg.RetrainTimeThreshold {
		return true, fmt.Sprintf("last training %s ago", age.Round(time.Minute))
	}
	return false, ""
}

// TradesSinceRetrain is the advisory trade counter.
func (c *Core) TradesSinceRetrain() int { return int(c.tradesSince.Load()) }

// Backtest replays frame once through policy.
func (c *Core) Backtest(ctx context.Context, frame dm.Frame, policy domsvc.Policy, cfg backtest.Config) (dm.BacktestReport, error) {
	start := time.Now()
	r := backtest.NewRunner(cfg)
	r.SetLogger(c.logger)
	report, err := r.Run(ctx, frame, policy)
	if err != nil {
		c.fail("backtest", err)
		return dm.BacktestReport{}, err
	}
	c.metrics.RecordBacktest(report.Metrics.TotalTrades, report.Metrics.FinalCapital, report.Metrics.MaxDrawdownPct)
	c.metrics.RecordLatency("backtest", time.Since(start).Seconds())
	c.publishTrades(ctx, report.Trades)
	return report, nil
}

// WalkForward runs a walk-forward backtest with the given windows. The per-fold
// metrics are in the report's Folds; the trades of every fold are published
// like those of Backtest.
func (c *Core) WalkForward(ctx context.Context, frame dm.Frame, policy domsvc.Policy, trainWindow, testWindow int, cfg backtest.Config) (dm.BacktestReport, error) {
	cfg.TrainWindow, cfg.TestWindow = trainWindow, testWindow
	start := time.Now()
	r := backtest.NewRunner(cfg)
	r.SetLogger(c.logger)
	report, err := r.WalkForward(ctx, frame, policy)
	if err != nil {
		c.fail("walkforward", err)
		return dm.BacktestReport{}, err
	}
	c.metrics.RecordBacktest(report.Metrics.TotalTrades, report.Metrics.FinalCapital, report.Metrics.MaxDrawdownPct)
	c.metrics.RecordLatency("walkforward", time.Since(start).Seconds())
	c.publishTrades(ctx, report.Trades)
	return report, nil
}

// batchTradeSink is implemented by sinks that can publish trades in one write.
type batchTradeSink interface {
	PublishTrades(ctx context.Context, trades []dm.TradeRecord) error
}

func (c *Core) publishTrades(ctx context.Context, trades []dm.TradeRecord) {
	if c.sink == nil || len(trades) == 0 {
		return
	}
	if b, ok := c.sink.(batchTradeSink); ok {
		if err := b.PublishTrades(ctx, trades); err != nil {
			c.fail("publish_trade", err)
		}
		return
	}
	for _, t := range trades {
		if err := c.sink.PublishTrade(ctx, t); err != nil {
			c.fail("publish_trade", err)
			return
		}
	}
}

func (c *Core) fail(op string, err error) {
	c.metrics.RecordError(string(dm.KindOf(err)))
	c.logger.Warn("core operation failed",
		applogger.String("op", op),
		applogger.Error(err),
	)
}
