package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dm "AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/analytics"
	"AdaptiveEnsemble/internal/services/features"
	"AdaptiveEnsemble/internal/services/models"
	"AdaptiveEnsemble/internal/services/online"
	"AdaptiveEnsemble/internal/services/prediction"
	"AdaptiveEnsemble/internal/services/quality"
	"AdaptiveEnsemble/internal/services/training"
	"AdaptiveEnsemble/internal/testutil"
	"AdaptiveEnsemble/pkg/cache"
)

type fakeSink struct {
	mu      sync.Mutex
	intents []dm.TradeIntent
	trades  []dm.TradeRecord
	err     error
}

func (s *fakeSink) PublishIntent(_ context.Context, i dm.TradeIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.intents = append(s.intents, i)
	return nil
}

func (s *fakeSink) PublishTrade(_ context.Context, t dm.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}

func (s *fakeSink) Close() error { return nil }

type countingMetrics struct {
	mu          sync.Mutex
	trainings   int
	predictions int
	fallbacks   int
	backtests   int
	errors      map[string]int
}

func (m *countingMetrics) RecordLatency(string, float64) {}

func (m *countingMetrics) RecordTraining(float64, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainings++
}

func (m *countingMetrics) RecordBacktest(int, float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backtests++
}

func (m *countingMetrics) RecordPrediction(_ string, _ float64, fallback bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
	if fallback {
		m.fallbacks++
	}
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}

func fastRegistry() *models.Registry {
	cfg := models.DefaultConfig()
	cfg.Forest.Trees = 10
	cfg.XGBoost.Rounds = 15
	cfg.LightGBM.Rounds = 15
	cfg.CatBoost.Rounds = 15
	cfg.CatBoost.Tree.MaxDepth = 4
	return models.NewRegistry(cfg)
}

type testCore struct {
	*Core
	learner *online.Learner
	perf    *analytics.PerformanceLog
	metrics *countingMetrics
}

func newTestCore(t *testing.T, cfg Config, opts ...Option) testCore {
	t.Helper()
	detector := analytics.NewRegimeDetector(analytics.DefaultLookback)
	perf := analytics.NewPerformanceLog(analytics.DefaultLogCapacity, analytics.DefaultMinSamples)
	learner := online.NewLearner(200, nil)
	trainer := training.NewTrainer(training.DefaultConfig(), quality.NewGate(), features.NewEngine(), fastRegistry(), detector,
		training.WithPerformanceLog(perf), training.WithOnlineSink(learner))
	predictor := prediction.NewPredictor(quality.NewGate(), features.NewEngine(), detector, perf)
	m := &countingMetrics{}
	opts = append([]Option{WithMetrics(m)}, opts...)
	return testCore{
		Core:    NewCore(cfg, trainer, predictor, learner, perf, detector, opts...),
		learner: learner,
		perf:    perf,
		metrics: m,
	}
}

func TestTrainActivatesAndPredicts(t *testing.T) {
	c := newTestCore(t, DefaultConfig())
	frame := testutil.RandomWalk("BTCUSDT", 220, 7)

	pred, err := c.PredictActive(frame)
	require.NoError(t, err)
	assert.True(t, pred.IsFallback)
	assert.Equal(t, 1, c.metrics.fallbacks)

	b, err := c.Train(context.Background(), frame, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, b.HorizonMinutes)
	assert.Same(t, b, c.Active())
	assert.Equal(t, 1, c.metrics.trainings)

	pred, err = c.PredictActive(frame)
	require.NoError(t, err)
	assert.False(t, pred.IsFallback)
	assert.Equal(t, b.ID, pred.BundleID)

	_, ok := c.OnlineEstimate(frame)
	assert.Equal(t, c.learner.Fitted(), ok)
}

func TestFailedTrainKeepsActiveBundle(t *testing.T) {
	c := newTestCore(t, DefaultConfig())
	b, err := c.Train(context.Background(), testutil.RandomWalk("BTCUSDT", 220, 1), 30)
	require.NoError(t, err)

	_, err = c.Train(context.Background(), testutil.RandomWalk("BTCUSDT", 40, 2), 30)
	require.Error(t, err)
	assert.Same(t, b, c.Active())
	assert.NotEmpty(t, c.metrics.errors)
}

func TestPredictWithoutBundle(t *testing.T) {
	c := newTestCore(t, DefaultConfig())
	_, err := c.Predict(nil, testutil.RandomWalk("X", 220, 1))
	assert.True(t, errors.Is(err, dm.ErrNoActiveBundle))
	_, err = c.CounterfactualPredict(nil, testutil.RandomWalk("X", 220, 1), 100)
	assert.True(t, errors.Is(err, dm.ErrNoActiveBundle))
}

func TestRetrainAdvisory(t *testing.T) {
	now := testutil.Start
	cfg := DefaultConfig()
	cfg.RetrainTradeThreshold = 5
	cfg.RetrainTimeThreshold = 24 * time.Hour
	c := newTestCore(t, cfg, WithClock(func() time.Time { return now }))

	should, reason := c.ShouldRetrain(now)
	assert.True(t, should)
	assert.Equal(t, "no active bundle", reason)

	b, err := c.Train(context.Background(), testutil.RandomWalk("BTCUSDT", 220, 3), 30)
	require.NoError(t, err)
	should, _ = c.ShouldRetrain(now.Add(time.Hour))
	assert.False(t, should)

	row := make([]float64, len(b.Features))
	for i := 0; i < 5; i++ {
		c.FeedOutcome(row, 0.5)
	}
	assert.Equal(t, 5, c.TradesSinceRetrain())
	should, reason = c.ShouldRetrain(now.Add(time.Hour))
	assert.True(t, should)
	assert.Contains(t, reason, "5 trades")

	_, err = c.Train(context.Background(), testutil.RandomWalk("BTCUSDT", 220, 4), 30)
	require.NoError(t, err)
	assert.Zero(t, c.TradesSinceRetrain())
	should, reason = c.ShouldRetrain(now.Add(25 * time.Hour))
	assert.True(t, should)
	assert.Contains(t, reason, "ago")
}

func TestScorePredictionFeedsPerformanceLog(t *testing.T) {
	c := newTestCore(t, DefaultConfig())
	pred := dm.Prediction{
		Regime:     dm.RegimeVolatile,
		Individual: map[string]float64{"random_forest": 0.4, "linear": -0.2},
	}
	c.ScorePrediction(pred, 1.0)
	assert.Equal(t, []float64{1}, c.perf.Scores(dm.RegimeVolatile, "random_forest"))
	assert.Equal(t, []float64{0}, c.perf.Scores(dm.RegimeVolatile, "linear"))

	pred.IsFallback = true
	c.ScorePrediction(pred, 1.0)
	assert.Len(t, c.perf.Scores(dm.RegimeVolatile, "linear"), 1)
}

func TestSaveAndLoadBundle(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })
	store := &memBundles{c: mc}

	c := newTestCore(t, DefaultConfig(), WithBundleStore(store))
	_, err := c.SaveBundle(ctx)
	assert.True(t, errors.Is(err, dm.ErrNoActiveBundle))

	frame := testutil.RandomWalk("BTCUSDT", 220, 9)
	b, err := c.Train(ctx, frame, 30)
	require.NoError(t, err)
	want, err := c.Predict(b, frame)
	require.NoError(t, err)
	id, err := c.SaveBundle(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, id)

	fresh := newTestCore(t, DefaultConfig(), WithBundleStore(store))
	loaded, err := fresh.LoadBundle(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, loaded.ID)
	assert.Same(t, loaded, fresh.Active())

	got, err := fresh.Predict(loaded, frame)
	require.NoError(t, err)
	assert.InDelta(t, want.Value, got.Value, 1e-9)
	assert.Equal(t, want.Individual, got.Individual)
}

// memBundles is a minimal BundleStore over a cache.Service.
type memBundles struct {
	c cache.Service
}

func (m *memBundles) Save(ctx context.Context, id string, blob []byte) error {
	if err := m.c.SetBytes(ctx, "bundle:"+id, blob, 0); err != nil {
		return err
	}
	return m.c.SetBytes(ctx, "bundle:latest", []byte(id), 0)
}

func (m *memBundles) Load(ctx context.Context, id string) ([]byte, error) {
	return m.c.GetBytes(ctx, "bundle:"+id)
}

func (m *memBundles) LatestID(ctx context.Context) (string, error) {
	b, err := m.c.GetBytes(ctx, "bundle:latest")
	return string(b), err
}

func longPolicy(confidence float64) domsvc.PolicyFunc {
	return func(_ context.Context, _ dm.Frame, row dm.Candle) (*dm.TradeIntent, error) {
		return &dm.TradeIntent{Direction: dm.Long, Confidence: confidence, TPPct: 0.02, SLPct: 0.01, CreatedAt: row.Timestamp}, nil
	}
}

func TestBacktestPublishesTrades(t *testing.T) {
	sink := &fakeSink{}
	c := newTestCore(t, DefaultConfig(), WithIntentSink(sink))
	cfg := c.Config().Backtest

	report, err := c.Backtest(context.Background(), testutil.RandomWalk("BTCUSDT", 200, 2), longPolicy(80), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, report.Trades)
	assert.Len(t, sink.trades, len(report.Trades))
	assert.Equal(t, 1, c.metrics.backtests)
}

func TestWalkForwardPublishesTrades(t *testing.T) {
	sink := &fakeSink{}
	c := newTestCore(t, DefaultConfig(), WithIntentSink(sink))
	cfg := c.Config().Backtest

	report, err := c.WalkForward(context.Background(), testutil.RandomWalk("BTCUSDT", 200, 2), longPolicy(80), 100, 20, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, report.Trades)
	assert.Len(t, sink.trades, len(report.Trades))
	assert.Equal(t, 1, c.metrics.backtests)
}

func TestEmitRespectsConfidenceGate(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	c := newTestCore(t, DefaultConfig(), WithIntentSink(sink))

	pred := dm.Prediction{Symbol: "BTCUSDT", Direction: dm.Short, Value: -0.8, Confidence: 59.9, HorizonMinutes: 30}
	ok, err := c.Emit(ctx, pred, 10000)
	require.NoError(t, err)
	assert.False(t, ok)

	pred.Confidence = 60
	ok, err = c.Emit(ctx, pred, 10000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sink.intents, 1)
	got := sink.intents[0]
	assert.Equal(t, dm.Short, got.Direction)
	assert.InDelta(t, 1000, got.SizeHint, 1e-9)
	assert.Equal(t, 0.02, got.TPPct)
	assert.Equal(t, 0.01, got.SLPct)
	assert.Contains(t, got.Rationale, "single model SHORT")

	sink.err = errors.New("broker down")
	_, err = c.Emit(ctx, pred, 10000)
	assert.Error(t, err)
	assert.Equal(t, 1, c.metrics.errors[string(dm.KindUnknown)])
}

func TestModelPolicyWalkForward(t *testing.T) {
	c := newTestCore(t, DefaultConfig())
	frame := testutil.RandomWalk("BTCUSDT", 240, 12)
	cfg := c.Config().Backtest
	cfg.MinConfidence = 0

	report, err := c.WalkForward(context.Background(), frame, c.NewModelPolicy(30, 20), 200, 20, cfg)
	require.NoError(t, err)
	require.Len(t, report.Folds, 2)
	assert.Nil(t, c.Active(), "walk-forward must not replace the active bundle")
	for _, tr := range report.Trades {
		assert.False(t, tr.ClosedAt.Before(tr.OpenedAt))
	}
}

func TestSimulationsLeaveLiveStateAlone(t *testing.T) {
	ctx := context.Background()
	c := newTestCore(t, DefaultConfig())
	_, err := c.Train(ctx, testutil.RandomWalk("ETHUSDT", 220, 21), 30)
	require.NoError(t, err)
	active := c.Active()
	buffered := c.learner.Len()
	scores := c.perf.Snapshot()
	require.NotEmpty(t, scores)

	frame := testutil.RandomWalk("ETHUSDT", 240, 22)
	cfg := c.Config().Backtest
	cfg.MinConfidence = 0
	cfg.TrainWindow = 200

	_, err = c.WalkForward(ctx, frame, c.NewModelPolicy(30, 20), 200, 20, cfg)
	require.NoError(t, err)
	_, err = c.Backtest(ctx, frame, c.NewModelPolicy(30, 20), cfg)
	require.NoError(t, err)

	assert.Same(t, active, c.Active())
	assert.Equal(t, buffered, c.learner.Len())
	assert.Equal(t, scores, c.perf.Snapshot())
}

// bundleRecorder notes which bundle the wrapped policy trades with.
type bundleRecorder struct {
	*ModelPolicy
	ids map[string]bool
}

func (r *bundleRecorder) Decide(ctx context.Context, train dm.Frame, row dm.Candle) (*dm.TradeIntent, error) {
	intent, err := r.ModelPolicy.Decide(ctx, train, row)
	if r.bundle != nil {
		r.ids[r.bundle.ID] = true
	}
	return intent, err
}

func TestWalkForwardRefitsEveryFold(t *testing.T) {
	c := newTestCore(t, DefaultConfig())
	frame := testutil.RandomWalk("BTCUSDT", 300, 13)
	cfg := c.Config().Backtest
	cfg.MinConfidence = 0

	policy := &bundleRecorder{ModelPolicy: c.NewModelPolicy(30, 20), ids: map[string]bool{}}
	report, err := c.WalkForward(context.Background(), frame, policy, 200, 20, cfg)
	require.NoError(t, err)
	require.Len(t, report.Folds, 5)
	assert.Equal(t, 5, policy.Fits())
	assert.Len(t, policy.ids, 5, "each fold trades its own bundle")
}

func TestBacktestRefreshesEveryRefreshBars(t *testing.T) {
	c := newTestCore(t, DefaultConfig())
	frame := testutil.RandomWalk("BTCUSDT", 260, 14)
	cfg := c.Config().Backtest
	cfg.TrainWindow = 200

	policy := c.NewModelPolicy(30, 20)
	_, err := c.Backtest(context.Background(), frame, policy, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, policy.Fits(), "60 bars at a refresh of 20")
}

func TestOutcomeHandler(t *testing.T) {
	ctx := context.Background()
	c := newTestCore(t, DefaultConfig())
	store := &memTrades{}
	h := NewOutcomeHandler("outcomes", c.Core, store)
	assert.Equal(t, "outcomes", h.Topic())

	assert.Error(t, h.Handle(ctx, []byte("{")))
	assert.Error(t, h.Handle(ctx, []byte(`{"symbol":"BTCUSDT","target_pct":1}`)))

	msg := OutcomeMessage{ID: "t1", Symbol: "BTCUSDT", Features: map[string]float64{"rsi": 40}, TargetPct: 1.5, PnL: 15}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, raw))
	require.Len(t, store.rows, 1)
	assert.Equal(t, 1.5, store.rows[0].Target)
	assert.Zero(t, c.TradesSinceRetrain(), "no active bundle, nothing fed")

	b, err := c.Train(ctx, testutil.RandomWalk("BTCUSDT", 220, 8), 30)
	require.NoError(t, err)
	full := map[string]float64{}
	for i, n := range b.Features {
		full[n] = float64(i)
	}
	before := map[string]int{}
	for _, name := range b.Selected {
		before[name] = len(c.perf.Scores(dm.RegimeRanging, name))
	}
	msg.ID, msg.Features, msg.Regime = "t2", full, dm.RegimeRanging
	raw, err = json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, raw))
	assert.Equal(t, 1, c.TradesSinceRetrain())
	assert.Len(t, store.rows, 2)
	for _, name := range b.Selected {
		assert.Len(t, c.perf.Scores(dm.RegimeRanging, name), before[name]+1, "outcome scored for %s", name)
	}
}

func TestScoreOutcome(t *testing.T) {
	c := newTestCore(t, DefaultConfig())
	assert.True(t, errors.Is(c.ScoreOutcome(nil, nil, 1, ""), dm.ErrNoActiveBundle))

	frame := testutil.RandomWalk("BTCUSDT", 220, 31)
	b, err := c.Train(context.Background(), frame, 30)
	require.NoError(t, err)
	row, _, err := c.predictor.FeatureVector(b, frame)
	require.NoError(t, err)
	individual, err := c.predictor.Individual(b, row)
	require.NoError(t, err)

	name := b.Selected[0]
	n := len(c.perf.Scores(b.Regime, name))
	realized := 1.0
	if individual[name] <= 0 {
		realized = -1
	}
	require.NoError(t, c.ScoreOutcome(b, row, realized, "unknown"))
	scores := c.perf.Scores(b.Regime, name)
	require.Len(t, scores, n+1)
	assert.Equal(t, 1.0, scores[len(scores)-1], "a matching direction is a hit under the bundle regime")

	assert.Error(t, c.ScoreOutcome(b, row[1:], realized, ""))
}

type memTrades struct {
	rows []dm.ClosedTradeRow
}

func (m *memTrades) SaveClosedTrades(_ context.Context, rows []dm.ClosedTradeRow) error {
	m.rows = append(m.rows, rows...)
	return nil
}
