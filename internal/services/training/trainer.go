package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	dm "AdaptiveEnsemble/internal/domain/models"
	"AdaptiveEnsemble/internal/domain/repository"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/analytics"
	"AdaptiveEnsemble/internal/services/features"
	"AdaptiveEnsemble/internal/services/models"
	"AdaptiveEnsemble/internal/services/quality"
	"AdaptiveEnsemble/internal/services/scaler"
	applogger "AdaptiveEnsemble/pkg/logger"
)

// Config tunes the training procedure.
type Config struct {
	CVFolds              int
	TopN                 int
	MinRows              int
	MinFeatures          int
	MaxMissingRatio      float64
	AugmentMinRows       int
	PenaltyLossThreshold float64
	PenaltyLookback      int
	Concurrency          int
}

func DefaultConfig() Config {
	return Config{
		CVFolds:              3,
		TopN:                 3,
		MinRows:              30,
		MinFeatures:          5,
		MaxMissingRatio:      0.30,
		AugmentMinRows:       50,
		PenaltyLossThreshold: -1.0,
		PenaltyLookback:      50,
		Concurrency:          runtime.GOMAXPROCS(0),
	}
}

// OnlineSink receives the newest training sample after a successful run.
type OnlineSink interface {
	Add(features []float64, target float64)
	Refit() bool
}

// Trainer runs the walk-forward training procedure and produces bundles.
type Trainer struct {
	cfg      Config
	gate     *quality.Gate
	engine   *features.Engine
	registry *models.Registry
	detector domsvc.RegimeDetector
	perf     *analytics.PerformanceLog
	online   OnlineSink
	history  repository.HistoricalTradeStore
	now      func() time.Time
	logger   *applogger.Logger
}

// Option configures a Trainer.
type Option func(*Trainer)

func WithPerformanceLog(l *analytics.PerformanceLog) Option { return func(t *Trainer) { t.perf = l } }
func WithOnlineSink(s OnlineSink) Option                    { return func(t *Trainer) { t.online = s } }
func WithHistory(h repository.HistoricalTradeStore) Option  { return func(t *Trainer) { t.history = h } }
func WithClock(now func() time.Time) Option                 { return func(t *Trainer) { t.now = now } }

func NewTrainer(cfg Config, gate *quality.Gate, engine *features.Engine, registry *models.Registry, detector domsvc.RegimeDetector, opts ...Option) *Trainer {
	t := &Trainer{
		cfg:      cfg,
		gate:     gate,
		engine:   engine,
		registry: registry,
		detector: detector,
		now:      time.Now,
		logger:   applogger.NewNop(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// SetLogger sets the logger for the trainer.
func (t *Trainer) SetLogger(l *applogger.Logger) {
	if l != nil {
		t.logger = l
	}
}

// WithoutSinks returns a copy of t that neither records CV scores in the
// performance log nor feeds the online learner. Simulated runs train through it
// so they leave the live adaptive state untouched.
func (t *Trainer) WithoutSinks() *Trainer {
	cp := *t
	cp.perf, cp.online = nil, nil
	return &cp
}

// dataset is the training matrix after feature selection and outlier removal.
type dataset struct {
	names   []string
	X       [][]float64 // raw feature values
	y       []float64
	lastRow []float64
	lastY   float64
}

type candidateResult struct {
	name     string
	score    float64
	accuracy []float64
	err      error
}

// Train fits a bundle on frame for the given horizon. The context bounds only the
// historical store read; the fitting itself runs to completion.
func (t *Trainer) Train(ctx context.Context, frame dm.Frame, horizonMinutes int) (*Bundle, error) {
	start := t.now()
	cleaned, err := t.gate.Admit(frame)
	if err != nil {
		return nil, err
	}
	table, err := t.engine.Compute(cleaned)
	if err != nil {
		return nil, err
	}

	n := table.Len()
	periods := features.FuturePeriods(horizonMinutes)
	if periods > n-2 {
		periods = n - 2
	}
	if periods <= 0 {
		return nil, dm.Errorf(dm.KindNotEnoughData, "horizon leaves no hold-out bars")
	}

	history, _ := t.loadHistory(ctx)
	ds, err := t.buildDataset(table, periods, history)
	if err != nil {
		return nil, err
	}
	weights := t.penaltyWeights(history, ds.names)

	params, err := scaler.Fit(ds.X)
	if err != nil {
		return nil, err
	}
	scaled, err := scaler.Apply(params, ds.X)
	if err != nil {
		return nil, err
	}
	Xs := applyWeights(scaled, weights)

	results := t.scoreCandidates(ds.X, ds.y, weights)
	survivors := results[:0]
	for _, r := range results {
		if r.err != nil {
			t.logger.Warn("candidate dropped", applogger.String("model", r.name), applogger.Error(r.err))
			continue
		}
		survivors = append(survivors, r)
	}
	if !hasRequired(survivors) {
		return nil, dm.Errorf(dm.KindNoCandidateModel, "no required model survived cross-validation")
	}
	sort.SliceStable(survivors, func(i, j int) bool { return survivors[i].score > survivors[j].score })

	bundle := &Bundle{
		ID:             uuid.NewString(),
		Symbol:         frame.Symbol,
		TrainedAt:      t.now(),
		HorizonMinutes: horizonMinutes,
		FuturePeriods:  periods,
		Features:       ds.names,
		Weights:        weights,
		Scaler:         params,
		Models:         map[string]domsvc.Regressor{},
		CVScores:       map[string]float64{},
		Samples:        len(ds.y),
	}
	accuracy := map[string][]float64{}
	for _, r := range survivors {
		bundle.CVScores[r.name] = r.score
	}
	for _, r := range survivors {
		if len(bundle.Selected) == t.cfg.TopN {
			break
		}
		m, err := t.registry.New(r.name)
		if err == nil {
			err = m.Fit(Xs, ds.y)
		}
		if err != nil {
			t.logger.Warn("final fit failed", applogger.String("model", r.name), applogger.Error(err))
			continue
		}
		bundle.Models[r.name] = m
		bundle.Selected = append(bundle.Selected, r.name)
		accuracy[r.name] = r.accuracy
	}
	if len(bundle.Selected) == 0 {
		return nil, dm.Errorf(dm.KindNoCandidateModel, "every selected model failed its final fit")
	}
	if len(bundle.Selected) >= models.MinVotingMembers {
		v := &models.VotingRegressor{Members: bundle.Individuals(), Prefit: true}
		if err := v.Fit(Xs, ds.y); err != nil {
			return nil, fmt.Errorf("fit ensemble: %w", err)
		}
		bundle.Ensemble = v
	}

	bundle.Regime = t.detector.Detect(cleaned)
	if t.perf != nil {
		for _, name := range bundle.Selected {
			for _, acc := range accuracy[name] {
				t.perf.Record(bundle.Regime, name, acc)
			}
		}
	}
	if t.online != nil {
		t.online.Add(ds.lastRow, ds.lastY)
		refit := t.online.Refit()
		t.logger.Debug("online refit after training", applogger.Bool("fitted", refit))
	}

	t.logger.Info("training finished",
		applogger.String("symbol", frame.Symbol),
		applogger.String("bundle_id", bundle.ID),
		applogger.Int("samples", bundle.Samples),
		applogger.Int("features", len(bundle.Features)),
		applogger.String("regime", string(bundle.Regime)),
		applogger.Strings("models", bundle.Selected),
		applogger.Duration("took", t.now().Sub(start)),
	)
	return bundle, nil
}

// buildDataset selects usable feature columns and rows and applies the outlier mask.
func (t *Trainer) buildDataset(table *features.Table, periods int, history []dm.ClosedTradeRow) (*dataset, error) {
	var names []string
	for _, name := range table.Names {
		if table.MissingRatio(name) <= t.cfg.MaxMissingRatio {
			names = append(names, name)
		}
	}

	target := features.Target(table.Closes, periods)
	var X [][]float64
	var y []float64
	for i := 0; i < table.Len(); i++ {
		if math.IsNaN(target[i]) {
			continue
		}
		row, err := table.Row(i, names)
		if err != nil {
			return nil, err
		}
		if hasNaN(row) {
			continue
		}
		X = append(X, row)
		y = append(y, target[i])
	}
	if len(X) == 0 {
		return nil, dm.Errorf(dm.KindNotEnoughData, "no rows with a defined target and features")
	}
	lastRow, lastY := X[len(X)-1], y[len(y)-1]

	if aug, augY := t.augmentation(history, names); len(aug) > 0 {
		X = append(aug, X...)
		y = append(augY, y...)
	}

	mask := iqrMask(y)
	keptX := X[:0:0]
	keptY := y[:0:0]
	for i, ok := range mask {
		if ok {
			keptX = append(keptX, X[i])
			keptY = append(keptY, y[i])
		}
	}
	if len(keptY) < t.cfg.MinRows {
		return nil, dm.Errorf(dm.KindNotEnoughData, "%d rows after outlier removal, need %d", len(keptY), t.cfg.MinRows)
	}
	if spread(keptY) == 0 {
		return nil, dm.Errorf(dm.KindNotEnoughData, "target has no variance after outlier removal")
	}

	var cols []int
	for j := range names {
		first := keptX[0][j]
		for _, row := range keptX[1:] {
			if row[j] != first {
				cols = append(cols, j)
				break
			}
		}
	}
	if len(cols) < t.cfg.MinFeatures {
		return nil, dm.Errorf(dm.KindNotEnoughData, "%d informative features, need %d", len(cols), t.cfg.MinFeatures)
	}
	ds := &dataset{names: pick(names, cols), y: keptY, lastRow: pickRow(lastRow, cols), lastY: lastY}
	ds.X = make([][]float64, len(keptX))
	for i, row := range keptX {
		ds.X[i] = pickRow(row, cols)
	}
	return ds, nil
}

// augmentation returns closed live trades as extra, older training rows.
func (t *Trainer) augmentation(history []dm.ClosedTradeRow, names []string) ([][]float64, []float64) {
	if len(history) < t.cfg.AugmentMinRows {
		return nil, nil
	}
	rows := append([]dm.ClosedTradeRow(nil), history...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ClosedAt.Before(rows[j].ClosedAt) })
	var X [][]float64
	var y []float64
	for _, r := range rows {
		vec, ok := vectorOf(r.Features, names)
		if !ok || math.IsNaN(r.Target) {
			continue
		}
		X = append(X, vec)
		y = append(y, r.Target)
	}
	t.logger.Debug("training augmented with closed trades", applogger.Int("rows", len(X)))
	return X, y
}

// penaltyWeights down-weights features whose mean over recent losing trades is large.
func (t *Trainer) penaltyWeights(history []dm.ClosedTradeRow, names []string) []float64 {
	var losing []dm.ClosedTradeRow
	for _, r := range history {
		if r.PnL <= t.cfg.PenaltyLossThreshold {
			losing = append(losing, r)
		}
	}
	sort.SliceStable(losing, func(i, j int) bool { return losing[i].ClosedAt.Before(losing[j].ClosedAt) })
	if len(losing) > t.cfg.PenaltyLookback {
		losing = losing[len(losing)-t.cfg.PenaltyLookback:]
	}
	return PenaltyWeights(losing, names)
}

// PenaltyWeights computes 1 - |mean|/max|mean| per feature over the given losing
// trades. Features absent from every trade keep weight 1.
func PenaltyWeights(losing []dm.ClosedTradeRow, names []string) []float64 {
	means := make([]float64, len(names))
	maxAbs := 0.0
	for j, name := range names {
		s, c := 0.0, 0
		for _, r := range losing {
			if v, ok := r.Features[name]; ok && !math.IsNaN(v) {
				s += v
				c++
			}
		}
		if c > 0 {
			means[j] = s / float64(c)
		}
		maxAbs = math.Max(maxAbs, math.Abs(means[j]))
	}
	weights := make([]float64, len(names))
	for j := range weights {
		weights[j] = 1
		if maxAbs > 0 {
			weights[j] = 1 - math.Abs(means[j])/maxAbs
		}
	}
	return weights
}

func (t *Trainer) loadHistory(ctx context.Context) ([]dm.ClosedTradeRow, bool) {
	if t.history == nil {
		return nil, false
	}
	rows, err := t.history.LoadClosedTrades(ctx)
	if err != nil {
		if !errors.Is(err, dm.ErrStoreUnavailable) {
			err = dm.WrapError(dm.KindStoreUnavailable, err, "load closed trades")
		}
		t.logger.Warn("historical trade store unavailable", applogger.Error(err))
		return nil, false
	}
	return rows, true
}

// scoreCandidates cross-validates every available family concurrently.
func (t *Trainer) scoreCandidates(X [][]float64, y []float64, weights []float64) []candidateResult {
	names := t.registry.Candidates()
	results := make([]candidateResult, len(names))
	folds := TimeSeriesSplit(len(y), t.cfg.CVFolds)

	var g errgroup.Group
	if t.cfg.Concurrency > 0 {
		g.SetLimit(t.cfg.Concurrency)
	}
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = t.crossValidate(name, X, y, weights, folds)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// crossValidate scores one family as the mean negative MSE over the folds. The
// scaler is refit on each fold's training rows only and the penalty weights are
// applied to the standardized values.
func (t *Trainer) crossValidate(name string, X [][]float64, y []float64, weights []float64, folds []Fold) candidateResult {
	res := candidateResult{name: name}
	if len(folds) == 0 {
		res.err = dm.Errorf(dm.KindNotEnoughData, "no cross-validation folds")
		return res
	}
	total := 0.0
	for _, f := range folds {
		params, err := scaler.Fit(X[f.TrainStart:f.TrainEnd])
		if err != nil {
			res.err = err
			return res
		}
		trX, _ := scaler.Apply(params, X[f.TrainStart:f.TrainEnd])
		vaX, _ := scaler.Apply(params, X[f.ValStart:f.ValEnd])
		trX, vaX = applyWeights(trX, weights), applyWeights(vaX, weights)
		m, err := t.registry.New(name)
		if err != nil {
			res.err = err
			return res
		}
		if err := m.Fit(trX, y[f.TrainStart:f.TrainEnd]); err != nil {
			res.err = err
			return res
		}
		pred, err := m.Predict(vaX)
		if err != nil {
			res.err = err
			return res
		}
		actual := y[f.ValStart:f.ValEnd]
		se, hits := 0.0, 0
		for i, p := range pred {
			if math.IsNaN(p) || math.IsInf(p, 0) {
				res.err = fmt.Errorf("%s produced a non-finite prediction", name)
				return res
			}
			se += (p - actual[i]) * (p - actual[i])
			if dm.DirectionOf(p) == dm.DirectionOf(actual[i]) {
				hits++
			}
		}
		total += -se / float64(len(pred))
		res.accuracy = append(res.accuracy, float64(hits)/float64(len(pred)))
	}
	res.score = total / float64(len(folds))
	return res
}

func hasRequired(rs []candidateResult) bool {
	for _, r := range rs {
		if models.Required(r.name) {
			return true
		}
	}
	return false
}

// applyWeights multiplies each column by its penalty weight.
func applyWeights(X [][]float64, w []float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = WeightRow(row, w)
	}
	return out
}

// WeightRow multiplies a standardized feature vector by the penalty weights; nil
// weights are a no-op.
func WeightRow(row, w []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v
		if j < len(w) {
			out[j] = v * w[j]
		}
	}
	return out
}

func vectorOf(values map[string]float64, names []string) ([]float64, bool) {
	out := make([]float64, len(names))
	for j, name := range names {
		v, ok := values[name]
		if !ok || math.IsNaN(v) {
			return nil, false
		}
		out[j] = v
	}
	return out, true
}

func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func spread(y []float64) float64 {
	lo, hi := y[0], y[0]
	for _, v := range y {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

func pick(names []string, cols []int) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = names[c]
	}
	return out
}

func pickRow(row []float64, cols []int) []float64 {
	out := make([]float64, len(cols))
	for i, c := range cols {
		out[i] = row[c]
	}
	return out
}
