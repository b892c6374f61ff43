package prediction

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	dm "AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/analytics"
	"AdaptiveEnsemble/internal/services/features"
	"AdaptiveEnsemble/internal/services/quality"
	"AdaptiveEnsemble/internal/services/scaler"
	"AdaptiveEnsemble/internal/services/training"
	applogger "AdaptiveEnsemble/pkg/logger"
)

const (
	// TopImportances bounds the derived feature importance view.
	TopImportances = 15

	preferredBoost   = 1.10
	preferredCeiling = 95.0
	singleModelConf  = 50.0

	fallbackModel = "technical_fallback"
)

// Predictor turns a bundle and the latest bars into a directional prediction.
type Predictor struct {
	gate     *quality.Gate
	engine   *features.Engine
	detector domsvc.RegimeDetector
	perf     *analytics.PerformanceLog
	logger   *applogger.Logger
}

func NewPredictor(gate *quality.Gate, engine *features.Engine, detector domsvc.RegimeDetector, perf *analytics.PerformanceLog) *Predictor {
	return &Predictor{gate: gate, engine: engine, detector: detector, perf: perf, logger: applogger.NewNop()}
}

// SetLogger sets the logger for the predictor.
func (p *Predictor) SetLogger(l *applogger.Logger) {
	if l != nil {
		p.logger = l
	}
}

// FeatureVector returns the raw feature values of the latest bar in bundle order.
func (p *Predictor) FeatureVector(b *training.Bundle, frame dm.Frame) ([]float64, dm.Frame, error) {
	cleaned, err := p.gate.Admit(frame)
	if err != nil {
		return nil, frame, err
	}
	table, err := p.engine.Compute(cleaned)
	if err != nil {
		return nil, cleaned, err
	}
	row, err := table.Row(table.Len()-1, b.Features)
	if err != nil {
		return nil, cleaned, err
	}
	for j, v := range row {
		if math.IsNaN(v) {
			return nil, cleaned, dm.Errorf(dm.KindInsufficientHistory, "feature %q undefined at the latest bar", b.Features[j])
		}
	}
	return row, cleaned, nil
}

// Predict forecasts the move over the bundle horizon from the latest bar of frame.
func (p *Predictor) Predict(b *training.Bundle, frame dm.Frame) (dm.Prediction, error) {
	row, cleaned, err := p.FeatureVector(b, frame)
	if err != nil {
		return dm.Prediction{}, err
	}
	return p.predictRow(b, cleaned, row)
}

// CounterfactualPredict answers what the bundle would predict if the latest close
// were hypotheticalClose. The caller's frame is not modified.
func (p *Predictor) CounterfactualPredict(b *training.Bundle, frame dm.Frame, hypotheticalClose float64) (dm.Prediction, error) {
	if hypotheticalClose <= 0 || math.IsNaN(hypotheticalClose) {
		return dm.Prediction{}, dm.Errorf(dm.KindFeatureComputationFailed, "hypothetical close must be positive")
	}
	alt := p.gate.Clean(frame)
	if alt.Len() > 0 {
		last := &alt.Bars[alt.Len()-1]
		last.Close = hypotheticalClose
		last.High = math.Max(last.High, hypotheticalClose)
		last.Low = math.Min(last.Low, hypotheticalClose)
	}
	return p.Predict(b, alt)
}

// Individual returns the output of every selected model of b for one raw
// feature row given in bundle order.
func (p *Predictor) Individual(b *training.Bundle, row []float64) (map[string]float64, error) {
	_, individual, _, err := p.modelOutputs(b, row)
	return individual, err
}

// modelOutputs standardizes and weights row, then runs every selected model on
// it. values follows the bundle's model order.
func (p *Predictor) modelOutputs(b *training.Bundle, row []float64) ([][]float64, map[string]float64, []float64, error) {
	scaled, err := scaler.ApplyRow(b.Scaler, row)
	if err != nil {
		return nil, nil, nil, err
	}
	X := [][]float64{training.WeightRow(scaled, b.Weights)}

	individual := make(map[string]float64, len(b.Selected))
	values := make([]float64, 0, len(b.Selected))
	for _, m := range b.Individuals() {
		out, err := m.Predict(X)
		if err != nil {
			return nil, nil, nil, err
		}
		individual[m.Name()] = out[0]
		values = append(values, out[0])
	}
	if len(values) == 0 {
		return nil, nil, nil, dm.Errorf(dm.KindNoCandidateModel, "bundle %s has no models", b.ID)
	}
	return X, individual, values, nil
}

func (p *Predictor) predictRow(b *training.Bundle, frame dm.Frame, row []float64) (dm.Prediction, error) {
	X, individual, values, err := p.modelOutputs(b, row)
	if err != nil {
		return dm.Prediction{}, err
	}

	value := stat.Mean(values, nil)
	if b.Ensemble != nil {
		out, err := b.Ensemble.Predict(X)
		if err != nil {
			return dm.Prediction{}, err
		}
		value = out[0]
	}
	direction := dm.DirectionOf(value)

	confidence := singleModelConf
	if len(values) > 1 {
		confidence = clamp(100-100*stat.PopStdDev(values, nil), 0, 100)
	}
	agree := 0
	for _, v := range values {
		if dm.DirectionOf(v) == direction {
			agree++
		}
	}

	regime := p.detector.Detect(frame)
	preferred := analytics.DefaultPreferredModel
	if p.perf != nil {
		preferred = p.perf.Preferred(regime)
	}
	if v, ok := individual[preferred]; ok && dm.DirectionOf(v) == direction {
		confidence = math.Min(confidence*preferredBoost, preferredCeiling)
	}

	pred := dm.Prediction{
		Symbol:         frame.Symbol,
		HorizonMinutes: b.HorizonMinutes,
		Direction:      direction,
		Value:          value,
		Confidence:     confidence,
		AgreementPct:   100 * float64(agree) / float64(len(values)),
		Regime:         regime,
		PreferredModel: preferred,
		Individual:     individual,
		Ensemble:       b.Ensemble != nil,
		BundleID:       b.ID,
		Importances:    Importances(b, TopImportances),
	}
	if last, ok := frame.Last(); ok {
		pred.Timestamp = last.Timestamp
	}
	p.logger.Debug("prediction",
		applogger.String("symbol", pred.Symbol),
		applogger.String("direction", string(pred.Direction)),
		applogger.Float64("value", pred.Value),
		applogger.Float64("confidence", pred.Confidence),
	)
	return pred, nil
}

// Importances returns the union of each tree model's top-k features, highest first.
func Importances(b *training.Bundle, k int) []dm.FeatureImportance {
	best := map[string]dm.FeatureImportance{}
	for _, m := range b.Individuals() {
		imp, ok := m.(domsvc.Importancer)
		if !ok {
			continue
		}
		values := imp.FeatureImportances()
		if len(values) != len(b.Features) {
			continue
		}
		ranked := make([]dm.FeatureImportance, len(values))
		for j, v := range values {
			ranked[j] = dm.FeatureImportance{Model: m.Name(), Feature: b.Features[j], Importance: v}
		}
		sortImportances(ranked)
		if len(ranked) > k {
			ranked = ranked[:k]
		}
		for _, fi := range ranked {
			if cur, ok := best[fi.Feature]; !ok || fi.Importance > cur.Importance {
				best[fi.Feature] = fi
			}
		}
	}
	out := make([]dm.FeatureImportance, 0, len(best))
	for _, fi := range best {
		out = append(out, fi)
	}
	sortImportances(out)
	return out
}

func sortImportances(v []dm.FeatureImportance) {
	sort.Slice(v, func(i, j int) bool {
		if v[i].Importance != v[j].Importance {
			return v[i].Importance > v[j].Importance
		}
		return v[i].Feature < v[j].Feature
	})
}

// Fallback is a technical signal used when no bundle is available: SMA(10) over
// SMA(20) alignment plus the 5 bar change.
func (p *Predictor) Fallback(frame dm.Frame) (dm.Prediction, error) {
	cleaned := p.gate.Clean(frame)
	n := cleaned.Len()
	if n < 2 {
		return dm.Prediction{}, dm.Errorf(dm.KindInsufficientHistory, "fallback needs 2 bars, got %d", n)
	}
	closes := cleaned.Closes()
	current := closes[n-1]
	short := stat.Mean(closes[n-minInt(10, n/2):], nil)
	long := stat.Mean(closes[n-minInt(20, n/2):], nil)
	change5 := 0.0
	if n > 5 {
		change5 = (current/closes[n-6] - 1) * 100
	}
	delta := current - closes[n-2]

	var change float64
	switch {
	case current > short && short > long && change5 > 0:
		change = math.Abs(change5) + delta*0.5
	case current < short && short < long && change5 < 0:
		change = -math.Abs(change5) + delta*0.5
	default:
		change = delta * 0.5
	}
	last, _ := cleaned.Last()
	return dm.Prediction{
		Symbol:         cleaned.Symbol,
		Timestamp:      last.Timestamp,
		Direction:      dm.DirectionOf(change),
		Value:          change,
		Confidence:     math.Min(45+math.Abs(change)*0.5, 80),
		AgreementPct:   100,
		Regime:         p.detector.Detect(cleaned),
		PreferredModel: fallbackModel,
		Individual:     map[string]float64{fallbackModel: change},
		IsFallback:     true,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
