package models

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	domsvc "AdaptiveEnsemble/internal/domain/service"
)

// BoosterParams configure a gradient-boosted tree ensemble on squared loss.
type BoosterParams struct {
	Rounds       int        `json:"rounds"`
	LearningRate float64    `json:"learning_rate"`
	Tree         TreeParams `json:"tree"`
}

// DefaultXGBoostParams: depth-wise trees with an L2 leaf penalty.
func DefaultXGBoostParams() BoosterParams {
	return BoosterParams{Rounds: 100, LearningRate: 0.1, Tree: TreeParams{
		Growth: GrowDepthWise, MaxDepth: 6, MinSamplesSplit: 2, MinSamplesLeaf: 1, Lambda: 1, MaxBins: 256,
	}}
}

// DefaultLightGBMParams: leaf-wise trees bounded by leaf count and depth.
func DefaultLightGBMParams() BoosterParams {
	return BoosterParams{Rounds: 100, LearningRate: 0.1, Tree: TreeParams{
		Growth: GrowLeafWise, MaxDepth: 6, MaxLeaves: 31, MinSamplesSplit: 2, MinSamplesLeaf: 20, MaxBins: 255,
	}}
}

// DefaultCatBoostParams: symmetric trees with a stronger L2 leaf penalty.
func DefaultCatBoostParams() BoosterParams {
	return BoosterParams{Rounds: 100, LearningRate: 0.1, Tree: TreeParams{
		Growth: GrowOblivious, MaxDepth: 6, MinSamplesSplit: 2, MinSamplesLeaf: 1, Lambda: 3, MaxBins: 254,
	}}
}

// DefaultGradientBoostingParams: the small booster used by the online learner.
func DefaultGradientBoostingParams() BoosterParams {
	return BoosterParams{Rounds: 50, LearningRate: 0.1, Tree: TreeParams{
		Growth: GrowDepthWise, MaxDepth: 3, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxBins: defaultMaxBins,
	}}
}

// Booster is a gradient-boosted regression tree ensemble. Family selects the
// name it reports; the growth policy in Params.Tree selects the algorithm.
type Booster struct {
	Family     string          `json:"family"`
	Params     BoosterParams   `json:"params"`
	Base       float64         `json:"base"`
	Trees      []Tree          `json:"trees,omitempty"`
	Oblivious  []ObliviousTree `json:"oblivious,omitempty"`
	Importance []float64       `json:"importance"`
	Dim        int             `json:"dim"`
}

func NewBooster(family string, p BoosterParams) *Booster {
	return &Booster{Family: family, Params: p}
}

func NewXGBoost(p BoosterParams) *Booster          { return NewBooster(XGBoost, p) }
func NewLightGBM(p BoosterParams) *Booster         { return NewBooster(LightGBM, p) }
func NewCatBoost(p BoosterParams) *Booster         { return NewBooster(CatBoost, p) }
func NewGradientBoosting(p BoosterParams) *Booster { return NewBooster(GradientBoosting, p) }

func (m *Booster) Name() string { return m.Family }

func (m *Booster) Fit(X [][]float64, y []float64) error {
	d, err := checkFit(X, y)
	if err != nil {
		return err
	}
	if m.Params.Rounds <= 0 || m.Params.LearningRate <= 0 {
		return fmt.Errorf("%s fit: rounds and learning rate must be positive", m.Family)
	}
	tp := m.Params.Tree.withDefaults()
	bins := newBinner(X, tp.MaxBins)
	codes := bins.codes(X)
	gr := newGrower(tp, bins, codes)

	n := len(X)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	base := stat.Mean(y, nil)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	resid := make([]float64, n)
	gr.target = resid

	var trees []Tree
	var obl []ObliviousTree
	for r := 0; r < m.Params.Rounds; r++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		if tp.Growth == GrowOblivious {
			t := gr.growOblivious(idx)
			obl = append(obl, t)
			for i, row := range X {
				pred[i] += m.Params.LearningRate * t.predictRow(row)
			}
			continue
		}
		t := gr.grow(idx)
		trees = append(trees, t)
		for i, row := range X {
			pred[i] += m.Params.LearningRate * t.predictRow(row)
		}
	}

	m.Base = base
	m.Trees = trees
	m.Oblivious = obl
	m.Importance = normalize(gr.importance)
	m.Dim = d
	return nil
}

func (m *Booster) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict(X, m.Dim); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := m.Base
		for t := range m.Trees {
			v += m.Params.LearningRate * m.Trees[t].predictRow(row)
		}
		for t := range m.Oblivious {
			v += m.Params.LearningRate * m.Oblivious[t].predictRow(row)
		}
		out[i] = v
	}
	return out, nil
}

func (m *Booster) FeatureImportances() []float64 {
	if m.Dim == 0 {
		return nil
	}
	return append([]float64(nil), m.Importance...)
}

var (
	_ domsvc.Regressor   = (*Booster)(nil)
	_ domsvc.Importancer = (*Booster)(nil)
)
