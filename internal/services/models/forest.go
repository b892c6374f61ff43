package models

import (
	"context"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	domsvc "AdaptiveEnsemble/internal/domain/service"
)

// ForestParams configure a bootstrap-aggregated forest of depth-wise trees.
type ForestParams struct {
	Trees           int   `json:"trees"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxBins         int   `json:"max_bins"`
	Seed            int64 `json:"seed"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{Trees: 100, MaxDepth: 8, MinSamplesSplit: 4, MinSamplesLeaf: 1, MaxBins: defaultMaxBins, Seed: 42}
}

// Forest is a random forest regressor. Tree i draws its bootstrap sample from
// Seed+i, so the fitted forest does not depend on scheduling.
type Forest struct {
	Params     ForestParams `json:"params"`
	Trees      []Tree       `json:"trees"`
	Importance []float64    `json:"importance"`
	Dim        int          `json:"dim"`
}

func NewForest(p ForestParams) *Forest {
	if p.Trees <= 0 {
		p.Trees = DefaultForestParams().Trees
	}
	return &Forest{Params: p}
}

func (m *Forest) Name() string { return RandomForest }

func (m *Forest) Fit(X [][]float64, y []float64) error {
	d, err := checkFit(X, y)
	if err != nil {
		return err
	}
	tp := TreeParams{
		Growth:          GrowDepthWise,
		MaxDepth:        m.Params.MaxDepth,
		MinSamplesSplit: m.Params.MinSamplesSplit,
		MinSamplesLeaf:  m.Params.MinSamplesLeaf,
		MaxBins:         m.Params.MaxBins,
	}.withDefaults()
	bins := newBinner(X, tp.MaxBins)
	codes := bins.codes(X)

	trees := make([]Tree, m.Params.Trees)
	imps := make([][]float64, m.Params.Trees)
	n := len(X)

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < m.Params.Trees; t++ {
		t := t
		g.Go(func() error {
			rng := rand.New(rand.NewSource(m.Params.Seed + int64(t)))
			idx := make([]int, n)
			for i := range idx {
				idx[i] = rng.Intn(n)
			}
			gr := newGrower(tp, bins, codes)
			gr.target = y
			trees[t] = gr.grow(idx)
			imps[t] = gr.importance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := make([]float64, d)
	for _, imp := range imps {
		for j, v := range normalize(imp) {
			total[j] += v
		}
	}
	m.Trees = trees
	m.Importance = normalize(total)
	m.Dim = d
	return nil
}

func (m *Forest) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict(X, m.Dim); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		s := 0.0
		for t := range m.Trees {
			s += m.Trees[t].predictRow(row)
		}
		out[i] = s / float64(len(m.Trees))
	}
	return out, nil
}

func (m *Forest) FeatureImportances() []float64 {
	if m.Dim == 0 {
		return nil
	}
	return append([]float64(nil), m.Importance...)
}

var (
	_ domsvc.Regressor   = (*Forest)(nil)
	_ domsvc.Importancer = (*Forest)(nil)
)
