package models

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	dm "AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
)

func nonlinearSet(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{rng.Float64()*6 - 3, rng.Float64()*4 - 2, rng.NormFloat64()}
		y[i] = math.Sin(X[i][0]) + X[i][1]*X[i][1]
	}
	return X, y
}

func mse(t *testing.T, r domsvc.Regressor, X [][]float64, y []float64) float64 {
	t.Helper()
	p, err := r.Predict(X)
	require.NoError(t, err)
	s := 0.0
	for i := range y {
		s += (p[i] - y[i]) * (p[i] - y[i])
	}
	return s / float64(len(y))
}

func variance(y []float64) float64 {
	sd := stat.PopStdDev(y, nil)
	return sd * sd
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Forest.Trees = 20
	cfg.XGBoost.Rounds = 30
	cfg.LightGBM.Rounds = 30
	cfg.LightGBM.Tree.MinSamplesLeaf = 5
	cfg.CatBoost.Rounds = 30
	cfg.CatBoost.Tree.MaxDepth = 4
	return cfg
}

func TestLinearRecoversCoefficients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	X := make([][]float64, 100)
	y := make([]float64, 100)
	for i := range X {
		X[i] = []float64{rng.NormFloat64(), rng.NormFloat64(), 5}
		y[i] = 2*X[i][0] - 3*X[i][1] + 1
	}
	m := NewLinearRegression()
	require.NoError(t, m.Fit(X, y))
	assert.InDelta(t, 2, m.Coef[0], 1e-3)
	assert.InDelta(t, -3, m.Coef[1], 1e-3)
	assert.InDelta(t, 0, m.Coef[2], 1e-9, "constant column gets no weight")
	assert.Less(t, mse(t, m, X, y), 1e-5)
	assert.Nil(t, ImportancesOf(m))
}

func TestTreeFamiliesLearnNonlinearTarget(t *testing.T) {
	X, y := nonlinearSet(300, 2)
	reg := NewRegistry(smallConfig())
	for _, name := range []string{RandomForest, XGBoost, LightGBM, CatBoost, GradientBoosting} {
		m, err := reg.New(name)
		require.NoError(t, err)
		require.NoError(t, m.Fit(X, y), name)
		assert.Equal(t, name, m.Name())
		assert.Less(t, mse(t, m, X, y), 0.3*variance(y), name)

		imp := ImportancesOf(m)
		require.Len(t, imp, 3, name)
		sum := imp[0] + imp[1] + imp[2]
		assert.InDelta(t, 1, sum, 1e-9, name)
		assert.Greater(t, imp[1], imp[2], "%s: noise column should matter least", name)
	}
}

func TestForestIsDeterministic(t *testing.T) {
	X, y := nonlinearSet(120, 3)
	a := NewForest(ForestParams{Trees: 10, MaxDepth: 5, MinSamplesSplit: 4, Seed: 42})
	b := NewForest(ForestParams{Trees: 10, MaxDepth: 5, MinSamplesSplit: 4, Seed: 42})
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	pa, _ := a.Predict(X)
	pb, _ := b.Predict(X)
	assert.Equal(t, pa, pb)
}

func TestObliviousTreesAreSymmetric(t *testing.T) {
	X, y := nonlinearSet(200, 4)
	p := DefaultCatBoostParams()
	p.Rounds = 5
	p.Tree.MaxDepth = 3
	m := NewCatBoost(p)
	require.NoError(t, m.Fit(X, y))
	require.Len(t, m.Oblivious, 5)
	for _, tree := range m.Oblivious {
		assert.Len(t, tree.Leaves, 1<<len(tree.Features))
		assert.LessOrEqual(t, len(tree.Features), 3)
	}
}

func TestLeafWiseRespectsLeafBudget(t *testing.T) {
	X, y := nonlinearSet(200, 5)
	p := DefaultLightGBMParams()
	p.Rounds = 3
	p.Tree.MaxLeaves = 4
	p.Tree.MinSamplesLeaf = 5
	m := NewLightGBM(p)
	require.NoError(t, m.Fit(X, y))
	for _, tree := range m.Trees {
		leaves := 0
		for _, n := range tree.Nodes {
			if n.Left < 0 {
				leaves++
			}
		}
		assert.LessOrEqual(t, leaves, 4)
	}
}

func TestVotingAveragesMembers(t *testing.T) {
	X, y := nonlinearSet(80, 6)
	lin := NewLinearRegression()
	gb := NewGradientBoosting(DefaultGradientBoostingParams())
	v := NewVoting(lin, gb)
	require.NoError(t, v.Fit(X, y))
	assert.Equal(t, []string{Linear, GradientBoosting}, v.MemberNames())

	pl, _ := lin.Predict(X)
	pg, _ := gb.Predict(X)
	pv, err := v.Predict(X)
	require.NoError(t, err)
	for i := range pv {
		assert.InDelta(t, (pl[i]+pg[i])/2, pv[i], 1e-12)
	}

	err = NewVoting(lin).Fit(X, y)
	assert.True(t, errors.Is(err, dm.ErrNoCandidateModel))
}

func TestRegistryExcludesDisabledFamilies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableLightGBM = false
	cfg.EnableCatBoost = false
	reg := NewRegistry(cfg)
	assert.Equal(t, []string{Linear, RandomForest, XGBoost}, reg.Candidates())
	_, err := reg.New(CatBoost)
	assert.Error(t, err)
	assert.True(t, Required(Linear))
	assert.False(t, Required(XGBoost))
}

func TestPredictGuards(t *testing.T) {
	_, err := NewForest(DefaultForestParams()).Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	m := NewLinearRegression()
	require.NoError(t, m.Fit([][]float64{{1, 2}, {2, 1}, {3, 3}}, []float64{1, 2, 3}))
	_, err = m.Predict([][]float64{{1}})
	assert.True(t, errors.Is(err, dm.ErrFeatureSchemaMismatch))

	assert.True(t, errors.Is(m.Fit(nil, nil), dm.ErrNotEnoughData))
}

func TestArtifactsRestorePredictions(t *testing.T) {
	X, y := nonlinearSet(150, 7)
	reg := NewRegistry(smallConfig())
	var fitted []domsvc.Regressor
	for _, name := range reg.Candidates() {
		m, err := reg.New(name)
		require.NoError(t, err)
		require.NoError(t, m.Fit(X, y))
		fitted = append(fitted, m)
	}
	fitted = append(fitted, &VotingRegressor{Members: fitted[:3], Prefit: true})

	for _, m := range fitted {
		a, err := Encode(m)
		require.NoError(t, err)
		restored, err := Decode(a)
		require.NoError(t, err)
		assert.Equal(t, m.Name(), restored.Name())

		want, err := m.Predict(X)
		require.NoError(t, err)
		got, err := restored.Predict(X)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-9, m.Name())
	}

	_, err := Decode(Artifact{Kind: "svm"})
	assert.Error(t, err)
}
