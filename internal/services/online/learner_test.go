package online

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/models"
)

type failingModel struct{ domsvc.Regressor }

func (failingModel) Name() string                         { return "failing" }
func (failingModel) Fit(X [][]float64, y []float64) error { return errors.New("no") }

func fill(l *Learner, n, width int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		x := make([]float64, width)
		for j := range x {
			x[j] = rng.NormFloat64()
		}
		l.Add(x, 2*x[0]+rng.NormFloat64()*0.01)
	}
}

func TestBufferIsBounded(t *testing.T) {
	l := NewLearner(25, nil)
	for i := 0; i < 100; i++ {
		l.Add([]float64{float64(i)}, float64(i))
		require.LessOrEqual(t, l.Len(), 25)
	}
	s := l.Samples()
	assert.Equal(t, 75.0, s[0].Target, "oldest samples are evicted first")
	assert.Equal(t, 99.0, s[24].Target)
}

func TestRefitNeedsTenSamples(t *testing.T) {
	l := NewLearner(100, nil)
	fill(l, MinSamples-1, 3, 1)
	assert.False(t, l.Refit())
	_, ok := l.Predict([]float64{0, 0, 0})
	assert.False(t, ok)

	fill(l, 1, 3, 2)
	assert.True(t, l.Refit())
	assert.True(t, l.Fitted())
	_, ok = l.Predict([]float64{0, 0, 0})
	assert.True(t, ok)
}

func TestLaterRefitsKeepTheScaler(t *testing.T) {
	l := NewLearner(500, func() domsvc.Regressor { return models.NewLinearRegression() })
	fill(l, 40, 2, 3)
	require.True(t, l.Refit())
	first := l.params

	fill(l, 100, 2, 4)
	require.True(t, l.Refit())
	assert.Equal(t, first, l.params)

	v, ok := l.Predict([]float64{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 2, v, 0.1)
}

func TestSchemaChangeResetsBuffer(t *testing.T) {
	l := NewLearner(100, nil)
	fill(l, 20, 3, 5)
	require.True(t, l.Refit())

	l.Add([]float64{1, 2, 3, 4}, 1)
	assert.Equal(t, 1, l.Len())
	assert.False(t, l.Fitted())
}

func TestFailedRefitKeepsState(t *testing.T) {
	calls := 0
	l := NewLearner(100, func() domsvc.Regressor {
		calls++
		if calls > 1 {
			return failingModel{}
		}
		return models.NewLinearRegression()
	})
	fill(l, 20, 2, 6)
	require.True(t, l.Refit())
	before, _ := l.Predict([]float64{1, 1})

	assert.False(t, l.Refit())
	after, ok := l.Predict([]float64{1, 1})
	require.True(t, ok)
	assert.Equal(t, before, after)
}
