package scaler

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdaptiveEnsemble/internal/domain/models"
)

func TestRoundTripStandardizes(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X := make([][]float64, 200)
	for i := range X {
		X[i] = []float64{rng.NormFloat64()*5 + 10, rng.Float64() * 1000, 7}
	}
	p, err := Fit(X)
	require.NoError(t, err)
	Z, err := Apply(p, X)
	require.NoError(t, err)

	for j := 0; j < 3; j++ {
		mean, sq := 0.0, 0.0
		for _, row := range Z {
			mean += row[j]
		}
		mean /= float64(len(Z))
		for _, row := range Z {
			sq += (row[j] - mean) * (row[j] - mean)
		}
		std := math.Sqrt(sq / float64(len(Z)))
		if j == 2 {
			assert.Zero(t, p.Std[j])
			for _, row := range Z {
				assert.Zero(t, row[j])
			}
			continue
		}
		assert.InDelta(t, 0, mean, 1e-9)
		assert.InDelta(t, 1, std, 1e-9)
	}
}

func TestApplyBeforeFit(t *testing.T) {
	_, err := Apply(models.ScalerParams{}, [][]float64{{1}})
	assert.True(t, errors.Is(err, models.ErrScalerNotFit))
	_, err = ApplyRow(models.ScalerParams{}, []float64{1})
	assert.True(t, errors.Is(err, models.ErrScalerNotFit))
}

func TestApplyRejectsWidthMismatch(t *testing.T) {
	p, err := Fit([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	_, err = ApplyRow(p, []float64{1})
	assert.True(t, errors.Is(err, models.ErrFeatureSchemaMismatch))
}

func TestApplyDoesNotRefit(t *testing.T) {
	p, err := Fit([][]float64{{0}, {2}})
	require.NoError(t, err)
	Z, err := Apply(p, [][]float64{{4}})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, Z[0][0], 1e-12)

	again, err := Apply(p, [][]float64{{4}})
	require.NoError(t, err)
	assert.Equal(t, Z, again)
	assert.Equal(t, 1, p.Dim())
}
