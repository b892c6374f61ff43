package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSeriesSplitNeverLeaks(t *testing.T) {
	for n := 4; n < 300; n += 7 {
		for k := 1; k <= 5; k++ {
			folds := TimeSeriesSplit(n, k)
			if n < k+1 {
				assert.Nil(t, folds)
				continue
			}
			require.Len(t, folds, k)
			for _, f := range folds {
				assert.Less(t, f.TrainEnd-1, f.ValStart, "n=%d k=%d", n, k)
				assert.Greater(t, f.TrainEnd, f.TrainStart)
				assert.Equal(t, n/(k+1), f.ValEnd-f.ValStart)
				assert.LessOrEqual(t, f.ValEnd, n)
			}
			assert.Equal(t, n, folds[k-1].ValEnd)
		}
	}
}

func TestTimeSeriesSplitMatchesReferenceLayout(t *testing.T) {
	// 10 rows, 3 folds: validation size 2, training windows 4, 6, 8.
	assert.Equal(t, []Fold{
		{0, 4, 4, 6},
		{0, 6, 6, 8},
		{0, 8, 8, 10},
	}, TimeSeriesSplit(10, 3))
}

func TestQuantileAndIQRMask(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, quantile(s, 0.25), 1e-12)
	assert.InDelta(t, 3.25, quantile(s, 0.75), 1e-12)

	mask := iqrMask([]float64{1, 2, 3, 4, 100, -50})
	assert.Equal(t, []bool{true, true, true, true, false, false}, mask)
}
