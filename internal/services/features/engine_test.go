package features

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdaptiveEnsemble/internal/domain/models"
	"AdaptiveEnsemble/internal/testutil"
)

func sameValue(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func TestComputeRejectsShortFrames(t *testing.T) {
	_, err := NewEngine().Compute(testutil.RandomWalk("BTCUSDT", MinBars-1, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientHistory))
}

func TestSchemaIsStable(t *testing.T) {
	names := Names()
	table, err := NewEngine().Compute(testutil.RandomWalk("BTCUSDT", 120, 2))
	require.NoError(t, err)
	assert.Equal(t, names, table.Names)

	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate feature %s", n)
		seen[n] = true
	}
	for _, want := range []string{"ema_fast", "rsi_bin", "macd_histogram", "bb_position", "atr_14", "obv",
		"close_lag_20", "rolling_volume_50", "price_change_10", "realized_vol_20"} {
		assert.True(t, seen[want], want)
	}
}

func TestFeaturesAreCausal(t *testing.T) {
	engine := NewEngine()
	for seed := int64(1); seed <= 5; seed++ {
		base := testutil.RandomWalk("BTCUSDT", 150, seed)
		ref, err := engine.Compute(base)
		require.NoError(t, err)

		cut := 60 + int(seed)*10
		perturbed := base.Clone()
		for i := cut + 1; i < perturbed.Len(); i++ {
			perturbed.Bars[i].Close *= 1.5
			perturbed.Bars[i].High *= 1.6
			perturbed.Bars[i].Volume *= 3
		}
		got, err := engine.Compute(perturbed)
		require.NoError(t, err)

		for _, name := range ref.Names {
			a, _ := ref.Column(name)
			b, _ := got.Column(name)
			for i := 0; i <= cut; i++ {
				require.True(t, sameValue(a[i], b[i]), "feature %s changed at %d (cut %d)", name, i, cut)
			}
		}
	}
}

func TestWarmupStaysUndefinedAndIsForwardFilledOnly(t *testing.T) {
	table, err := NewEngine().Compute(testutil.RandomWalk("ETHUSDT", 80, 3))
	require.NoError(t, err)

	lag, _ := table.Column("close_lag_20")
	for i := 0; i < 20; i++ {
		assert.True(t, math.IsNaN(lag[i]))
	}
	assert.Equal(t, table.Closes[0], lag[20])

	ema200, _ := table.Column("ema_200")
	assert.True(t, math.IsNaN(ema200[79]), "ema_200 cannot be defined on 80 bars")
	assert.InDelta(t, 1.0, table.MissingRatio("ema_200"), 1e-12)
}

func TestRSIBinsAndZeroDenominators(t *testing.T) {
	table, err := NewEngine().Compute(testutil.Constant("X", 60, 10))
	require.NoError(t, err)

	ratio, _ := table.Column("volume_ratio")
	assert.Equal(t, 0.0, ratio[59])
	z, _ := table.Column("close_zscore")
	assert.Equal(t, 0.0, z[59])

	assert.Equal(t, []float64{0, 1, 1, 2, 2}, rsiBin([]float64{29.9, 30, 69.9, 70, 100}))
}

func TestIndicatorReferenceValues(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	m := rollingMean(x, 3)
	assert.True(t, math.IsNaN(m[1]))
	assert.InDelta(t, 4.0, m[4], 1e-12)

	s := rollingStd(x, 3, 1)
	assert.InDelta(t, 1.0, s[2], 1e-12)

	e := ema(x, 3)
	assert.True(t, math.IsNaN(e[1]))
	// alpha = 0.5: 1, 1.5, 2.25
	assert.InDelta(t, 2.25, e[2], 1e-12)

	assert.Equal(t, []float64{1, 3, 2, 2}, obv([]float64{1, 2, 1, 1}, []float64{1, 2, 1, 0}))

	up := rsi([]float64{1, 2, 3, 4, 5, 6}, 3)
	assert.Equal(t, 100.0, up[5])
}

func TestTargetAndFuturePeriods(t *testing.T) {
	closes := []float64{100, 110, 121, 100}
	got := Target(closes, 2)
	assert.InDelta(t, 21.0, got[0], 1e-9)
	assert.InDelta(t, (100.0/110-1)*100, got[1], 1e-9)
	assert.True(t, math.IsNaN(got[2]))
	assert.True(t, math.IsNaN(got[3]))

	assert.Equal(t, 6, FuturePeriods(30))
	assert.Equal(t, 1, FuturePeriods(3))
}

func TestRealizedVolatility(t *testing.T) {
	rets := []float64{0.01, -0.01, 0.01, -0.01}
	// sample stdev of alternating +/-0.01 over 4 values is 0.01*sqrt(4/3)
	want := 0.01 * math.Sqrt(4.0/3.0) * math.Sqrt(TradingDaysPerYear)
	assert.InDelta(t, want, RealizedVolatility(rets, 4, TradingDaysPerYear), 1e-12)
	assert.Zero(t, RealizedVolatility(rets, 5, TradingDaysPerYear))
}
