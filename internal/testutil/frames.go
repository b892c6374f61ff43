// Package testutil builds deterministic synthetic OHLCV frames for tests.
package testutil

import (
	"math"
	"math/rand"
	"time"

	"AdaptiveEnsemble/internal/domain/models"
)

// Start is the timestamp of the first synthetic bar.
var Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Step is the bar spacing of synthetic frames.
const Step = 5 * time.Minute

// RandomWalk builds n bars of a geometric random walk with 1% per-bar volatility.
func RandomWalk(symbol string, n int, seed int64) models.Frame {
	rng := rand.New(rand.NewSource(seed))
	closes := make([]float64, n)
	p := 100.0
	for i := range closes {
		p *= math.Exp(rng.NormFloat64() * 0.01)
		closes[i] = p
	}
	f := FromCloses(symbol, closes)
	for i := range f.Bars {
		f.Bars[i].Volume = 500 + rng.Float64()*1000
	}
	return f
}

// Trending builds n bars whose log price drifts by drift per bar with an alternating
// +/- swing component of the given size.
func Trending(symbol string, n int, drift, swing float64) models.Frame {
	closes := make([]float64, n)
	lp := math.Log(100)
	for i := range closes {
		r := drift + swing
		if i%2 == 1 {
			r = drift - swing
		}
		if i > 0 {
			lp += r
		}
		closes[i] = math.Exp(lp)
	}
	return FromCloses(symbol, closes)
}

// Constant builds n identical bars with zero volume.
func Constant(symbol string, n int, price float64) models.Frame {
	bars := make([]models.Candle, n)
	for i := range bars {
		bars[i] = models.Candle{
			Timestamp: Start.Add(time.Duration(i) * Step),
			Open:      price, High: price, Low: price, Close: price,
		}
	}
	return models.NewFrame(symbol, bars)
}

// FromCloses builds bars around the given closes; open is the previous close and
// high/low bracket both by 0.2%.
func FromCloses(symbol string, closes []float64) models.Frame {
	bars := make([]models.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = models.Candle{
			Timestamp: Start.Add(time.Duration(i) * Step),
			Open:      open,
			High:      math.Max(open, c) * 1.002,
			Low:       math.Min(open, c) * 0.998,
			Close:     c,
			Volume:    1000,
		}
	}
	return models.NewFrame(symbol, bars)
}
