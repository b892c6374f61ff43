package features

import (
	"math"

	"AdaptiveEnsemble/internal/domain/models"
)

// TradingDaysPerYear annualizes daily-sampled volatility.
const TradingDaysPerYear = 252

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility (sample stdev) over the
// last window returns using the provided number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		sum += logReturns[i]
	}
	n := float64(window)
	mean := sum / n
	ss := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		d := logReturns[i] - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1) * barsPerYear)
}

// FuturePeriods converts a horizon in minutes to a bar count on the 5 minute grid.
func FuturePeriods(horizonMinutes int) int {
	p := horizonMinutes / 5
	if p < 1 {
		return 1
	}
	return p
}

// Target returns target[t] = (close[t+h]/close[t] - 1) * 100, NaN where t+h is past the end.
func Target(closes []float64, h int) []float64 {
	out := nanSeries(len(closes))
	for t := 0; t+h < len(closes); t++ {
		if closes[t] == 0 {
			continue
		}
		out[t] = (closes[t+h]/closes[t] - 1) * 100
	}
	return out
}
