package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/features"
)

const (
	DefaultLookback     = 50
	VolatilityThreshold = 0.30
	TrendThreshold      = 0.05

	fastSMA = 10
	slowSMA = 30
)

// RegimeDetector labels the last lookback bars of a frame. It is a pure function of the window.
type RegimeDetector struct {
	lookback int
}

func NewRegimeDetector(lookback int) *RegimeDetector {
	if lookback < slowSMA {
		lookback = DefaultLookback
	}
	return &RegimeDetector{lookback: lookback}
}

func (d *RegimeDetector) Lookback() int { return d.lookback }

// Detect returns the regime label of frame.
func (d *RegimeDetector) Detect(frame models.Frame) models.Regime {
	return d.Measure(frame).State
}

// Measure returns the label together with the volatility and trend readings.
// Frames shorter than the lookback are labelled trending.
func (d *RegimeDetector) Measure(frame models.Frame) models.RegimeReading {
	reading := models.RegimeReading{Symbol: frame.Symbol, State: models.RegimeTrending, Bars: frame.Len()}
	if last, ok := frame.Last(); ok {
		reading.Timestamp = last.Timestamp
	}
	if frame.Len() < d.lookback {
		return reading
	}

	window := frame.Tail(d.lookback)
	returns := features.ComputeLogReturns(window.Bars)
	reading.Volatility = features.RealizedVolatility(returns, len(returns), features.TradingDaysPerYear)

	closes := window.Closes()
	fast := stat.Mean(closes[len(closes)-fastSMA:], nil)
	slow := stat.Mean(closes[len(closes)-slowSMA:], nil)
	if slow != 0 {
		reading.TrendStrength = math.Abs(fast-slow) / slow
	}

	switch {
	case reading.Volatility > VolatilityThreshold:
		reading.State = models.RegimeVolatile
	case reading.TrendStrength > TrendThreshold:
		reading.State = models.RegimeTrending
	default:
		reading.State = models.RegimeRanging
	}
	return reading
}

var _ domsvc.RegimeDetector = (*RegimeDetector)(nil)
