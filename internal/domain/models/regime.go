package models

import "time"

// Regime is a coarse label for recent market behaviour.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeVolatile Regime = "volatile"
)

// Regimes lists every regime label.
var Regimes = []Regime{RegimeTrending, RegimeRanging, RegimeVolatile}

func (r Regime) Valid() bool {
	switch r {
	case RegimeTrending, RegimeRanging, RegimeVolatile:
		return true
	default:
		return false
	}
}

// RegimeReading is the measurement behind a regime label.
type RegimeReading struct {
	Symbol        string    `json:"symbol"`
	Timestamp     time.Time `json:"timestamp"`
	State         Regime    `json:"state"`
	Volatility    float64   `json:"volatility"`     // annualized stdev of log returns
	TrendStrength float64   `json:"trend_strength"` // |SMA10 - SMA30| / SMA30
	Bars          int       `json:"bars"`
}
