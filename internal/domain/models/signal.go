package models

import (
	"math"
	"time"
)

// Candle represents an OHLCV record for feature engineering and training.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Column names of an OHLCV source table.
const (
	ColTimestamp = "timestamp"
	ColOpen      = "open"
	ColHigh      = "high"
	ColLow       = "low"
	ColClose     = "close"
	ColVolume    = "volume"
)

// RequiredColumns lists the columns every admitted frame must carry.
var RequiredColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// Frame is an ordered OHLCV series for one symbol.
// Columns holds the column names of the source table when the frame was loaded
// from an external file; nil means the frame was built in code and is complete.
type Frame struct {
	Symbol  string   `json:"symbol"`
	Bars    []Candle `json:"bars"`
	Columns []string `json:"columns,omitempty"`
}

// NewFrame builds a frame for symbol over bars.
func NewFrame(symbol string, bars []Candle) Frame {
	return Frame{Symbol: symbol, Bars: bars}
}

func (f Frame) Len() int { return len(f.Bars) }

// Last returns the latest bar; ok is false on an empty frame.
func (f Frame) Last() (Candle, bool) {
	if len(f.Bars) == 0 {
		return Candle{}, false
	}
	return f.Bars[len(f.Bars)-1], true
}

// Slice returns the half-open window [i, j) sharing the underlying bars.
func (f Frame) Slice(i, j int) Frame {
	return Frame{Symbol: f.Symbol, Bars: f.Bars[i:j], Columns: f.Columns}
}

// Tail returns the last n bars (or the whole frame when shorter).
func (f Frame) Tail(n int) Frame {
	if n >= len(f.Bars) {
		return f
	}
	return f.Slice(len(f.Bars)-n, len(f.Bars))
}

// Clone deep-copies the bars so the copy can be mutated safely.
func (f Frame) Clone() Frame {
	bars := make([]Candle, len(f.Bars))
	copy(bars, f.Bars)
	var cols []string
	if f.Columns != nil {
		cols = append([]string(nil), f.Columns...)
	}
	return Frame{Symbol: f.Symbol, Bars: bars, Columns: cols}
}

// HasColumn reports whether the source table carried the named column.
func (f Frame) HasColumn(name string) bool {
	if f.Columns == nil {
		return true
	}
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (f Frame) Opens() []float64   { return f.column(func(c Candle) float64 { return c.Open }) }
func (f Frame) Highs() []float64   { return f.column(func(c Candle) float64 { return c.High }) }
func (f Frame) Lows() []float64    { return f.column(func(c Candle) float64 { return c.Low }) }
func (f Frame) Closes() []float64  { return f.column(func(c Candle) float64 { return c.Close }) }
func (f Frame) Volumes() []float64 { return f.column(func(c Candle) float64 { return c.Volume }) }

func (f Frame) column(get func(Candle) float64) []float64 {
	out := make([]float64, len(f.Bars))
	for i, c := range f.Bars {
		out[i] = get(c)
	}
	return out
}

// Valid reports whether the bar satisfies low <= min(open, close) <= max(open, close) <= high
// with strictly positive prices and non-negative volume.
func (c Candle) Valid() bool {
	for _, p := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(p) || p <= 0 {
			return false
		}
	}
	if math.IsNaN(c.Volume) || c.Volume < 0 {
		return false
	}
	return c.Low <= math.Min(c.Open, c.Close) && math.Max(c.Open, c.Close) <= c.High
}
