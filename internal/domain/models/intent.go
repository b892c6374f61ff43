package models

import "time"

// TradeIntent is a request to open a position, emitted by a policy or the facade.
// The caller decides how to route it.
type TradeIntent struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	SizeHint   float64   `json:"size_hint"` // quote notional; 0 lets the backtester size it
	TPPct      float64   `json:"tp_pct"`    // ratio, 0.02 = 2%
	SLPct      float64   `json:"sl_pct"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
