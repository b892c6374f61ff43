package models

import "time"

// PositionStatus is the lifecycle state of a backtest position.
type PositionStatus string

const (
	StatusOpen            PositionStatus = "OPEN"
	StatusClosedTP        PositionStatus = "CLOSED_TP"
	StatusClosedSL        PositionStatus = "CLOSED_SL"
	StatusClosedManual    PositionStatus = "CLOSED_MANUAL"
	StatusClosedPeriodEnd PositionStatus = "CLOSED_PERIOD_END"
)

// Terminal reports whether no further transition is possible.
func (s PositionStatus) Terminal() bool { return s != StatusOpen }

// CloseReason explains why a position was closed.
type CloseReason string

const (
	ReasonTP        CloseReason = "TP"
	ReasonSL        CloseReason = "SL"
	ReasonManual    CloseReason = "MANUAL"
	ReasonPeriodEnd CloseReason = "PERIOD_END"
)

// Status maps a close reason to the terminal status it produces.
func (r CloseReason) Status() PositionStatus {
	switch r {
	case ReasonTP:
		return StatusClosedTP
	case ReasonSL:
		return StatusClosedSL
	case ReasonPeriodEnd:
		return StatusClosedPeriodEnd
	default:
		return StatusClosedManual
	}
}

// Position is an open or closed simulated position. Size is the quote notional
// committed after the entry fee.
type Position struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	Direction  Direction      `json:"direction"`
	EntryPrice float64        `json:"entry_price"`
	Size       float64        `json:"size"`
	TPPrice    float64        `json:"tp_price"`
	SLPrice    float64        `json:"sl_price"`
	EntryFee   float64        `json:"entry_fee"`
	OpenedAt   time.Time      `json:"opened_at"`
	Status     PositionStatus `json:"status"`
}

// TradeRecord is the immutable snapshot written when a position closes.
type TradeRecord struct {
	Position
	ExitPrice   float64     `json:"exit_price"`
	GrossPnL    float64     `json:"gross_pnl"`
	ExitFee     float64     `json:"exit_fee"`
	NetPnL      float64     `json:"net_pnl"`
	ReturnPct   float64     `json:"return_pct"`
	CloseReason CloseReason `json:"close_reason"`
	ClosedAt    time.Time   `json:"closed_at"`
}

// Duration is the holding time of the trade.
func (t TradeRecord) Duration() time.Duration { return t.ClosedAt.Sub(t.OpenedAt) }

// ClosedTradeRow is a historical live trade read from the trade store.
type ClosedTradeRow struct {
	ID       string             `json:"id"`
	Symbol   string             `json:"symbol"`
	Features map[string]float64 `json:"features"`
	Target   float64            `json:"target"` // realized percent move
	PnL      float64            `json:"pnl"`
	ClosedAt time.Time          `json:"closed_at"`
}
