package models

import "time"

// EquityPoint is the capital observed after a position close.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// DrawdownPoint is the decline from the running-max capital watermark.
type DrawdownPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	DrawdownPct float64   `json:"drawdown_pct"`
}

// Metrics summarizes a set of closed trades.
type Metrics struct {
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalPnL         float64 `json:"total_pnl"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	ProfitFactor     float64 `json:"profit_factor"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	AvgDurationHours float64 `json:"avg_duration_hours"`
	InitialCapital   float64 `json:"initial_capital"`
	FinalCapital     float64 `json:"final_capital"`
}

// FoldMetrics are the metrics of one walk-forward fold.
type FoldMetrics struct {
	Fold       int       `json:"fold"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
	Intents    int       `json:"intents"`
	Accepted   int       `json:"accepted"`
	Metrics    Metrics   `json:"metrics"`
}

// BacktestReport is the result of a backtest or walk-forward run.
type BacktestReport struct {
	RunID    string          `json:"run_id"`
	Symbol   string          `json:"symbol"`
	Trades   []TradeRecord   `json:"trades"`
	Equity   []EquityPoint   `json:"equity"`
	Drawdown []DrawdownPoint `json:"drawdown"`
	Metrics  Metrics         `json:"metrics"`
	Folds    []FoldMetrics   `json:"folds,omitempty"`
}
