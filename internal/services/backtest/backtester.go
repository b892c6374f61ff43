package backtest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	dm "AdaptiveEnsemble/internal/domain/models"
	"AdaptiveEnsemble/internal/domain/repository"
	"AdaptiveEnsemble/internal/services/performance"
	applogger "AdaptiveEnsemble/pkg/logger"
)

// Costs are the proportional execution costs applied to every fill.
type Costs struct {
	FeeRate  float64
	Slippage float64
}

// fill returns the executed price for an entry (entering=true) or an exit.
// Longs buy on entry and sell on exit; shorts do the opposite.
func (c Costs) fill(dir dm.Direction, price float64, entering bool) float64 {
	buying := (dir == dm.Long) == entering
	if buying {
		return price * (1 + c.Slippage)
	}
	return price * (1 - c.Slippage)
}

// Backtester simulates a cash account with TP/SL positions. A single instance
// is safe for concurrent use, although runs drive it from one goroutine.
type Backtester struct {
	mu        sync.Mutex
	initial   float64
	capital   float64
	watermark float64
	costs     Costs
	seq       int

	positions map[string]*dm.Position
	order     []string
	trades    []dm.TradeRecord
	equity    []dm.EquityPoint
	drawdown  []dm.DrawdownPoint

	logger *applogger.Logger
}

// NewBacktester creates an account holding initialCapital.
func NewBacktester(initialCapital float64, costs Costs) *Backtester {
	return &Backtester{
		initial:   initialCapital,
		capital:   initialCapital,
		watermark: initialCapital,
		costs:     costs,
		positions: make(map[string]*dm.Position),
		logger:    applogger.NewNop(),
	}
}

// SetLogger sets the logger for the backtester.
func (b *Backtester) SetLogger(l *applogger.Logger) {
	if l != nil {
		b.logger = l
	}
}

// Open registers a position of the given quote notional. The entry fee is charged
// on the notional and the remainder is the position size.
func (b *Backtester) Open(symbol string, dir dm.Direction, notional, entryPrice, tpRatio, slRatio float64, at time.Time) (dm.Position, error) {
	if !dir.Valid() {
		return dm.Position{}, dm.Errorf(dm.KindInvalidConfig, "unknown direction %q", dir)
	}
	if notional <= 0 || entryPrice <= 0 {
		return dm.Position{}, dm.Errorf(dm.KindInvalidConfig, "notional and entry price must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// The whole notional leaves capital and the entry fee is carved out of it,
	// so Size is the exposure net of the fee.
	fee := notional * b.costs.FeeRate
	size := notional - fee
	if notional > b.capital {
		return dm.Position{}, dm.Errorf(dm.KindCapitalExhausted, "notional %.2f exceeds capital %.2f", notional, b.capital)
	}

	entry := b.costs.fill(dir, entryPrice, true)
	p := &dm.Position{
		ID:         strconv.Itoa(b.seq),
		Symbol:     symbol,
		Direction:  dir,
		EntryPrice: entry,
		Size:       size,
		EntryFee:   fee,
		OpenedAt:   at,
		Status:     dm.StatusOpen,
	}
	if dir == dm.Long {
		p.TPPrice = entry * (1 + tpRatio)
		p.SLPrice = entry * (1 - slRatio)
	} else {
		p.TPPrice = entry * (1 - tpRatio)
		p.SLPrice = entry * (1 + slRatio)
	}
	b.seq++
	b.positions[p.ID] = p
	b.order = append(b.order, p.ID)
	b.capital -= notional

	b.logger.Debug("position opened",
		applogger.String("id", p.ID),
		applogger.String("symbol", symbol),
		applogger.String("direction", string(dir)),
		applogger.Float64("entry", entry),
		applogger.Float64("size", size),
	)
	return *p, nil
}

// Tick evaluates every open position against the given prices, take-profit
// first. Symbols without a price are left untouched.
func (b *Backtester) Tick(at time.Time, prices map[string]float64) []dm.TradeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	var closed []dm.TradeRecord
	for _, id := range b.order {
		p := b.positions[id]
		if p.Status != dm.StatusOpen {
			continue
		}
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		reason, hit := trigger(p, price)
		if !hit {
			continue
		}
		rec, err := b.closeLocked(id, price, reason, at)
		if err == nil {
			closed = append(closed, rec)
		}
	}
	return closed
}

func trigger(p *dm.Position, price float64) (dm.CloseReason, bool) {
	if p.Direction == dm.Long {
		switch {
		case price >= p.TPPrice:
			return dm.ReasonTP, true
		case price <= p.SLPrice:
			return dm.ReasonSL, true
		}
		return "", false
	}
	switch {
	case price <= p.TPPrice:
		return dm.ReasonTP, true
	case price >= p.SLPrice:
		return dm.ReasonSL, true
	}
	return "", false
}

// TickFeed fetches one price per symbol with open positions and ticks them.
// Symbols the feed could not price are returned and their positions are not
// evaluated.
func (b *Backtester) TickFeed(ctx context.Context, at time.Time, feed repository.PriceFeed) ([]dm.TradeRecord, []string) {
	prices := make(map[string]float64)
	var unavailable []string
	for _, symbol := range b.OpenSymbols() {
		price, err := feed.Fetch(ctx, symbol)
		if err != nil || price <= 0 {
			unavailable = append(unavailable, symbol)
			b.logger.Warn("price unavailable",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			continue
		}
		prices[symbol] = price
	}
	return b.Tick(at, prices), unavailable
}

// Close exits a position at price. Closing an unknown or already closed position
// returns PositionNotFound or PositionAlreadyClosed and changes nothing.
func (b *Backtester) Close(id string, price float64, reason dm.CloseReason, at time.Time) (dm.TradeRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked(id, price, reason, at)
}

func (b *Backtester) closeLocked(id string, price float64, reason dm.CloseReason, at time.Time) (dm.TradeRecord, error) {
	p, ok := b.positions[id]
	if !ok {
		return dm.TradeRecord{}, dm.Errorf(dm.KindPositionNotFound, "position %s not found", id)
	}
	if p.Status.Terminal() {
		return dm.TradeRecord{}, dm.Errorf(dm.KindPositionAlreadyClosed, "position %s already %s", id, p.Status)
	}

	exit := b.costs.fill(p.Direction, price, false)
	gross := (exit - p.EntryPrice) * (p.Size / p.EntryPrice)
	if p.Direction == dm.Short {
		gross = -gross
	}
	exitFee := 0.0
	if gross > 0 {
		exitFee = gross * b.costs.FeeRate
	}
	net := gross - exitFee

	p.Status = reason.Status()
	b.capital += p.Size + net

	rec := dm.TradeRecord{
		Position:    *p,
		ExitPrice:   exit,
		GrossPnL:    gross,
		ExitFee:     exitFee,
		NetPnL:      net,
		ReturnPct:   net / p.Size * 100,
		CloseReason: reason,
		ClosedAt:    at,
	}
	b.trades = append(b.trades, rec)
	b.equity = append(b.equity, dm.EquityPoint{Timestamp: at, Equity: b.capital})
	if b.capital > b.watermark {
		b.watermark = b.capital
	}
	b.drawdown = append(b.drawdown, dm.DrawdownPoint{
		Timestamp:   at,
		DrawdownPct: (b.watermark - b.capital) / b.watermark * 100,
	})

	b.logger.Debug("position closed",
		applogger.String("id", id),
		applogger.String("reason", string(reason)),
		applogger.Float64("exit", exit),
		applogger.Float64("net_pnl", net),
	)
	return rec, nil
}

// CloseAll closes every open position at the price of its symbol.
func (b *Backtester) CloseAll(prices map[string]float64, reason dm.CloseReason, at time.Time) []dm.TradeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []dm.TradeRecord
	for _, id := range b.order {
		p := b.positions[id]
		if p.Status != dm.StatusOpen {
			continue
		}
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		if rec, err := b.closeLocked(id, price, reason, at); err == nil {
			out = append(out, rec)
		}
	}
	return out
}

// Capital is the free cash of the account.
func (b *Backtester) Capital() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capital
}

// Position returns a copy of a position by id.
func (b *Backtester) Position(id string) (dm.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[id]
	if !ok {
		return dm.Position{}, false
	}
	return *p, true
}

// OpenPositions returns the open positions in opening order.
func (b *Backtester) OpenPositions() []dm.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []dm.Position
	for _, id := range b.order {
		if p := b.positions[id]; p.Status == dm.StatusOpen {
			out = append(out, *p)
		}
	}
	return out
}

// OpenSymbols returns the distinct symbols with open positions, sorted.
func (b *Backtester) OpenSymbols() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range b.OpenPositions() {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Trades returns a copy of the closed trades in close order.
func (b *Backtester) Trades() []dm.TradeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]dm.TradeRecord(nil), b.trades...)
}

// Report snapshots the account into a BacktestReport.
func (b *Backtester) Report(runID, symbol string) dm.BacktestReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	trades := append([]dm.TradeRecord(nil), b.trades...)
	dd := append([]dm.DrawdownPoint(nil), b.drawdown...)
	return dm.BacktestReport{
		RunID:    runID,
		Symbol:   symbol,
		Trades:   trades,
		Equity:   append([]dm.EquityPoint(nil), b.equity...),
		Drawdown: dd,
		Metrics:  performance.Calculate(b.initial, b.capital, trades, dd),
	}
}
