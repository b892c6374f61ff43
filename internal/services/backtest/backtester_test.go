package backtest

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dm "AdaptiveEnsemble/internal/domain/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func stockCosts() Costs { return Costs{FeeRate: 0.001, Slippage: 0.0005} }

func TestLongTakeProfit(t *testing.T) {
	bt := NewBacktester(10000, stockCosts())
	p, err := bt.Open("BTCUSDT", dm.Long, 1000, 100, 0.02, 0.01, t0)
	require.NoError(t, err)

	assert.InDelta(t, 100.05, p.EntryPrice, 1e-9)
	assert.InDelta(t, 102.051, p.TPPrice, 1e-9)
	assert.InDelta(t, 99.0495, p.SLPrice, 1e-9)
	assert.InDelta(t, 999, p.Size, 1e-9)
	assert.InDelta(t, 9000, bt.Capital(), 1e-9)

	closed := bt.Tick(t0.Add(time.Hour), map[string]float64{"BTCUSDT": 103})
	require.Len(t, closed, 1)
	rec := closed[0]

	gross := (102.9485 - 100.05) * (999 / 100.05)
	assert.Equal(t, dm.ReasonTP, rec.CloseReason)
	assert.Equal(t, dm.StatusClosedTP, rec.Status)
	assert.InDelta(t, 102.9485, rec.ExitPrice, 1e-9)
	assert.InDelta(t, gross, rec.GrossPnL, 1e-9)
	assert.InDelta(t, 28.948, rec.GrossPnL, 1e-3)
	assert.InDelta(t, gross*0.001, rec.ExitFee, 1e-9)
	assert.Greater(t, rec.NetPnL, 0.0)
	assert.InDelta(t, 9000+999+rec.NetPnL, bt.Capital(), 1e-9)
	assert.Empty(t, bt.OpenPositions())
}

func TestShortStopLoss(t *testing.T) {
	bt := NewBacktester(10000, stockCosts())
	p, err := bt.Open("BTCUSDT", dm.Short, 1000, 100, 0.02, 0.01, t0)
	require.NoError(t, err)
	assert.InDelta(t, 99.95, p.EntryPrice, 1e-9)
	assert.InDelta(t, 100.9495, p.SLPrice, 1e-9)

	closed := bt.Tick(t0.Add(time.Hour), map[string]float64{"BTCUSDT": 101})
	require.Len(t, closed, 1)
	rec := closed[0]

	assert.Equal(t, dm.ReasonSL, rec.CloseReason)
	assert.InDelta(t, 101.0505, rec.ExitPrice, 1e-9)
	assert.Less(t, rec.NetPnL, 0.0)
	assert.Zero(t, rec.ExitFee)
	assert.InDelta(t, -(101.0505-99.95)*(999/99.95), rec.NetPnL, 1e-9)
	assert.InDelta(t, 9000+999+rec.NetPnL, bt.Capital(), 1e-9)
}

func TestTakeProfitWinsTies(t *testing.T) {
	for _, dir := range []dm.Direction{dm.Long, dm.Short} {
		bt := NewBacktester(10000, Costs{})
		p, err := bt.Open("ETHUSDT", dir, 500, 100, 0, 0, t0)
		require.NoError(t, err)
		require.Equal(t, p.TPPrice, p.SLPrice)

		closed := bt.Tick(t0, map[string]float64{"ETHUSDT": p.TPPrice})
		require.Len(t, closed, 1, string(dir))
		assert.Equal(t, dm.ReasonTP, closed[0].CloseReason, string(dir))
	}
}

func TestTickLeavesUnpricedSymbols(t *testing.T) {
	bt := NewBacktester(10000, stockCosts())
	_, err := bt.Open("BTCUSDT", dm.Long, 1000, 100, 0.02, 0.01, t0)
	require.NoError(t, err)
	_, err = bt.Open("ETHUSDT", dm.Long, 1000, 100, 0.02, 0.01, t0)
	require.NoError(t, err)

	closed := bt.Tick(t0, map[string]float64{"BTCUSDT": 50})
	require.Len(t, closed, 1)
	assert.Equal(t, "BTCUSDT", closed[0].Symbol)
	assert.Equal(t, []string{"ETHUSDT"}, bt.OpenSymbols())
}

type mapFeed map[string]float64

func (f mapFeed) Fetch(_ context.Context, symbol string) (float64, error) {
	if p, ok := f[symbol]; ok {
		return p, nil
	}
	return 0, dm.Errorf(dm.KindPriceUnavailable, "no price for %s", symbol)
}

func TestTickFeed(t *testing.T) {
	bt := NewBacktester(10000, stockCosts())
	_, err := bt.Open("BTCUSDT", dm.Long, 1000, 100, 0.02, 0.01, t0)
	require.NoError(t, err)
	_, err = bt.Open("ETHUSDT", dm.Short, 1000, 100, 0.02, 0.01, t0)
	require.NoError(t, err)

	closed, missing := bt.TickFeed(context.Background(), t0, mapFeed{"BTCUSDT": 110})
	require.Len(t, closed, 1)
	assert.Equal(t, dm.ReasonTP, closed[0].CloseReason)
	assert.Equal(t, []string{"ETHUSDT"}, missing)
	assert.Len(t, bt.OpenPositions(), 1)
}

func TestCloseIsIdempotent(t *testing.T) {
	bt := NewBacktester(10000, stockCosts())
	p, err := bt.Open("BTCUSDT", dm.Long, 1000, 100, 0.02, 0.01, t0)
	require.NoError(t, err)

	_, err = bt.Close(p.ID, 101, dm.ReasonManual, t0)
	require.NoError(t, err)
	capital, trades := bt.Capital(), bt.Trades()

	_, err = bt.Close(p.ID, 150, dm.ReasonManual, t0)
	assert.True(t, errors.Is(err, dm.ErrPositionAlreadyClosed))
	assert.Equal(t, capital, bt.Capital())
	assert.Equal(t, trades, bt.Trades())

	_, err = bt.Close("missing", 100, dm.ReasonManual, t0)
	assert.True(t, errors.Is(err, dm.ErrPositionNotFound))

	got, ok := bt.Position(p.ID)
	require.True(t, ok)
	assert.Equal(t, dm.StatusClosedManual, got.Status)
}

func TestCapitalExhausted(t *testing.T) {
	bt := NewBacktester(1000, stockCosts())
	_, err := bt.Open("BTCUSDT", dm.Long, 1500, 100, 0.02, 0.01, t0)
	assert.True(t, errors.Is(err, dm.ErrCapitalExhausted))
	assert.Equal(t, 1000.0, bt.Capital())
	assert.Empty(t, bt.OpenPositions())
}

func TestOpenDebitsFullNotional(t *testing.T) {
	costs := stockCosts()
	bt := NewBacktester(1000, costs)
	pos, err := bt.Open("BTCUSDT", dm.Long, 100, 100, 0.02, 0.01, t0)
	require.NoError(t, err)
	assert.InDelta(t, 900.0, bt.Capital(), 1e-9)
	assert.InDelta(t, 100*costs.FeeRate, pos.EntryFee, 1e-9)
	assert.InDelta(t, 100-pos.EntryFee, pos.Size, 1e-9)
}

func TestAccountingIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	bt := NewBacktester(10000, stockCosts())
	symbols := []string{"BTCUSDT", "ETHUSDT"}
	price := map[string]float64{"BTCUSDT": 100, "ETHUSDT": 50}

	for step := 0; step < 400; step++ {
		at := t0.Add(time.Duration(step) * time.Minute)
		for _, s := range symbols {
			price[s] *= 1 + rng.NormFloat64()*0.01
		}
		bt.Tick(at, price)
		if rng.Float64() < 0.3 {
			s := symbols[rng.Intn(len(symbols))]
			dir := dm.Long
			if rng.Intn(2) == 0 {
				dir = dm.Short
			}
			_, _ = bt.Open(s, dir, bt.Capital()*0.1, price[s], 0.01+rng.Float64()*0.02, 0.005+rng.Float64()*0.01, at)
		}
	}
	bt.CloseAll(price, dm.ReasonPeriodEnd, t0.Add(time.Hour*24))

	trades := bt.Trades()
	require.NotEmpty(t, trades)
	var gross, net, entryFees, exitFees float64
	for _, tr := range trades {
		gross += tr.GrossPnL
		net += tr.NetPnL
		entryFees += tr.EntryFee
		exitFees += tr.ExitFee
	}
	assert.InDelta(t, 10000+gross-entryFees-exitFees, bt.Capital(), 1e-6)
	assert.InDelta(t, 10000+net-entryFees, bt.Capital(), 1e-6)

	report := bt.Report("run", "MIXED")
	assert.Len(t, report.Equity, len(trades))
	assert.Len(t, report.Drawdown, len(trades))
	assert.InDelta(t, bt.Capital(), report.Metrics.FinalCapital, 1e-9)
	for _, d := range report.Drawdown {
		assert.GreaterOrEqual(t, d.DrawdownPct, 0.0)
	}
}
