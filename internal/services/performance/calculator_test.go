package performance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"AdaptiveEnsemble/internal/domain/models"
)

func trade(net, ret float64, held time.Duration) models.TradeRecord {
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.TradeRecord{
		Position:  models.Position{OpenedAt: opened},
		NetPnL:    net,
		ReturnPct: ret,
		ClosedAt:  opened.Add(held),
	}
}

func TestCalculate(t *testing.T) {
	trades := []models.TradeRecord{
		trade(30, 3, 2*time.Hour),
		trade(-10, -1, time.Hour),
		trade(10, 1, 3*time.Hour),
		trade(-20, -2, 2*time.Hour),
	}
	dd := []models.DrawdownPoint{{DrawdownPct: 0}, {DrawdownPct: 1.5}, {DrawdownPct: 0.4}}

	m := Calculate(1000, 1010, trades, dd)

	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.InDelta(t, 50.0, m.WinRate, 1e-9)
	assert.InDelta(t, 10.0, m.TotalPnL, 1e-9)
	assert.InDelta(t, 1.0, m.TotalReturnPct, 1e-9)
	assert.InDelta(t, 20.0, m.AvgWin, 1e-9)
	assert.InDelta(t, -15.0, m.AvgLoss, 1e-9)
	assert.InDelta(t, 40.0/30.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 1.5, m.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, 2.0, m.AvgDurationHours, 1e-9)
	assert.Equal(t, 1010.0, m.FinalCapital)
	// returns 3,-1,1,-2: mean 0.25, population sd sqrt(3.6875)
	assert.InDelta(t, 0.25/math.Sqrt(3.6875), m.Sharpe, 1e-9)
}

func TestCalculateDegenerate(t *testing.T) {
	empty := Calculate(1000, 1000, nil, nil)
	assert.Zero(t, empty.TotalTrades)
	assert.Zero(t, empty.WinRate)
	assert.Zero(t, empty.ProfitFactor)
	assert.Equal(t, 1000.0, empty.FinalCapital)

	onlyWins := Calculate(1000, 1020, []models.TradeRecord{trade(10, 1, 0), trade(10, 1, 0)}, nil)
	assert.Zero(t, onlyWins.ProfitFactor)
	assert.Zero(t, onlyWins.Sharpe)
	assert.InDelta(t, 100.0, onlyWins.WinRate, 1e-9)
}
