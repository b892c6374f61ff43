package performance

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"AdaptiveEnsemble/internal/domain/models"
)

// Calculate derives the summary metrics of a run from its closed trades and
// drawdown curve. It is pure and deterministic.
func Calculate(initialCapital, finalCapital float64, trades []models.TradeRecord, drawdown []models.DrawdownPoint) models.Metrics {
	m := models.Metrics{
		TotalTrades:    len(trades),
		InitialCapital: initialCapital,
		FinalCapital:   finalCapital,
		MaxDrawdownPct: MaxDrawdown(drawdown),
	}
	if initialCapital > 0 {
		m.TotalReturnPct = (finalCapital - initialCapital) / initialCapital * 100
	}
	if len(trades) == 0 {
		return m
	}

	var sumWin, sumLoss, hours float64
	returns := make([]float64, len(trades))
	for i, t := range trades {
		m.TotalPnL += t.NetPnL
		switch {
		case t.NetPnL > 0:
			m.WinningTrades++
			sumWin += t.NetPnL
		case t.NetPnL < 0:
			m.LosingTrades++
			sumLoss += t.NetPnL
		}
		returns[i] = t.ReturnPct
		hours += t.Duration().Hours()
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	if m.WinningTrades > 0 {
		m.AvgWin = sumWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = sumLoss / float64(m.LosingTrades)
	}
	m.ProfitFactor = ProfitFactor(m.AvgWin, m.WinningTrades, m.AvgLoss, m.LosingTrades)
	m.Sharpe = Sharpe(returns)
	m.AvgDurationHours = hours / float64(len(trades))
	return m
}

// ProfitFactor is (avgWin*wins) / |avgLoss*losses|, or 0 when either side is empty.
func ProfitFactor(avgWin float64, wins int, avgLoss float64, losses int) float64 {
	if wins == 0 || losses == 0 || avgLoss == 0 {
		return 0
	}
	return (avgWin * float64(wins)) / math.Abs(avgLoss*float64(losses))
}

// Sharpe is the per-trade ratio mean/stdev of returns using the population
// deviation. A flat series yields 0.
func Sharpe(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean, sd := stat.PopMeanStdDev(returns, nil)
	if sd == 0 {
		return 0
	}
	return mean / sd
}

// MaxDrawdown returns the largest drawdown percentage of the curve.
func MaxDrawdown(curve []models.DrawdownPoint) float64 {
	out := 0.0
	for _, p := range curve {
		if p.DrawdownPct > out {
			out = p.DrawdownPct
		}
	}
	return out
}
