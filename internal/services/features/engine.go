package features

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"AdaptiveEnsemble/internal/domain/models"
	applogger "AdaptiveEnsemble/pkg/logger"
)

const (
	// MinBars is the shortest frame the engine accepts.
	MinBars = 50
	// SchemaVersion changes whenever a feature is added, removed or redefined.
	SchemaVersion = 1

	emaFastSpan = 8
	emaSlowSpan = 21
	rsiWindow   = 14
	bbPeriod    = 20
	bbSigma     = 2.0
)

var (
	lagOffsets     = []int{1, 2, 3, 5, 10, 20}
	rollingWindows = []int{5, 10, 15, 20, 30, 50}
	changeOffsets  = []int{1, 5, 10}
)

// Table is a column-major feature matrix aligned 1:1 with the bars of a frame.
type Table struct {
	Names      []string
	Timestamps []time.Time
	Closes     []float64
	cols       map[string][]float64
}

func (t *Table) Len() int { return len(t.Timestamps) }

// Column returns the values of a feature.
func (t *Table) Column(name string) ([]float64, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// Row extracts the values of names at bar i, in the given order.
func (t *Table) Row(i int, names []string) ([]float64, error) {
	if i < 0 || i >= t.Len() {
		return nil, fmt.Errorf("row %d out of range [0,%d)", i, t.Len())
	}
	out := make([]float64, len(names))
	for j, name := range names {
		c, ok := t.cols[name]
		if !ok {
			return nil, models.Errorf(models.KindFeatureSchemaMismatch, "feature %q not produced", name)
		}
		out[j] = c[i]
	}
	return out, nil
}

// Matrix extracts rows in order for the named columns.
func (t *Table) Matrix(names []string, rows []int) ([][]float64, error) {
	out := make([][]float64, 0, len(rows))
	for _, i := range rows {
		r, err := t.Row(i, names)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// MissingRatio is the share of undefined values in a column.
func (t *Table) MissingRatio(name string) float64 {
	c, ok := t.cols[name]
	if !ok || len(c) == 0 {
		return 1
	}
	miss := 0
	for _, v := range c {
		if math.IsNaN(v) {
			miss++
		}
	}
	return float64(miss) / float64(len(c))
}

// Engine computes the causal feature set from an OHLCV frame.
type Engine struct {
	logger *applogger.Logger
}

func NewEngine() *Engine {
	return &Engine{logger: applogger.NewNop()}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(l *applogger.Logger) {
	if l != nil {
		e.logger = l
	}
}

// Names returns the feature schema in column order.
func Names() []string {
	b := newTableBuilder(0)
	b.build(nil, nil, nil, nil, nil)
	return b.names
}

type tableBuilder struct {
	n       int
	names   []string
	cols    map[string][]float64
	warmups map[string]int
}

func newTableBuilder(n int) *tableBuilder {
	return &tableBuilder{n: n, cols: map[string][]float64{}, warmups: map[string]int{}}
}

func (b *tableBuilder) add(name string, warmup int, values []float64) {
	b.names = append(b.names, name)
	b.cols[name] = values
	b.warmups[name] = warmup
}

func (b *tableBuilder) build(open, high, low, close, volume []float64) {
	n := len(close)
	emaFast := ema(close, emaFastSpan)
	emaSlow := ema(close, emaSlowSpan)
	b.add("ema_fast", emaFastSpan-1, emaFast)
	b.add("ema_slow", emaSlowSpan-1, emaSlow)
	for _, span := range []int{9, 21, 50, 200} {
		b.add("ema_"+strconv.Itoa(span), span-1, ema(close, span))
	}

	r := rsi(close, rsiWindow)
	b.add("rsi", rsiWindow, r)
	b.add("rsi_7", 7, rsi(close, 7))
	b.add("rsi_21", 21, rsi(close, 21))
	b.add("rsi_bin", rsiWindow, rsiBin(r))

	macd := subSeries(ema(close, 12), ema(close, 26))
	signal := ema(macd, 9)
	b.add("macd", 25, macd)
	b.add("macd_signal", 33, signal)
	b.add("macd_histogram", 33, subSeries(macd, signal))

	mid := rollingMean(close, bbPeriod)
	sd := rollingStd(close, bbPeriod, 0)
	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := range mid {
		upper[i] = mid[i] + bbSigma*sd[i]
		lower[i] = mid[i] - bbSigma*sd[i]
	}
	b.add("bb_upper", bbPeriod-1, upper)
	b.add("bb_lower", bbPeriod-1, lower)
	b.add("bb_middle", bbPeriod-1, mid)
	b.add("bb_width", bbPeriod-1, divSeries(subSeries(upper, lower), mid))
	b.add("bb_position", bbPeriod-1, divSeries(subSeries(close, lower), subSeries(upper, lower)))

	b.add("atr_14", 13, atr(high, low, close, 14))
	b.add("obv", 0, obv(close, volume))

	volSMA := rollingMean(volume, 20)
	b.add("volume_sma", 19, volSMA)
	b.add("volume_ratio", 19, divSeries(volume, volSMA))

	for _, k := range changeOffsets {
		b.add("price_change_"+strconv.Itoa(k), k, pctChange(close, k))
	}
	b.add("high_low_spread", 0, divSeries(subSeries(high, low), close))
	b.add("close_open_spread", 0, divSeries(subSeries(close, open), open))

	b.add("rolling_volatility_10", 9, rollingStd(close, 10, 1))
	b.add("rolling_volatility_20", 19, rollingStd(close, 20, 1))
	b.add("momentum_5", 5, pctChange(close, 5))
	b.add("momentum_10", 10, pctChange(close, 10))

	b.add("close_zscore", 19, divSeries(subSeries(close, rollingMean(close, 20)), rollingStd(close, 20, 1)))
	b.add("volume_zscore", 19, divSeries(subSeries(volume, volSMA), rollingStd(volume, 20, 1)))

	for _, k := range lagOffsets {
		b.add("close_lag_"+strconv.Itoa(k), k, shift(close, k))
	}
	b.add("rsi_lag_1", rsiWindow+1, shift(r, 1))

	b.add("ema_fast_slow_ratio", emaSlowSpan-1, divSeries(emaFast, emaSlow))
	b.add("ema_fast_slow_diff", emaSlowSpan-1, subSeries(emaFast, emaSlow))

	for _, w := range rollingWindows {
		s := strconv.Itoa(w)
		b.add("rolling_mean_"+s, w-1, rollingMean(close, w))
		b.add("rolling_std_"+s, w-1, rollingStd(close, w, 1))
		b.add("rolling_volume_"+s, w-1, rollingMean(volume, w))
	}

	lr := logReturns(close)
	b.add("log_return_1", 1, lr)
	b.add("realized_vol_20", 20, rollingStd(lr, 20, 1))
}

// Compute derives every feature for every bar of frame. The frame is expected to
// be cleaned; values are forward-filled only, so warm-up rows stay undefined.
func (e *Engine) Compute(frame models.Frame) (*Table, error) {
	n := frame.Len()
	if n < MinBars {
		return nil, models.Errorf(models.KindInsufficientHistory, "feature engine needs %d bars, got %d", MinBars, n)
	}
	b := newTableBuilder(n)
	b.build(frame.Opens(), frame.Highs(), frame.Lows(), frame.Closes(), frame.Volumes())

	for _, name := range b.names {
		col := b.cols[name]
		for i, v := range col {
			if math.IsInf(v, 0) {
				return nil, models.Errorf(models.KindFeatureComputationFailed,
					"feature %q is not finite at bar %d (%s)", name, i, frame.Bars[i].Timestamp.Format(time.RFC3339))
			}
		}
		forwardFill(col)
		if n > b.warmups[name] && math.IsNaN(col[n-1]) {
			return nil, models.Errorf(models.KindFeatureComputationFailed,
				"feature %q undefined after %d warm-up bars", name, b.warmups[name])
		}
	}

	ts := make([]time.Time, n)
	for i, bar := range frame.Bars {
		ts[i] = bar.Timestamp
	}
	e.logger.Debug("features computed",
		applogger.String("symbol", frame.Symbol),
		applogger.Int("bars", n),
		applogger.Int("features", len(b.names)),
	)
	return &Table{Names: b.names, Timestamps: ts, Closes: frame.Closes(), cols: b.cols}, nil
}
