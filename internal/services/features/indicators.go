package features

import "math"

// Series helpers. Every helper is causal: out[i] depends only on x[0..i].
// Undefined values are NaN.

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// safeDiv propagates NaN and maps a zero denominator to 0.
func safeDiv(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if b == 0 {
		return 0
	}
	return a / b
}

func divSeries(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = safeDiv(a[i], b[i])
	}
	return out
}

func subSeries(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// shift lags x by k bars.
func shift(x []float64, k int) []float64 {
	out := nanSeries(len(x))
	for i := k; i < len(x); i++ {
		out[i] = x[i-k]
	}
	return out
}

// pctChange is x[i]/x[i-k] - 1.
func pctChange(x []float64, k int) []float64 {
	out := nanSeries(len(x))
	for i := k; i < len(x); i++ {
		if x[i-k] == 0 {
			out[i] = 0
			continue
		}
		out[i] = x[i]/x[i-k] - 1
	}
	return out
}

// rollingMean is the simple moving average over a full window.
func rollingMean(x []float64, w int) []float64 {
	out := nanSeries(len(x))
	if w <= 0 {
		return out
	}
	sum := 0.0
	bad := 0
	for i := range x {
		if math.IsNaN(x[i]) {
			bad++
		} else {
			sum += x[i]
		}
		if i >= w {
			if math.IsNaN(x[i-w]) {
				bad--
			} else {
				sum -= x[i-w]
			}
		}
		if i >= w-1 && bad == 0 {
			out[i] = sum / float64(w)
		}
	}
	return out
}

// rollingStd is the windowed standard deviation with ddof degrees of freedom removed.
// It is computed per window to keep drift from running sums out of constant columns.
func rollingStd(x []float64, w, ddof int) []float64 {
	out := nanSeries(len(x))
	if w <= ddof {
		return out
	}
	for i := w - 1; i < len(x); i++ {
		win := x[i-w+1 : i+1]
		mean := 0.0
		ok := true
		for _, v := range win {
			if math.IsNaN(v) {
				ok = false
				break
			}
			mean += v
		}
		if !ok {
			continue
		}
		mean /= float64(w)
		ss := 0.0
		for _, v := range win {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(w-ddof))
	}
	return out
}

// ewm is an exponentially weighted mean without bias adjustment, started at the
// first defined value and reported once minPeriods defined values were seen.
func ewm(x []float64, alpha float64, minPeriods int) []float64 {
	out := nanSeries(len(x))
	prev := math.NaN()
	seen := 0
	for i, v := range x {
		if math.IsNaN(v) {
			if seen >= minPeriods && !math.IsNaN(prev) {
				out[i] = prev
			}
			continue
		}
		if math.IsNaN(prev) {
			prev = v
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		seen++
		if seen >= minPeriods {
			out[i] = prev
		}
	}
	return out
}

// ema is the span-parameterized exponential moving average.
func ema(x []float64, span int) []float64 {
	return ewm(x, 2/(float64(span)+1), span)
}

// rsi is Wilder's relative strength index.
func rsi(close []float64, window int) []float64 {
	n := len(close)
	up := nanSeries(n)
	down := nanSeries(n)
	for i := 1; i < n; i++ {
		d := close[i] - close[i-1]
		up[i], down[i] = 0, 0
		if d > 0 {
			up[i] = d
		} else if d < 0 {
			down[i] = -d
		}
	}
	alpha := 1 / float64(window)
	eu := ewm(up, alpha, window)
	ed := ewm(down, alpha, window)
	out := nanSeries(n)
	for i := range out {
		if math.IsNaN(eu[i]) || math.IsNaN(ed[i]) {
			continue
		}
		if ed[i] == 0 {
			out[i] = 100
			continue
		}
		out[i] = 100 - 100/(1+eu[i]/ed[i])
	}
	return out
}

// rsiBin buckets RSI into [0,30) -> 0, [30,70) -> 1, [70,100] -> 2.
func rsiBin(r []float64) []float64 {
	out := nanSeries(len(r))
	for i, v := range r {
		switch {
		case math.IsNaN(v):
		case v < 30:
			out[i] = 0
		case v < 70:
			out[i] = 1
		default:
			out[i] = 2
		}
	}
	return out
}

// atr is the Wilder-smoothed average true range.
func atr(high, low, close []float64, window int) []float64 {
	n := len(close)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := high[i] - low[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		tr[i] = math.Max(hl, math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
	}
	out := nanSeries(n)
	if n < window {
		return out
	}
	sum := 0.0
	for i := 0; i < window; i++ {
		sum += tr[i]
	}
	out[window-1] = sum / float64(window)
	for i := window; i < n; i++ {
		out[i] = (out[i-1]*float64(window-1) + tr[i]) / float64(window)
	}
	return out
}

// obv is on-balance volume; a close below the previous close subtracts volume.
func obv(close, volume []float64) []float64 {
	out := make([]float64, len(close))
	acc := 0.0
	for i := range close {
		if i > 0 && close[i] < close[i-1] {
			acc -= volume[i]
		} else {
			acc += volume[i]
		}
		out[i] = acc
	}
	return out
}

// logReturns aligns r[i] = ln(x[i]/x[i-1]) with the bar index; r[0] is NaN.
func logReturns(x []float64) []float64 {
	out := nanSeries(len(x))
	for i := 1; i < len(x); i++ {
		if x[i] <= 0 || x[i-1] <= 0 {
			out[i] = 0
			continue
		}
		out[i] = math.Log(x[i] / x[i-1])
	}
	return out
}

// forwardFill replaces NaN with the last defined value; leading NaNs stay.
func forwardFill(x []float64) {
	last := math.NaN()
	for i, v := range x {
		if math.IsNaN(v) {
			x[i] = last
			continue
		}
		last = v
	}
}
