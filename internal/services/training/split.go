package training

import (
	"math"
	"sort"
)

// Fold is a pair of half-open row ranges; every validation row is later than
// every training row.
type Fold struct {
	TrainStart, TrainEnd int
	ValStart, ValEnd     int
}

// TimeSeriesSplit returns k expanding-window folds over n ordered rows. The
// validation size is n/(k+1); the first training window covers the remainder.
func TimeSeriesSplit(n, k int) []Fold {
	if k < 1 || n < k+1 {
		return nil
	}
	size := n / (k + 1)
	folds := make([]Fold, 0, k)
	for i := 0; i < k; i++ {
		valStart := n - (k-i)*size
		folds = append(folds, Fold{TrainStart: 0, TrainEnd: valStart, ValStart: valStart, ValEnd: valStart + size})
	}
	return folds
}

// quantile interpolates linearly between the closest ranks of sorted, with
// position (len-1)*p.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := float64(len(sorted)-1) * p
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// iqrMask marks values inside [Q1 - 1.5 IQR, Q3 + 1.5 IQR].
func iqrMask(values []float64) []bool {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	mask := make([]bool, len(values))
	for i, v := range values {
		mask[i] = v >= lo && v <= hi
	}
	return mask
}
