// Package scaler standardizes feature matrices column by column.
package scaler

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"AdaptiveEnsemble/internal/domain/models"
)

// zeroVarianceTol treats columns whose spread is float noise as constant.
const zeroVarianceTol = 1e-12

// Fit computes per-column mean and population standard deviation of X.
func Fit(X [][]float64) (models.ScalerParams, error) {
	if len(X) == 0 || len(X[0]) == 0 {
		return models.ScalerParams{}, models.Errorf(models.KindNotEnoughData, "scaler fit on empty matrix")
	}
	d := len(X[0])
	p := models.ScalerParams{Mean: make([]float64, d), Std: make([]float64, d)}
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i, row := range X {
			if len(row) != d {
				return models.ScalerParams{}, models.Errorf(models.KindFeatureSchemaMismatch, "row %d has %d columns, want %d", i, len(row), d)
			}
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std <= zeroVarianceTol*math.Max(1, math.Abs(mean)) || math.IsNaN(std) {
			std = 0
		}
		p.Mean[j], p.Std[j] = mean, std
	}
	return p, nil
}

// Apply standardizes X with p; zero-variance columns become 0. X is not modified.
func Apply(p models.ScalerParams, X [][]float64) ([][]float64, error) {
	if !p.Fitted() {
		return nil, models.ErrScalerNotFit
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		r, err := ApplyRow(p, row)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// ApplyRow standardizes a single feature vector.
func ApplyRow(p models.ScalerParams, row []float64) ([]float64, error) {
	if !p.Fitted() {
		return nil, models.ErrScalerNotFit
	}
	if len(row) != p.Dim() {
		return nil, models.Errorf(models.KindFeatureSchemaMismatch, "vector has %d features, scaler has %d", len(row), p.Dim())
	}
	out := make([]float64, len(row))
	for j, v := range row {
		if p.Std[j] == 0 {
			continue
		}
		out[j] = (v - p.Mean[j]) / p.Std[j]
	}
	return out, nil
}
