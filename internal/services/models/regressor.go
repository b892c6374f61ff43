// Package models implements the regressor families behind the uniform Regressor contract.
package models

import (
	"errors"
	"fmt"

	dm "AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
)

// Family names. They double as artifact kinds and map keys in a bundle.
const (
	Linear           = "linear"
	RandomForest     = "random_forest"
	XGBoost          = "xgboost"
	LightGBM         = "lightgbm"
	CatBoost         = "catboost"
	GradientBoosting = "gradient_boosting"
	Voting           = "voting"
)

// ErrNotFitted is returned by Predict on a model that was never fit.
var ErrNotFitted = errors.New("model not fitted")

// checkFit validates a training set and returns its width.
func checkFit(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, dm.Errorf(dm.KindNotEnoughData, "fit on empty matrix")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("fit: %d rows but %d targets", len(X), len(y))
	}
	d := len(X[0])
	if d == 0 {
		return 0, dm.Errorf(dm.KindNotEnoughData, "fit on matrix without columns")
	}
	for i, row := range X {
		if len(row) != d {
			return 0, dm.Errorf(dm.KindFeatureSchemaMismatch, "row %d has %d columns, want %d", i, len(row), d)
		}
	}
	return d, nil
}

// checkPredict validates a prediction matrix against the fitted width.
func checkPredict(X [][]float64, dim int) error {
	if dim == 0 {
		return ErrNotFitted
	}
	for i, row := range X {
		if len(row) != dim {
			return dm.Errorf(dm.KindFeatureSchemaMismatch, "row %d has %d columns, model expects %d", i, len(row), dim)
		}
	}
	return nil
}

func normalize(v []float64) []float64 {
	total := 0.0
	for _, x := range v {
		total += x
	}
	out := make([]float64, len(v))
	if total <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}

// ImportancesOf returns the feature importances of r, or nil when it exposes none.
func ImportancesOf(r domsvc.Regressor) []float64 {
	if imp, ok := r.(domsvc.Importancer); ok {
		return imp.FeatureImportances()
	}
	return nil
}
