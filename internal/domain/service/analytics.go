package service

import (
	"context"

	"AdaptiveEnsemble/internal/domain/models"
)

// Regressor is the uniform contract over the supported model families.
type Regressor interface {
	Name() string
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// Importancer is implemented by regressors that expose per-feature importances.
// A nil slice means the model has none.
type Importancer interface {
	FeatureImportances() []float64
}

// RegimeDetector classifies the recent window of a frame.
type RegimeDetector interface {
	Detect(frame models.Frame) models.Regime
}

// Policy decides whether to trade the next bar given the trailing training slice.
// A nil intent means no trade.
type Policy interface {
	Decide(ctx context.Context, train models.Frame, row models.Candle) (*models.TradeIntent, error)
}

// FoldPolicy is a Policy that refits when a walk-forward run moves to the next
// fold. BeginFold receives the fold's training window before its first bar.
type FoldPolicy interface {
	Policy
	BeginFold(ctx context.Context, train models.Frame) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, train models.Frame, row models.Candle) (*models.TradeIntent, error)

func (f PolicyFunc) Decide(ctx context.Context, train models.Frame, row models.Candle) (*models.TradeIntent, error) {
	return f(ctx, train, row)
}
