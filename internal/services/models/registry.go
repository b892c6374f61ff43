package models

import (
	"fmt"

	domsvc "AdaptiveEnsemble/internal/domain/service"
)

// Config selects the available families and their hyperparameters. A disabled
// optional family is treated as absent from the runtime.
type Config struct {
	EnableXGBoost  bool
	EnableLightGBM bool
	EnableCatBoost bool

	Forest           ForestParams
	XGBoost          BoosterParams
	LightGBM         BoosterParams
	CatBoost         BoosterParams
	GradientBoosting BoosterParams
}

// DefaultConfig enables every family with the stock hyperparameters.
func DefaultConfig() Config {
	return Config{
		EnableXGBoost:    true,
		EnableLightGBM:   true,
		EnableCatBoost:   true,
		Forest:           DefaultForestParams(),
		XGBoost:          DefaultXGBoostParams(),
		LightGBM:         DefaultLightGBMParams(),
		CatBoost:         DefaultCatBoostParams(),
		GradientBoosting: DefaultGradientBoostingParams(),
	}
}

// Registry builds fresh, unfitted regressors by family name.
type Registry struct {
	cfg Config
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Required reports whether the family must always be present.
func Required(name string) bool {
	return name == Linear || name == RandomForest
}

// Available reports whether the family can be built in this runtime.
func (r *Registry) Available(name string) bool {
	switch name {
	case Linear, RandomForest, GradientBoosting:
		return true
	case XGBoost:
		return r.cfg.EnableXGBoost
	case LightGBM:
		return r.cfg.EnableLightGBM
	case CatBoost:
		return r.cfg.EnableCatBoost
	default:
		return false
	}
}

// Candidates lists the families scored by the trainer, required ones first.
func (r *Registry) Candidates() []string {
	out := []string{Linear, RandomForest}
	for _, name := range []string{XGBoost, LightGBM, CatBoost} {
		if r.Available(name) {
			out = append(out, name)
		}
	}
	return out
}

// New returns an unfitted regressor of the named family.
func (r *Registry) New(name string) (domsvc.Regressor, error) {
	if !r.Available(name) {
		return nil, fmt.Errorf("model family %q is not available", name)
	}
	switch name {
	case Linear:
		return NewLinearRegression(), nil
	case RandomForest:
		return NewForest(r.cfg.Forest), nil
	case XGBoost:
		return NewXGBoost(r.cfg.XGBoost), nil
	case LightGBM:
		return NewLightGBM(r.cfg.LightGBM), nil
	case CatBoost:
		return NewCatBoost(r.cfg.CatBoost), nil
	case GradientBoosting:
		return NewGradientBoosting(r.cfg.GradientBoosting), nil
	}
	return nil, fmt.Errorf("model family %q is not available", name)
}
