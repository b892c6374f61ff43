package models

import "time"

// Direction is the side of a prediction or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

func (d Direction) Valid() bool { return d == Long || d == Short }

// DirectionOf returns LONG for strictly positive values and SHORT otherwise.
func DirectionOf(v float64) Direction {
	if v > 0 {
		return Long
	}
	return Short
}

// Prediction is the directional forecast produced for the latest bar of a frame.
type Prediction struct {
	Symbol         string              `json:"symbol"`
	Timestamp      time.Time           `json:"timestamp"`
	HorizonMinutes int                 `json:"horizon_minutes"`
	Direction      Direction           `json:"direction"`
	Value          float64             `json:"value"` // signed percent change over the horizon
	Confidence     float64             `json:"confidence"`
	AgreementPct   float64             `json:"agreement_pct"`
	Regime         Regime              `json:"regime"`
	PreferredModel string              `json:"preferred_model"`
	Individual     map[string]float64  `json:"individual"`
	Ensemble       bool                `json:"ensemble"`
	IsFallback     bool                `json:"is_fallback"`
	BundleID       string              `json:"bundle_id,omitempty"`
	Importances    []FeatureImportance `json:"importances,omitempty"`
}

// FeatureImportance is one entry of the derived top-k importance view.
type FeatureImportance struct {
	Model      string  `json:"model"`
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}
