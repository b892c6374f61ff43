package training

import (
	"encoding/json"
	"fmt"
	"time"

	dm "AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/features"
	"AdaptiveEnsemble/internal/services/models"
)

// BundleFormatVersion is bumped whenever the serialized layout changes.
const BundleFormatVersion = 1

// Bundle is everything prediction needs from one training run. It is treated as
// immutable once returned by the trainer.
type Bundle struct {
	ID             string
	Symbol         string
	TrainedAt      time.Time
	HorizonMinutes int
	FuturePeriods  int
	Features       []string
	Weights        []float64 // penalty weights aligned with Features
	Scaler         dm.ScalerParams
	Selected       []string // best first
	Models         map[string]domsvc.Regressor
	Ensemble       domsvc.Regressor // nil with a single selected model
	CVScores       map[string]float64
	Regime         dm.Regime
	Samples        int
}

// Individuals returns the selected models in selection order.
func (b *Bundle) Individuals() []domsvc.Regressor {
	out := make([]domsvc.Regressor, 0, len(b.Selected))
	for _, name := range b.Selected {
		if m, ok := b.Models[name]; ok {
			out = append(out, m)
		}
	}
	return out
}

type bundleBlob struct {
	Version        int                        `json:"version"`
	FeatureSchema  int                        `json:"feature_schema"`
	ID             string                     `json:"id"`
	Symbol         string                     `json:"symbol"`
	TrainedAt      time.Time                  `json:"trained_at"`
	HorizonMinutes int                        `json:"horizon_minutes"`
	FuturePeriods  int                        `json:"future_periods"`
	Features       []string                   `json:"features"`
	Weights        []float64                  `json:"weights"`
	Scaler         dm.ScalerParams            `json:"scaler"`
	Selected       []string                   `json:"selected"`
	Artifacts      map[string]models.Artifact `json:"artifacts"`
	Ensemble       *models.Artifact           `json:"ensemble,omitempty"`
	CVScores       map[string]float64         `json:"cv_scores"`
	Regime         dm.Regime                  `json:"regime"`
	Samples        int                        `json:"samples"`
}

// MarshalBundle encodes b as a versioned JSON blob.
func MarshalBundle(b *Bundle) ([]byte, error) {
	blob := bundleBlob{
		Version:        BundleFormatVersion,
		FeatureSchema:  features.SchemaVersion,
		ID:             b.ID,
		Symbol:         b.Symbol,
		TrainedAt:      b.TrainedAt,
		HorizonMinutes: b.HorizonMinutes,
		FuturePeriods:  b.FuturePeriods,
		Features:       b.Features,
		Weights:        b.Weights,
		Scaler:         b.Scaler,
		Selected:       b.Selected,
		Artifacts:      make(map[string]models.Artifact, len(b.Models)),
		CVScores:       b.CVScores,
		Regime:         b.Regime,
		Samples:        b.Samples,
	}
	for name, m := range b.Models {
		a, err := models.Encode(m)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle: %w", err)
		}
		blob.Artifacts[name] = a
	}
	if b.Ensemble != nil {
		a, err := models.Encode(b.Ensemble)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle: %w", err)
		}
		blob.Ensemble = &a
	}
	return json.Marshal(blob)
}

// UnmarshalBundle decodes a blob written by MarshalBundle. Blobs of another
// format or feature schema version fail with BundleVersionMismatch.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	var head struct {
		Version       int `json:"version"`
		FeatureSchema int `json:"feature_schema"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	if head.Version != BundleFormatVersion {
		return nil, dm.Errorf(dm.KindBundleVersionMismatch, "bundle format %d, expected %d", head.Version, BundleFormatVersion)
	}
	if head.FeatureSchema != features.SchemaVersion {
		return nil, dm.Errorf(dm.KindBundleVersionMismatch, "feature schema %d, expected %d", head.FeatureSchema, features.SchemaVersion)
	}

	var blob bundleBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	b := &Bundle{
		ID:             blob.ID,
		Symbol:         blob.Symbol,
		TrainedAt:      blob.TrainedAt,
		HorizonMinutes: blob.HorizonMinutes,
		FuturePeriods:  blob.FuturePeriods,
		Features:       blob.Features,
		Weights:        blob.Weights,
		Scaler:         blob.Scaler,
		Selected:       blob.Selected,
		Models:         make(map[string]domsvc.Regressor, len(blob.Artifacts)),
		CVScores:       blob.CVScores,
		Regime:         blob.Regime,
		Samples:        blob.Samples,
	}
	for name, a := range blob.Artifacts {
		m, err := models.Decode(a)
		if err != nil {
			return nil, fmt.Errorf("unmarshal bundle: %w", err)
		}
		b.Models[name] = m
	}
	if blob.Ensemble != nil {
		m, err := models.Decode(*blob.Ensemble)
		if err != nil {
			return nil, fmt.Errorf("unmarshal bundle: %w", err)
		}
		b.Ensemble = m
	}
	return b, nil
}
