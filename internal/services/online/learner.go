// Package online keeps a bounded buffer of realized samples and refits a small
// booster on it between batch training runs.
package online

import (
	"sync"

	dm "AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/models"
	"AdaptiveEnsemble/internal/services/scaler"
	applogger "AdaptiveEnsemble/pkg/logger"
)

const (
	DefaultCapacity = 1000
	MinSamples      = 10
	RecentSamples   = 50
)

// Sample is one (feature vector, realized target) pair.
type Sample struct {
	Features []float64 `json:"features"`
	Target   float64   `json:"target"`
}

// Learner owns the online buffer, its scaler and the incrementally refit model.
// All methods are safe for concurrent use.
type Learner struct {
	mu       sync.Mutex
	capacity int
	buf      []Sample
	params   dm.ScalerParams
	model    domsvc.Regressor
	fitted   bool
	newModel func() domsvc.Regressor
	logger   *applogger.Logger
}

// NewLearner creates a learner with the given capacity. newModel builds the
// regressor refit on every Refit; nil selects the default gradient booster.
func NewLearner(capacity int, newModel func() domsvc.Regressor) *Learner {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if newModel == nil {
		newModel = func() domsvc.Regressor {
			return models.NewGradientBoosting(models.DefaultGradientBoostingParams())
		}
	}
	return &Learner{capacity: capacity, newModel: newModel, logger: applogger.NewNop()}
}

// SetLogger sets the logger for the learner.
func (l *Learner) SetLogger(lg *applogger.Logger) {
	if lg != nil {
		l.logger = lg
	}
}

// Add appends a sample, evicting the oldest at capacity. A vector whose width
// differs from the current schema clears the buffer and the fitted state first.
func (l *Learner) Add(features []float64, target float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w := l.schemaWidth(); w > 0 && w != len(features) {
		l.logger.Info("online schema changed, buffer reset",
			applogger.Int("old_width", w),
			applogger.Int("new_width", len(features)),
		)
		l.resetLocked()
	}
	s := Sample{Features: append([]float64(nil), features...), Target: target}
	if len(l.buf) >= l.capacity {
		l.buf = append(l.buf[1:], s)
		return
	}
	l.buf = append(l.buf, s)
}

func (l *Learner) schemaWidth() int {
	if l.params.Fitted() {
		return l.params.Dim()
	}
	if len(l.buf) > 0 {
		return len(l.buf[0].Features)
	}
	return 0
}

// Refit fits the model on the buffer. The first success fits the scaler on the
// whole buffer; later calls reuse that scaler and fit on the newest samples.
// On failure the previous state is kept and false is returned.
func (l *Learner) Refit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buf) < MinSamples {
		return false
	}
	params := l.params
	window := l.buf
	if l.fitted {
		if len(window) > RecentSamples {
			window = window[len(window)-RecentSamples:]
		}
	}
	X := make([][]float64, len(window))
	y := make([]float64, len(window))
	for i, s := range window {
		X[i], y[i] = s.Features, s.Target
	}
	if !l.fitted {
		p, err := scaler.Fit(X)
		if err != nil {
			l.logger.Debug("online scaler fit failed", applogger.Error(err))
			return false
		}
		params = p
	}
	Xs, err := scaler.Apply(params, X)
	if err != nil {
		l.logger.Debug("online scaling failed", applogger.Error(err))
		return false
	}
	m := l.newModel()
	if err := m.Fit(Xs, y); err != nil {
		l.logger.Debug("online refit failed", applogger.Error(err))
		return false
	}
	l.params, l.model, l.fitted = params, m, true
	l.logger.Debug("online model refit", applogger.Int("samples", len(window)))
	return true
}

// Predict returns the online model output for a raw feature vector; ok is false
// before the first successful refit or on a width mismatch.
func (l *Learner) Predict(features []float64) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fitted {
		return 0, false
	}
	row, err := scaler.ApplyRow(l.params, features)
	if err != nil {
		return 0, false
	}
	out, err := l.model.Predict([][]float64{row})
	if err != nil {
		return 0, false
	}
	return out[0], true
}

// Len is the number of buffered samples.
func (l *Learner) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// Fitted reports whether a model is available.
func (l *Learner) Fitted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fitted
}

// Samples copies the buffer, oldest first.
func (l *Learner) Samples() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Sample(nil), l.buf...)
}

// Reset clears the buffer and the fitted state.
func (l *Learner) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

func (l *Learner) resetLocked() {
	l.buf = nil
	l.params = dm.ScalerParams{}
	l.model = nil
	l.fitted = false
}
