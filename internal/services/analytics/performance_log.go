package analytics

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"AdaptiveEnsemble/internal/domain/models"
)

const (
	DefaultLogCapacity    = 50
	DefaultMinSamples     = 3
	DefaultPreferredModel = "random_forest"

	recentWindow = 10
)

// ring is a bounded FIFO of scores.
type ring struct {
	buf  []float64
	head int
	n    int
}

func newRing(capacity int) *ring { return &ring{buf: make([]float64, capacity)} }

func (r *ring) push(v float64) {
	r.buf[(r.head+r.n)%len(r.buf)] = v
	if r.n < len(r.buf) {
		r.n++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

// values returns the scores oldest first.
func (r *ring) values() []float64 {
	out := make([]float64, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// PerformanceLog keeps, per regime and model, a bounded ring of recent accuracy
// scores and derives the preferred model of each regime. Safe for concurrent use.
type PerformanceLog struct {
	mu         sync.RWMutex
	capacity   int
	minSamples int
	fallback   string
	rings      map[models.Regime]map[string]*ring
}

// LogSnapshot is the serializable content of a PerformanceLog.
type LogSnapshot map[models.Regime]map[string][]float64

func NewPerformanceLog(capacity, minSamples int) *PerformanceLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &PerformanceLog{
		capacity:   capacity,
		minSamples: minSamples,
		fallback:   DefaultPreferredModel,
		rings:      map[models.Regime]map[string]*ring{},
	}
}

// Record appends a score for model under regime, evicting the oldest at capacity.
func (l *PerformanceLog) Record(regime models.Regime, model string, score float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byModel, ok := l.rings[regime]
	if !ok {
		byModel = map[string]*ring{}
		l.rings[regime] = byModel
	}
	r, ok := byModel[model]
	if !ok {
		r = newRing(l.capacity)
		byModel[model] = r
	}
	r.push(score)
}

// Scores returns the scores of model under regime, oldest first.
func (l *PerformanceLog) Scores(regime models.Regime, model string) []float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if r, ok := l.rings[regime][model]; ok {
		return r.values()
	}
	return nil
}

// Preferred returns the model with the highest mean over its last ten scores among
// models with enough samples. Ties go to the higher most recent score, then to the
// lexically smaller name. Without candidates the default model is returned.
func (l *PerformanceLog) Preferred(regime models.Regime) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	type cand struct {
		name   string
		mean   float64
		recent float64
	}
	var cands []cand
	for name, r := range l.rings[regime] {
		if r.n < l.minSamples {
			continue
		}
		vals := r.values()
		if len(vals) > recentWindow {
			vals = vals[len(vals)-recentWindow:]
		}
		cands = append(cands, cand{name: name, mean: stat.Mean(vals, nil), recent: vals[len(vals)-1]})
	}
	if len(cands) == 0 {
		return l.fallback
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.mean != b.mean {
			return a.mean > b.mean
		}
		if a.recent != b.recent {
			return a.recent > b.recent
		}
		return a.name < b.name
	})
	return cands[0].name
}

// Snapshot copies the log content.
func (l *PerformanceLog) Snapshot() LogSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := LogSnapshot{}
	for regime, byModel := range l.rings {
		out[regime] = map[string][]float64{}
		for name, r := range byModel {
			out[regime][name] = r.values()
		}
	}
	return out
}

// Restore replaces the log content with snap, keeping at most capacity scores per ring.
func (l *PerformanceLog) Restore(snap LogSnapshot) {
	l.mu.Lock()
	l.rings = map[models.Regime]map[string]*ring{}
	l.mu.Unlock()
	for regime, byModel := range snap {
		for name, scores := range byModel {
			for _, s := range scores {
				l.Record(regime, name, s)
			}
		}
	}
}
