package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	trainingDuration prometheus.Histogram
	trainingSamples  prometheus.Gauge
	trainedModels    prometheus.Gauge
	predictions      *prometheus.CounterVec
	confidence       prometheus.Histogram
	backtestTrades   prometheus.Gauge
	backtestCapital  prometheus.Gauge
	backtestDrawdown prometheus.Gauge
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder whose collectors are registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		trainingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aelc_training_duration_seconds",
			Help:    "Duration of training runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		trainingSamples: f.NewGauge(prometheus.GaugeOpts{
			Name: "aelc_training_samples",
			Help: "Samples used by the last training run",
		}),
		trainedModels: f.NewGauge(prometheus.GaugeOpts{
			Name: "aelc_trained_models",
			Help: "Models selected by the last training run",
		}),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aelc_predictions_total",
				Help: "Total number of predictions served",
			},
			[]string{"direction", "fallback"},
		),
		confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aelc_prediction_confidence",
			Help:    "Confidence of served predictions",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		backtestTrades: f.NewGauge(prometheus.GaugeOpts{
			Name: "aelc_backtest_trades",
			Help: "Trades closed by the last backtest",
		}),
		backtestCapital: f.NewGauge(prometheus.GaugeOpts{
			Name: "aelc_backtest_final_capital",
			Help: "Final capital of the last backtest",
		}),
		backtestDrawdown: f.NewGauge(prometheus.GaugeOpts{
			Name: "aelc_backtest_max_drawdown_pct",
			Help: "Max drawdown percentage of the last backtest",
		}),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aelc_errors_total",
				Help: "Total number of errors by kind",
			},
			[]string{"kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aelc_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTraining records a finished training run.
func (r *Recorder) RecordTraining(seconds float64, samples, models int) {
	r.trainingDuration.Observe(seconds)
	r.trainingSamples.Set(float64(samples))
	r.trainedModels.Set(float64(models))
}

// RecordPrediction records a served prediction.
func (r *Recorder) RecordPrediction(direction string, confidence float64, fallback bool) {
	fb := "false"
	if fallback {
		fb = "true"
	}
	r.predictions.WithLabelValues(direction, fb).Inc()
	r.confidence.Observe(confidence)
}

// RecordBacktest records the outcome of a backtest run.
func (r *Recorder) RecordBacktest(trades int, finalCapital, maxDrawdownPct float64) {
	r.backtestTrades.Set(float64(trades))
	r.backtestCapital.Set(finalCapital)
	r.backtestDrawdown.Set(maxDrawdownPct)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordTraining(float64, int, int)       {}
func (Nop) RecordPrediction(string, float64, bool) {}
func (Nop) RecordBacktest(int, float64, float64)   {}
func (Nop) RecordError(string)                     {}
func (Nop) RecordLatency(string, float64)          {}
