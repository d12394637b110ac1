package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	episodes     *prometheus.CounterVec
	macroSteps   *prometheus.CounterVec
	commission   *prometheus.CounterVec
	finalBalance *prometheus.GaugeVec
	inference    *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg. Tests pass prometheus.NewRegistry() to avoid
// duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		episodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finreplay_episodes_total",
				Help: "Episodes run, by split and outcome",
			},
			[]string{"split", "status"},
		),
		macroSteps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finreplay_macro_steps_total",
				Help: "Macro steps executed",
			},
			[]string{"split"},
		),
		commission: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finreplay_commission_paid_total",
				Help: "Commission paid in quote currency",
			},
			[]string{"split"},
		),
		finalBalance: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finreplay_final_balance",
				Help: "Final balance of the last finished episode",
			},
			[]string{"split"},
		),
		inference: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finreplay_provider_inference_seconds",
				Help:    "Decision provider inference latency",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"provider"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finreplay_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finreplay_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordEpisode(split, status string) {
	r.episodes.WithLabelValues(split, status).Inc()
}

func (r *Recorder) RecordMacroStep(split string, commission float64) {
	r.macroSteps.WithLabelValues(split).Inc()
	if commission > 0 {
		r.commission.WithLabelValues(split).Add(commission)
	}
}

func (r *Recorder) RecordFinalBalance(split string, balance float64) {
	r.finalBalance.WithLabelValues(split).Set(balance)
}

// RecordInference observes one provider call. Provider ids are checkpoint paths, so
// cardinality is bounded by the ensemble size.
func (r *Recorder) RecordInference(provider string, seconds float64) {
	r.inference.WithLabelValues(provider).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
