// Package metrics holds the Prometheus collectors for leakage runs. Collectors
// are registered on a caller-supplied registry so tests and multiple servers
// in one process never collide on the default one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ctleak/domain/leakage"
)

// Recorder is safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	trials      *prometheus.CounterVec
	wraparounds *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	maxT        *prometheus.GaugeVec
}

// NewRecorder registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		trials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ctleak_trials_measured_total",
				Help: "Trials timed by the fixture, per target.",
			},
			[]string{"target"},
		),
		wraparounds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ctleak_wraparound_discards_total",
				Help: "In-window trials discarded because the cycle counter went backwards.",
			},
			[]string{"target"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ctleak_runs_total",
				Help: "Completed detection runs by outcome.",
			},
			[]string{"target", "outcome"},
		),
		// 10ms up to roughly 20 minutes.
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ctleak_run_duration_seconds",
				Help:    "Wall-clock duration of detection runs.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 18),
			},
			[]string{"target"},
		),
		maxT: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ctleak_last_max_t",
				Help: "Largest |t| of the most recent batch, per target.",
			},
			[]string{"target"},
		),
	}
}

// Batch records the trial and wraparound counts of one batch.
func (r *Recorder) Batch(target string, trials, wraparounds int, maxT float64) {
	if r == nil {
		return
	}
	r.trials.WithLabelValues(target).Add(float64(trials))
	if wraparounds > 0 {
		r.wraparounds.WithLabelValues(target).Add(float64(wraparounds))
	}
	r.maxT.WithLabelValues(target).Set(maxT)
}

// Run records a finished run.
func (r *Recorder) Run(report *leakage.Report) {
	if r == nil || report == nil {
		return
	}
	r.runs.WithLabelValues(report.Target, string(report.Outcome)).Inc()
	r.duration.WithLabelValues(report.Target).Observe(report.Duration().Seconds())
}
