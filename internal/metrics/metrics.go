// Package metrics holds the Prometheus instrumentation of simulation,
// evaluation and search.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a set of collectors registered together.
type Metrics struct {
	simulations   *prometheus.CounterVec
	memoLookups   *prometheus.CounterVec
	evaluations   *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	bestObjective prometheus.Gauge
}

// Default is registered with the global Prometheus registry.
var Default = New(prometheus.DefaultRegisterer)

// New registers a fresh set of collectors with reg. A nil reg creates
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		simulations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "falsify_simulations_total",
			Help: "Simulator invocations by result",
		}, []string{"result"}),
		memoLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "falsify_memo_lookups_total",
			Help: "Robustness memo lookups by result",
		}, []string{"result"}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "falsify_evaluations_total",
			Help: "Objective evaluations by search phase",
		}, []string{"phase"}),
		batchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "falsify_batch_duration_seconds",
			Help:    "Wall time of one evaluated batch by search phase",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"phase"}),
		bestObjective: f.NewGauge(prometheus.GaugeOpts{
			Name: "falsify_best_objective",
			Help: "Lowest objective value found by the running search",
		}),
	}
}

// Simulated counts one simulator call.
func (m *Metrics) Simulated(fault bool) {
	if fault {
		m.simulations.WithLabelValues("fault").Inc()
		return
	}
	m.simulations.WithLabelValues("ok").Inc()
}

// MemoLookup counts one memo lookup.
func (m *Metrics) MemoLookup(hit bool) {
	if hit {
		m.memoLookups.WithLabelValues("hit").Inc()
		return
	}
	m.memoLookups.WithLabelValues("miss").Inc()
}

// Batch records n evaluations of one batch that took d.
func (m *Metrics) Batch(phase string, n int, d time.Duration) {
	m.evaluations.WithLabelValues(phase).Add(float64(n))
	m.batchDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// Best publishes the current best objective.
func (m *Metrics) Best(v float64) { m.bestObjective.Set(v) }
