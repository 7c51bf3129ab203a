package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments a runner with prometheus collectors.
type Metrics struct {
	buildsTotal   *prometheus.CounterVec
	buildDuration prometheus.Histogram
	reloadsTotal  *prometheus.CounterVec
	unitState     *prometheus.GaugeVec
}

// allStates enumerates the states exported through the unit_state gauge.
var allStates = []State{
	StateIdle, StateBuilding, StateLoaded, StateRunning,
	StateReloading, StateStopped, StateCrashed,
}

// NewMetrics creates and registers runner collectors for one project.
func NewMetrics(reg prometheus.Registerer, project string) *Metrics {
	labels := prometheus.Labels{"project": project}

	m := &Metrics{
		buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "shuttle",
			Name:        "builds_total",
			Help:        "Unit builds by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "shuttle",
			Name:        "build_duration_seconds",
			Help:        "Wall-clock duration of unit builds.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "shuttle",
			Name:        "reloads_total",
			Help:        "Unit reloads by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		unitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "shuttle",
			Name:        "unit_state",
			Help:        "Current lifecycle state of the unit (1 for the active state).",
			ConstLabels: labels,
		}, []string{"state"}),
	}

	reg.MustRegister(m.buildsTotal, m.buildDuration, m.reloadsTotal, m.unitState)
	m.SetState(StateIdle)
	return m
}

// ObserveBuild records one build attempt.
func (m *Metrics) ObserveBuild(result string, d time.Duration) {
	m.buildsTotal.WithLabelValues(result).Inc()
	if result == "success" {
		m.buildDuration.Observe(d.Seconds())
	}
}

// ObserveReload records one reload attempt.
func (m *Metrics) ObserveReload(result string) {
	m.reloadsTotal.WithLabelValues(result).Inc()
}

// SetState marks the active lifecycle state.
func (m *Metrics) SetState(state State) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.unitState.WithLabelValues(string(s)).Set(v)
	}
}
