// Package fsmmetrics implements the Metrics component (§4.9): two
// process-wide counters plus a duration histogram, exposed through
// Prometheus. Grounded on the teacher's internal/metrics/metrics.go
// singleton pattern (sync.Once-built *Metrics via Get()), narrowed to
// FSM-specific series under the same "apex" namespace.
package fsmmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the FSM transition counters and histogram. Use Get() to
// obtain the process-wide singleton; tests that want isolated counters
// should construct their own registry with New(reg).
type Metrics struct {
	TransitionsTotal *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
}

var (
	once     sync.Once
	instance *Metrics
)

// Get returns the process-wide Metrics singleton, registering its series
// against the default Prometheus registry on first call.
func Get() *Metrics {
	once.Do(func() {
		instance = New(prometheus.DefaultRegisterer)
	})
	return instance
}

// New builds a fresh Metrics instance registered against reg, for tests
// that need isolation from the process-wide default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apex",
			Subsystem: "fsm",
			Name:      "transitions_total",
			Help:      "Total FSM transition attempts by model type, column and outcome.",
		}, []string{"model_type", "column", "outcome"}),
		TransitionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "apex",
			Subsystem: "fsm",
			Name:      "transition_duration_seconds",
			Help:      "Duration of FSM transition attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model_type", "column", "outcome"}),
	}
}

// Record increments the success/failure counter and observes the duration
// histogram. It never returns an error: failures here must not mask the
// transition outcome (§4.9), so the caller simply fires-and-forgets this
// call after the outcome is already decided.
func (m *Metrics) Record(modelType, column string, successful bool, durationSeconds float64) {
	outcome := "failure"
	if successful {
		outcome = "success"
	}
	m.TransitionsTotal.WithLabelValues(modelType, column, outcome).Inc()
	m.TransitionDuration.WithLabelValues(modelType, column, outcome).Observe(durationSeconds)
}
