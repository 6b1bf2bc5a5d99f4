package adapter

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/parnlp/internal/errors"
)

// Metrics collects adapter counters. A nil *Metrics records nothing, so
// adapters built without WithMetrics pay no cost.
type Metrics struct {
	evaluations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	mapBuild    prometheus.Histogram
	nonzeros    *prometheus.GaugeVec
}

// NewMetrics creates the adapter metrics and registers them with reg when reg
// is non-nil. Registering twice with the same registerer panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parnlp",
			Name:      "evaluations_total",
			Help:      "Partitioned evaluation calls by operation.",
		}, []string{"op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parnlp",
			Name:      "evaluation_failures_total",
			Help:      "Failed partitioned evaluation calls by operation and error kind.",
		}, []string{"op", "kind"}),
		mapBuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parnlp",
			Name:      "index_map_build_seconds",
			Help:      "Time spent harvesting structure and building local index maps.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		nonzeros: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "parnlp",
			Name:      "local_nonzeros",
			Help:      "Nonzeros owned by a participant, by matrix.",
		}, []string{"matrix", "proc_id"}),
	}

	if reg != nil {
		reg.MustRegister(m.evaluations, m.failures, m.mapBuild, m.nonzeros)
	}
	return m
}

func (m *Metrics) evaluation(op string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(op).Inc()
}

func (m *Metrics) failure(op string, kind errors.Kind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op, kind.String()).Inc()
}

func (m *Metrics) mapsBuilt(procID int, took time.Duration, nnzJac, nnzHess int) {
	if m == nil {
		return
	}
	id := strconv.Itoa(procID)
	m.mapBuild.Observe(took.Seconds())
	m.nonzeros.WithLabelValues("jacobian", id).Set(float64(nnzJac))
	m.nonzeros.WithLabelValues("hessian", id).Set(float64(nnzHess))
}
