package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lazyresolve"

// Metrics counts engine constructions and lookups. A nil *Metrics records
// nothing.
type Metrics struct {
	constructions  *prometheus.CounterVec
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		constructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "engine_constructions_total",
			Help:      "Engine construction attempts by result.",
		}, []string{"result"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lookups_total",
			Help:      "Hostname lookups by result.",
		}, []string{"result"}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "lookup_duration_seconds",
			Help:      "Time spent in engine lookups.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	reg.MustRegister(m.constructions, m.lookups, m.lookupDuration)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observeConstruction(err error) {
	if m == nil {
		return
	}
	m.constructions.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) observeLookup(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result(err)).Inc()
	m.lookupDuration.Observe(d.Seconds())
}
