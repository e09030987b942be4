package refresher

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels of a refresh tick.
const (
	ResultUpdated = "updated"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// Metrics are the refresher's prometheus collectors.
type Metrics struct {
	Total   *prometheus.CounterVec
	Latency prometheus.Histogram
}

// NewMetrics registers the collectors on reg, reusing ones that are already
// registered. A nil reg means the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filevars",
			Subsystem: "worker",
			Name:      "refresh_total",
			Help:      "Group tree refresh ticks by outcome",
		}, []string{"result"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "filevars",
			Subsystem: "worker",
			Name:      "refresh_seconds",
			Help:      "Latency of group tree refresh ticks",
			Buckets:   latencyBuckets,
		}),
	}

	if err := reg.Register(m.Total); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				m.Total = existing
			}
		}
	}
	if err := reg.Register(m.Latency); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Histogram); ok {
				m.Latency = existing
			}
		}
	}
	return m
}

func (m *Metrics) observe(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Total.WithLabelValues(result).Inc()
	m.Latency.Observe(seconds)
}
