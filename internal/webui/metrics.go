package webui

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Results of a group tree read, as counted by GroupReads.
const (
	readOK          = "ok"
	readNotModified = "not_modified"
	readError       = "error"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics are the facade's prometheus collectors.
type Metrics struct {
	Requests      *prometheus.CounterVec
	Latency       *prometheus.HistogramVec
	RateLimitHits *prometheus.CounterVec
	// GroupReads counts tree, page and path reads by result.
	GroupReads *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg, adopting already registered
// ones. A nil reg means the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filevars",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})),
		Latency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "filevars",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})),
		RateLimitHits: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filevars",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route"})),
		GroupReads: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filevars",
			Subsystem: "groups",
			Name:      "reads_total",
			Help:      "Group tree reads by endpoint and result",
		}, []string{"endpoint", "result"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observeRequest(method, route string, status int, d time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.Requests.With(labels).Inc()
	m.Latency.With(labels).Observe(d.Seconds())
}

func (m *Metrics) observeRateLimit(route string) {
	m.RateLimitHits.WithLabelValues(route).Inc()
}

func (m *Metrics) observeGroupRead(endpoint, result string) {
	m.GroupReads.WithLabelValues(endpoint, result).Inc()
}
