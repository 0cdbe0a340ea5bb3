// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	LedgerOperations *prometheus.CounterVec
	LedgerDuration   *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LedgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budget",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		LedgerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "budget",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in ledger operations, lock wait included.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budget",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "budget",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.LedgerOperations, m.LedgerDuration, m.HTTPRequests, m.HTTPDuration)
	return m
}

// ObserveLedger records one ledger call. A nil receiver is a no-op so
// services can run without metrics in tests.
func (m *Metrics) ObserveLedger(operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.LedgerOperations.WithLabelValues(operation, outcome).Inc()
	m.LedgerDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
