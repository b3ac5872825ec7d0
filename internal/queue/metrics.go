package queue

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus instruments the queue publishes to (spec
// §6.3).
type Metrics struct {
	Depth         prometheus.Gauge
	EnqueuedTotal prometheus.Counter
	TimeoutTotal  prometheus.Counter
}

// NewMetrics registers the queue gauges/counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_queue_depth",
			Help: "Current number of items waiting in the request queue.",
		}),
		EnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_queue_enqueued_total",
			Help: "Total number of requests accepted into the queue.",
		}),
		TimeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_queue_timeout_total",
			Help: "Total number of queued requests that timed out before being routed.",
		}),
	}
	reg.MustRegister(m.Depth, m.EnqueuedTotal, m.TimeoutTotal)
	return m
}
