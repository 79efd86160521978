package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report graph activity.
type Metrics struct {
	nodeDuration *prometheus.HistogramVec
	nodeFailures *prometheus.CounterVec
	branches     *prometheus.CounterVec
	runsActive   prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the instance registered with the global registry.
// Collectors are created once so that compiling several graphs in one
// process does not panic on duplicate registration.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics and registers them with reg. Tests should
// pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "research_assistant",
				Subsystem: "graph",
				Name:      "node_duration_seconds",
				Help:      "Duration of each node execution.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node", "status"},
		),
		nodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "research_assistant",
				Subsystem: "graph",
				Name:      "node_failures_total",
				Help:      "Node executions that returned an error.",
			},
			[]string{"node"},
		),
		branches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "research_assistant",
				Subsystem: "graph",
				Name:      "fanout_branches_total",
				Help:      "Branches dispatched by fan-out edges.",
			},
			[]string{"node"},
		),
		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "research_assistant",
				Subsystem: "graph",
				Name:      "runs_active",
				Help:      "Graph runs currently in progress.",
			},
		),
	}
	reg.MustRegister(m.nodeDuration, m.nodeFailures, m.branches, m.runsActive)
	return m
}

func (m *Metrics) observe(node, status string, d time.Duration) {
	m.nodeDuration.WithLabelValues(node, status).Observe(d.Seconds())
	if status != "ok" {
		m.nodeFailures.WithLabelValues(node).Inc()
	}
}
