// Package metrics exposes Prometheus metrics for the sandbox orchestrator:
// pool occupancy, execution counts by status, and dependency-cache
// hit/miss counts.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors for the orchestrator.
type Metrics struct {
	PoolContainers       *prometheus.GaugeVec
	ExecutionsTotal      *prometheus.CounterVec
	ExecutionDuration    prometheus.Histogram
	DependencyCacheTotal *prometheus.CounterVec
}

// Get returns the process-wide singleton Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.PoolContainers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sandbox",
			Subsystem: "pool",
			Name:      "containers",
			Help:      "Number of containers tracked by the warm pool, by state",
		},
		[]string{"state"},
	)

	m.ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sandbox",
			Name:      "executions_total",
			Help:      "Total number of executeCode invocations by outcome status",
		},
		[]string{"status"},
	)

	m.ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of user-code execution",
			Buckets:   prometheus.DefBuckets,
		},
	)

	m.DependencyCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "dependency_cache",
			Name:      "total",
			Help:      "Dependency-install cache hits and misses by checksum comparison",
		},
		[]string{"result"},
	)

	return m
}

// Handler returns the http.Handler serving the Prometheus exposition
// format, for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
