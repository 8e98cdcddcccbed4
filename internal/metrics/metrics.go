// Package metrics wires the engine's block-application path to Prometheus:
// counters for applied and rejected blocks plus a latency histogram for the
// apply path, exposed over HTTP via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes the counters and histogram the engine updates around
// ApplyBlock.
type Collector struct {
	registry *prometheus.Registry

	blocksApplied  prometheus.Counter
	blocksRejected *prometheus.CounterVec
	applySeconds   prometheus.Histogram
}

// NewCollector builds a fresh registry and registers all engine metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		blocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blocks_applied_total",
			Help: "Total number of blocks successfully applied to the store.",
		}),
		blocksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blocks_rejected_total",
			Help: "Total number of blocks rejected, labeled by error kind.",
		}, []string{"reason"}),
		applySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "block_apply_seconds",
			Help:    "Wall-clock duration of a single ApplyBlock call.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.blocksApplied, c.blocksRejected, c.applySeconds)
	return c
}

// ObserveApplied records a successful block application and its latency.
func (c *Collector) ObserveApplied(seconds float64) {
	c.blocksApplied.Inc()
	c.applySeconds.Observe(seconds)
}

// ObserveRejected records a rejected block, labeled by the error kind that
// caused the rejection.
func (c *Collector) ObserveRejected(reason string) {
	c.blocksRejected.WithLabelValues(reason).Inc()
}

// Handler exposes the collector's registry as an HTTP handler for a metrics
// scrape endpoint (wired by a caller outside this package's scope).
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
