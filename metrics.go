package routecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of a Cache.
type Metrics struct {
	// Lookups by result, "hit" or "miss".
	Lookups *prometheus.CounterVec
	// Store failures by operation, "get" or "set".
	StoreErrors *prometheus.CounterVec
	// Successful cache writes.
	Stores prometheus.Counter
	// Failed or cancelled downstream calls.
	DownstreamFailures prometheus.Counter
	FetchDuration      prometheus.Histogram
}

// NewMetrics creates the metrics with the given namespace and registers them
// with reg. If reg is nil, the metrics are created but not registered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Total number of cache lookups by result",
		}, []string{"result"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total number of failed cache store operations",
		}, []string{"op"}),
		Stores: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stores_total",
			Help:      "Total number of responses written to the cache",
		}),
		DownstreamFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downstream_failures_total",
			Help:      "Total number of failed or cancelled downstream calls",
		}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Downstream call latency on cache misses in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
}

// Metrics returns the metrics of the cache.
func (c *Cache) Metrics() *Metrics {
	return c.metrics
}
