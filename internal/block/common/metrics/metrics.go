// Package metrics holds the Prometheus collectors shared by the proxy, the
// indicator and the list stores.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rr_block"

// Metrics groups every collector the daemon exports.
type Metrics struct {
	// Indicator is 1 while the blocker shows the "on" appearance.
	Indicator prometheus.Gauge
	// Patterns is the number of match patterns currently registered.
	Patterns prometheus.Gauge
	// Requests counts proxied requests by resource type and verdict.
	Requests *prometheus.CounterVec
	// ListWrites counts persisted blocklist writes by store backend.
	ListWrites *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Indicator: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indicator_on",
			Help:      "1 if the blocker indicator shows the on appearance, 0 otherwise.",
		}),
		Patterns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_patterns",
			Help:      "Number of match patterns the interceptor is registered for.",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Proxied requests by resource type and verdict.",
		}, []string{"resource_type", "verdict"}),
		ListWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_writes_total",
			Help:      "Blocklist writes by store backend.",
		}, []string{"backend"}),
	}
}

// NewNop returns collectors registered on a private registry, for
// components built without an explicit Metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// CacheStats is the read side of the matcher's decision cache.
type CacheStats interface {
	Len() int
	Stats() (hits, misses, evictions uint64)
}

// RegisterCache exports c's cumulative counters and current size on reg.
// The values are read from c at scrape time.
func RegisterCache(reg prometheus.Registerer, c CacheStats) {
	f := promauto.With(reg)
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decision_cache",
		Name:      "hits_total",
		Help:      "Decision cache lookups answered from the cache.",
	}, func() float64 {
		hits, _, _ := c.Stats()
		return float64(hits)
	})
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decision_cache",
		Name:      "misses_total",
		Help:      "Decision cache lookups that fell through to the pattern index.",
	}, func() float64 {
		_, misses, _ := c.Stats()
		return float64(misses)
	})
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decision_cache",
		Name:      "evictions_total",
		Help:      "Decision cache entries evicted, including purges on recompilation.",
	}, func() float64 {
		_, _, evictions := c.Stats()
		return float64(evictions)
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "decision_cache",
		Name:      "entries",
		Help:      "Hosts currently held in the decision cache.",
	}, func() float64 {
		return float64(c.Len())
	})
}
