package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-block/internal/block/repos/matcher"
)

// hostCache is an LRU-backed implementation of matcher.DecisionCache.
// It tracks basic metrics: hits, misses, and evictions.
type hostCache struct {
	lru       *lru.Cache[string, matcher.HostMatch]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// New creates a new DecisionCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses and tracks no metrics.
func New(size int) (matcher.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var hc hostCache
	// NewWithEvict observes evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ string, _ matcher.HostMatch) {
		atomic.AddUint64(&hc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	hc.lru = cache
	return &hc, nil
}

// Get looks up candidates by host. When found, increments hits; otherwise increments misses.
func (c *hostCache) Get(host string) (matcher.HostMatch, bool) {
	if val, ok := c.lru.Get(host); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return matcher.HostMatch{}, false
}

func (c *hostCache) Put(host string, m matcher.HostMatch) {
	c.lru.Add(host, m)
}

func (c *hostCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *hostCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *hostCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

func (d *disabledCache) Get(string) (matcher.HostMatch, bool) { return matcher.HostMatch{}, false }

func (d *disabledCache) Put(string, matcher.HostMatch) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ matcher.DecisionCache = (*hostCache)(nil)
var _ matcher.DecisionCache = (*disabledCache)(nil)
