package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Indicator.Set(1)
	m.Patterns.Set(3)
	m.Requests.WithLabelValues("main_frame", "redirected").Inc()
	m.ListWrites.WithLabelValues("bolt").Add(2)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"rr_block_indicator_on",
		"rr_block_registered_patterns",
		"rr_block_proxy_requests_total",
		"rr_block_list_writes_total",
	}, names)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Indicator))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ListWrites.WithLabelValues("bolt")))
}

type fakeCache struct {
	size                    int
	hits, misses, evictions uint64
}

func (f *fakeCache) Len() int { return f.size }

func (f *fakeCache) Stats() (uint64, uint64, uint64) { return f.hits, f.misses, f.evictions }

func TestRegisterCache_ReadsAtScrapeTime(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := &fakeCache{}
	RegisterCache(reg, c)

	c.size, c.hits, c.misses, c.evictions = 3, 10, 4, 2
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP rr_block_decision_cache_entries Hosts currently held in the decision cache.
# TYPE rr_block_decision_cache_entries gauge
rr_block_decision_cache_entries 3
# HELP rr_block_decision_cache_evictions_total Decision cache entries evicted, including purges on recompilation.
# TYPE rr_block_decision_cache_evictions_total counter
rr_block_decision_cache_evictions_total 2
# HELP rr_block_decision_cache_hits_total Decision cache lookups answered from the cache.
# TYPE rr_block_decision_cache_hits_total counter
rr_block_decision_cache_hits_total 10
# HELP rr_block_decision_cache_misses_total Decision cache lookups that fell through to the pattern index.
# TYPE rr_block_decision_cache_misses_total counter
rr_block_decision_cache_misses_total 4
`)))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = New(reg)
	assert.Panics(t, func() { _ = New(reg) })
}

func TestNewNop_Independent(t *testing.T) {
	a, b := NewNop(), NewNop()
	a.Indicator.Set(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Indicator))
}
