package matcher

import "github.com/haukened/rr-block/internal/block/domain"

// BloomFilter is the minimal interface the matcher needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for a pattern set.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// HostMatch is the set of compiled patterns whose host part covers a given
// host name. An empty HostMatch is a cached negative.
type HostMatch struct {
	Patterns []domain.MatchPattern
}

// DecisionCache caches HostMatch values by canonical host name.
type DecisionCache interface {
	Get(host string) (HostMatch, bool)
	Put(host string, m HostMatch)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}
