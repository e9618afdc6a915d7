package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-block/internal/block/repos/matcher"
)

// filter wraps bits-and-blooms BloomFilter with a lock. The matcher only
// writes while compiling, but Add and MightContain may still overlap.
type filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}

// factory implements matcher.BloomFactory using the sizing formulas above.
type factory struct{}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() matcher.BloomFactory { return factory{} }

// New constructs a filter sized for capacity keys at the target FP rate.
func (factory) New(capacity uint64, fpRate float64) matcher.BloomFilter {
	m, k := size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

var _ matcher.BloomFilter = (*filter)(nil)
