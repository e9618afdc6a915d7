// Package matcher answers "is this URL covered by the registered match
// patterns?" for the intercepting proxy. Lookups go bloom → cache → index:
// a Bloom filter over host anchors rejects most hosts without touching the
// index, and an LRU cache remembers which patterns cover recently seen hosts.
package matcher

import (
	"net/url"
	"strings"
	"sync"

	"github.com/haukened/rr-block/internal/block/common/utils"
	"github.com/haukened/rr-block/internal/block/domain"
)

// Result is the outcome of matching one URL.
type Result struct {
	Matched bool
	Pattern string
}

const (
	exactPrefix  = "e:"
	suffixPrefix = "s:"
)

// index holds one compiled pattern set. It is immutable once built.
type index struct {
	exact    map[string][]domain.MatchPattern
	suffix   map[string][]domain.MatchPattern
	anyHost  []domain.MatchPattern
	bloom    BloomFilter
	patterns int
}

// Matcher is safe for concurrent use. Compile swaps the whole pattern set
// atomically and purges the decision cache.
type Matcher struct {
	mu      sync.RWMutex
	idx     *index
	cache   DecisionCache
	factory BloomFactory
	fpRate  float64
}

// New constructs a Matcher with no patterns. factory may be nil, which
// disables the Bloom prefilter.
func New(cache DecisionCache, factory BloomFactory, fpRate float64) *Matcher {
	return &Matcher{cache: cache, factory: factory, fpRate: fpRate}
}

// Compile parses patterns and replaces the current set. On a parse error the
// current set is left untouched and the error wraps domain.ErrInvalidPattern.
func (m *Matcher) Compile(patterns []string) error {
	idx := &index{
		exact:  make(map[string][]domain.MatchPattern),
		suffix: make(map[string][]domain.MatchPattern),
	}
	for _, raw := range patterns {
		p, err := domain.ParseMatchPattern(raw)
		if err != nil {
			return err
		}
		switch {
		case p.Host == "*":
			idx.anyHost = append(idx.anyHost, p)
		case strings.HasPrefix(p.Host, "*."):
			base := utils.CanonicalHostName(p.Host[2:])
			idx.suffix[base] = append(idx.suffix[base], p)
		default:
			host := utils.CanonicalHostName(p.Host)
			idx.exact[host] = append(idx.exact[host], p)
		}
		idx.patterns++
	}
	if m.factory != nil {
		bf := m.factory.New(uint64(len(idx.exact)+len(idx.suffix)), m.fpRate)
		for host := range idx.exact {
			bf.Add([]byte(exactPrefix + host))
		}
		for base := range idx.suffix {
			bf.Add([]byte(suffixPrefix + base))
		}
		idx.bloom = bf
	}

	m.mu.Lock()
	m.idx = idx
	m.cache.Purge()
	m.mu.Unlock()
	return nil
}

// Clear drops every pattern.
func (m *Matcher) Clear() {
	m.mu.Lock()
	m.idx = nil
	m.cache.Purge()
	m.mu.Unlock()
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.idx == nil {
		return 0
	}
	return m.idx.patterns
}

// Match reports whether u is covered by any compiled pattern.
func (m *Matcher) Match(u *url.URL) Result {
	if u == nil {
		return Result{}
	}
	m.mu.RLock()
	idx := m.idx
	m.mu.RUnlock()
	if idx == nil {
		return Result{}
	}

	host := utils.CanonicalHostName(u.Hostname())
	hm := m.hostMatch(idx, host)
	for _, p := range hm.Patterns {
		if p.Matches(u) {
			return Result{Matched: true, Pattern: p.String()}
		}
	}
	for _, p := range idx.anyHost {
		if p.Matches(u) {
			return Result{Matched: true, Pattern: p.String()}
		}
	}
	return Result{}
}

// hostMatch returns the host-keyed candidates for host, consulting the
// Bloom filter and the cache before the index.
func (m *Matcher) hostMatch(idx *index, host string) HostMatch {
	if !idx.mightContain(host) {
		return HostMatch{}
	}
	m.mu.RLock()
	hm, ok := m.cache.Get(host)
	current := m.idx == idx
	m.mu.RUnlock()
	if ok && current {
		return hm
	}

	hm = idx.lookup(host)

	m.mu.Lock()
	// Only cache against the index the lookup was made with.
	if m.idx == idx {
		m.cache.Put(host, hm)
	}
	m.mu.Unlock()
	return hm
}

// mightContain is false only when no anchor of host can be in the index.
func (idx *index) mightContain(host string) bool {
	if idx.bloom == nil {
		return true
	}
	if idx.bloom.MightContain([]byte(exactPrefix + host)) {
		return true
	}
	for _, anchor := range anchors(host) {
		if idx.bloom.MightContain([]byte(suffixPrefix + anchor)) {
			return true
		}
	}
	return false
}

func (idx *index) lookup(host string) HostMatch {
	var out []domain.MatchPattern
	out = append(out, idx.exact[host]...)
	for _, anchor := range anchors(host) {
		out = append(out, idx.suffix[anchor]...)
	}
	return HostMatch{Patterns: out}
}

// anchors lists host and each parent name, most specific first:
// "a.b.com" → ["a.b.com", "b.com", "com"].
func anchors(host string) []string {
	if host == "" {
		return nil
	}
	out := []string{host}
	for {
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return out
		}
		host = host[i+1:]
		if host == "" {
			return out
		}
		out = append(out, host)
	}
}
