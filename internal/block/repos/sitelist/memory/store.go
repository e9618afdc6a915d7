// Package memory is a process-local sitelist.Store.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/haukened/rr-block/internal/block/common/clock"
	"github.com/haukened/rr-block/internal/block/common/metrics"
	"github.com/haukened/rr-block/internal/block/repos/sitelist"
)

const backend = "memory"

// Options configures a memory store. Zero values pick the real clock and
// private metrics.
type Options struct {
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

type store struct {
	mu       sync.RWMutex
	sites    []string
	present  bool
	clock    clock.Clock
	metrics  *metrics.Metrics
	notifier *sitelist.Notifier
}

// New returns an empty store with no "sites" key.
func New(opts Options) sitelist.Store {
	return newStore(opts)
}

// NewWithSites returns a store whose "sites" key already holds sites.
func NewWithSites(opts Options, sites []string) sitelist.Store {
	s := newStore(opts)
	s.sites = slices.Clone(sites)
	s.present = true
	return s
}

func newStore(opts Options) *store {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	return &store{clock: opts.Clock, metrics: opts.Metrics, notifier: sitelist.NewNotifier()}
}

func (s *store) Get(ctx context.Context) ([]string, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return nil, false, nil
	}
	return slices.Clone(s.sites), true, nil
}

func (s *store) Set(ctx context.Context, sites []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sites == nil {
		sites = []string{}
	}
	s.mu.Lock()
	s.sites = slices.Clone(sites)
	s.present = true
	s.mu.Unlock()

	s.metrics.ListWrites.WithLabelValues(backend).Inc()
	s.notifier.Publish(sitelist.Change{Sites: sites, At: s.clock.Now()})
	return nil
}

func (s *store) Subscribe(o sitelist.Observer) func() {
	return s.notifier.Subscribe(o)
}

// Close waits for in-flight change deliveries.
func (s *store) Close() error {
	s.notifier.Close()
	return nil
}

var _ sitelist.Store = (*store)(nil)
