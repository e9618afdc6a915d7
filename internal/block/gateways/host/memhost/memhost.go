// Package memhost is an in-memory blocker.Host for tests. It records every
// interaction and can be told to fail individual capabilities.
package memhost

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/sitelist"
	"github.com/haukened/rr-block/internal/block/repos/sitelist/memory"
)

// Navigation is one recorded NavigateTab call.
type Navigation struct {
	TabID     string
	RequestID string
	URL       string
}

// Registration is the currently installed interceptor.
type Registration struct {
	Filter   domain.RequestFilter
	Fn       domain.InterceptFunc
	patterns []domain.MatchPattern
}

// Host is a fake blocker.Host backed by a memory list store.
type Host struct {
	store sitelist.Store

	mu           sync.Mutex
	reg          *Registration
	registers    int
	unregisters  int
	indicators   []domain.Indicator
	activeTab    *domain.Tab
	navigations  []Navigation
	registerErr  error
	getErr       error
	setErr       error
	indicatorErr error
	navigateErr  error
}

// New returns a Host with no "sites" key.
func New() *Host {
	return &Host{store: memory.New(memory.Options{})}
}

// NewWithSites returns a Host whose store already holds sites.
func NewWithSites(sites []string) *Host {
	return &Host{store: memory.NewWithSites(memory.Options{}, sites)}
}

func (h *Host) RegisterInterceptor(filter domain.RequestFilter, fn domain.InterceptFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registerErr != nil {
		return h.registerErr
	}
	parsed := make([]domain.MatchPattern, 0, len(filter.Patterns))
	for _, raw := range filter.Patterns {
		p, err := domain.ParseMatchPattern(raw)
		if err != nil {
			return err
		}
		parsed = append(parsed, p)
	}
	h.registers++
	h.reg = &Registration{
		Filter:   domain.RequestFilter{Patterns: slices.Clone(filter.Patterns), ResourceTypes: slices.Clone(filter.ResourceTypes)},
		Fn:       fn,
		patterns: parsed,
	}
	return nil
}

func (h *Host) UnregisterInterceptor() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisters++
	h.reg = nil
}

func (h *Host) GetList(ctx context.Context) ([]string, bool, error) {
	h.mu.Lock()
	err := h.getErr
	h.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return h.store.Get(ctx)
}

func (h *Host) SetList(ctx context.Context, sites []string) error {
	h.mu.Lock()
	err := h.setErr
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.store.Set(ctx, sites)
}

func (h *Host) OnListChanged(fn func(sites []string)) func() {
	return h.store.Subscribe(func(c sitelist.Change) { fn(c.Sites) })
}

func (h *Host) SetIndicator(_ context.Context, ind domain.Indicator) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.indicatorErr != nil {
		return h.indicatorErr
	}
	h.indicators = append(h.indicators, ind)
	return nil
}

func (h *Host) QueryActiveTab(context.Context) (domain.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.activeTab == nil {
		return domain.Tab{}, domain.ErrNoActiveTab
	}
	return *h.activeTab, nil
}

func (h *Host) NavigateTab(_ context.Context, tabID, requestID, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.navigateErr != nil {
		return h.navigateErr
	}
	h.navigations = append(h.navigations, Navigation{TabID: tabID, RequestID: requestID, URL: url})
	return nil
}

// Request simulates a navigation. It runs the interceptor when the request
// is selected by the current registration and reports whether it ran.
func (h *Host) Request(details domain.RequestDetails) (domain.Decision, bool, error) {
	u, err := url.Parse(details.URL)
	if err != nil {
		return domain.Decision{}, false, fmt.Errorf("parse request url: %w", err)
	}
	h.mu.Lock()
	reg := h.reg
	if details.ResourceType == domain.ResourceMainFrame {
		h.activeTab = &domain.Tab{ID: details.TabID, URL: details.URL}
	}
	h.mu.Unlock()

	if reg == nil || !reg.Filter.Accepts(details.ResourceType) {
		return domain.Decision{}, false, nil
	}
	for _, p := range reg.patterns {
		if p.Matches(u) {
			return reg.Fn(details), true, nil
		}
	}
	return domain.Decision{}, false, nil
}

// SetActiveTab sets the tab QueryActiveTab reports.
func (h *Host) SetActiveTab(tab domain.Tab) {
	h.mu.Lock()
	h.activeTab = &tab
	h.mu.Unlock()
}

// Registration returns a copy of the current registration, if any.
func (h *Host) Registration() (Registration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reg == nil {
		return Registration{}, false
	}
	return *h.reg, true
}

// Patterns returns the registered patterns, or nil when unregistered.
func (h *Host) Patterns() []string {
	if reg, ok := h.Registration(); ok {
		return reg.Filter.Patterns
	}
	return nil
}

// Counts returns how often RegisterInterceptor succeeded and
// UnregisterInterceptor was called.
func (h *Host) Counts() (registers, unregisters int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registers, h.unregisters
}

// Indicator returns the last indicator set, or "" if none.
func (h *Host) Indicator() domain.Indicator {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.indicators) == 0 {
		return ""
	}
	return h.indicators[len(h.indicators)-1]
}

// Navigations returns every recorded navigation.
func (h *Host) Navigations() []Navigation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.navigations)
}

// Sites reads the stored list directly, bypassing injected failures.
func (h *Host) Sites() ([]string, bool) {
	sites, ok, _ := h.store.Get(context.Background())
	return sites, ok
}

// FailRegister makes RegisterInterceptor return err (nil to clear).
func (h *Host) FailRegister(err error) { h.mu.Lock(); h.registerErr = err; h.mu.Unlock() }

// FailGetList makes GetList return err (nil to clear).
func (h *Host) FailGetList(err error) { h.mu.Lock(); h.getErr = err; h.mu.Unlock() }

// FailSetList makes SetList return err (nil to clear).
func (h *Host) FailSetList(err error) { h.mu.Lock(); h.setErr = err; h.mu.Unlock() }

// FailIndicator makes SetIndicator return err (nil to clear).
func (h *Host) FailIndicator(err error) { h.mu.Lock(); h.indicatorErr = err; h.mu.Unlock() }

// FailNavigate makes NavigateTab return err (nil to clear).
func (h *Host) FailNavigate(err error) { h.mu.Lock(); h.navigateErr = err; h.mu.Unlock() }

// Close waits for pending change deliveries.
func (h *Host) Close() error {
	return h.store.Close()
}
