// Package host adapts the daemon's runtime pieces to blocker.Host: the list
// store stands in for extension storage, the proxy for the request and tab
// APIs, and the indicator for the toolbar icon.
package host

import (
	"context"

	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/gateways/indicator"
	"github.com/haukened/rr-block/internal/block/gateways/proxy"
	"github.com/haukened/rr-block/internal/block/repos/sitelist"
	"github.com/haukened/rr-block/internal/block/services/blocker"
)

// Host satisfies blocker.Host by delegating to the store, proxy and indicator.
type Host struct {
	store     sitelist.Store
	proxy     *proxy.Proxy
	indicator *indicator.Indicator
}

// HostOptions lists the components a Host delegates to.
type HostOptions struct {
	Store     sitelist.Store
	Proxy     *proxy.Proxy
	Indicator *indicator.Indicator
}

// NewHost returns a Host over opts.
func NewHost(opts HostOptions) *Host {
	return &Host{store: opts.Store, proxy: opts.Proxy, indicator: opts.Indicator}
}

func (h *Host) RegisterInterceptor(filter domain.RequestFilter, fn domain.InterceptFunc) error {
	return h.proxy.Register(filter, fn)
}

func (h *Host) UnregisterInterceptor() {
	h.proxy.Unregister()
}

func (h *Host) GetList(ctx context.Context) ([]string, bool, error) {
	return h.store.Get(ctx)
}

func (h *Host) SetList(ctx context.Context, sites []string) error {
	return h.store.Set(ctx, sites)
}

func (h *Host) OnListChanged(fn func(sites []string)) func() {
	return h.store.Subscribe(func(c sitelist.Change) { fn(c.Sites) })
}

func (h *Host) SetIndicator(ctx context.Context, ind domain.Indicator) error {
	return h.indicator.Set(ctx, ind)
}

func (h *Host) QueryActiveTab(ctx context.Context) (domain.Tab, error) {
	return h.proxy.ActiveTab(ctx)
}

func (h *Host) NavigateTab(ctx context.Context, tabID, requestID, url string) error {
	return h.proxy.Navigate(ctx, tabID, requestID, url)
}

var _ blocker.Host = (*Host)(nil)
