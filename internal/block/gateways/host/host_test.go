package host

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/common/metrics"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/gateways/indicator"
	"github.com/haukened/rr-block/internal/block/gateways/proxy"
	"github.com/haukened/rr-block/internal/block/repos/matcher"
	"github.com/haukened/rr-block/internal/block/repos/matcher/bloom"
	"github.com/haukened/rr-block/internal/block/repos/matcher/lru"
	"github.com/haukened/rr-block/internal/block/repos/sitelist/memory"
	"github.com/haukened/rr-block/internal/block/services/blocker"
)

type fixture struct {
	host    *Host
	proxy   *proxy.Proxy
	metrics *metrics.Metrics
	ctrl    *blocker.Controller
}

func newFixture(t *testing.T, sites []string) fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	cache, err := lru.New(128)
	require.NoError(t, err)
	store := memory.NewWithSites(memory.Options{Metrics: m}, sites)
	p := proxy.New(proxy.Options{
		Matcher: matcher.New(cache, bloom.NewFactory(), 0.01),
		Metrics: m,
		Logger:  log.NewNoopLogger(),
		Transport: http.RoundTripper(roundTrip(func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: r}, nil
		})),
	})
	h := NewHost(HostOptions{Store: store, Proxy: p, Indicator: indicator.New(m, log.NewNoopLogger())})
	c := blocker.New(blocker.Options{Host: h, Logger: log.NewNoopLogger(), NoticeBase: "http://127.0.0.1:8118"})
	t.Cleanup(func() {
		c.Close()
		_ = store.Close()
	})
	return fixture{host: h, proxy: p, metrics: m, ctrl: c}
}

type roundTrip func(*http.Request) (*http.Response, error)

func (f roundTrip) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func navigate(t *testing.T, p http.Handler, target, tab string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Header.Set("Sec-Fetch-Dest", "document")
	r.Header.Set(proxy.TabHeader, tab)
	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)
	return w
}

func TestHost_BlockedNavigationRedirectsToNotice(t *testing.T) {
	f := newFixture(t, []string{"a.com"})
	require.NoError(t, f.ctrl.Initialize(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Indicator))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Patterns))

	w := navigate(t, f.proxy, "https://shop.a.com/cart?id=5", "tab-1")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8118", loc.Host)
	assert.Equal(t, blocker.NoticePath, loc.Path)
	assert.Equal(t, "https://shop.a.com/cart?id=5", loc.Query().Get("target"))

	w = navigate(t, f.proxy, "http://b.com/", "tab-1")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHost_DeactivatedPassesEverything(t *testing.T) {
	f := newFixture(t, []string{"a.com"})
	ctx := context.Background()
	require.NoError(t, f.ctrl.Activate(ctx))
	require.NoError(t, f.ctrl.Deactivate(ctx))

	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Indicator))
	w := navigate(t, f.proxy, "http://a.com/", "tab-1")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHost_ListEditsPropagateToProxy(t *testing.T) {
	f := newFixture(t, []string{})
	ctx := context.Background()
	require.NoError(t, f.ctrl.Initialize(ctx))
	assert.False(t, f.proxy.Registered())

	require.NoError(t, f.ctrl.AddSite(ctx, "c.org"))
	assert.Eventually(t, f.proxy.Registered, time.Second, 5*time.Millisecond)
	w := navigate(t, f.proxy, "http://www.c.org/", "tab-2")
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestHost_ActiveTabFollowsNavigations(t *testing.T) {
	f := newFixture(t, []string{})
	ctx := context.Background()
	_, err := f.host.QueryActiveTab(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveTab)

	navigate(t, f.proxy, "http://www.d.com/page", "tab-9")
	tab, err := f.host.QueryActiveTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Tab{ID: "tab-9", URL: "http://www.d.com/page"}, tab)

	assert.ErrorIs(t, f.host.NavigateTab(ctx, "tab-9", "1", "/x"), domain.ErrUnknownTab, "only held requests can be navigated")
}
