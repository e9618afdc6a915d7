package proxy

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/common/metrics"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/matcher"
	"github.com/haukened/rr-block/internal/block/repos/matcher/bloom"
	"github.com/haukened/rr-block/internal/block/repos/matcher/lru"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// upstream records forwarded requests and answers 200 "upstream".
type upstream struct {
	mu   sync.Mutex
	seen []*http.Request
}

func (u *upstream) RoundTrip(r *http.Request) (*http.Response, error) {
	u.mu.Lock()
	u.seen = append(u.seen, r)
	u.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader("upstream")),
		Request:    r,
	}, nil
}

func (u *upstream) requests() []*http.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*http.Request(nil), u.seen...)
}

func newTestProxy(t *testing.T) (*Proxy, *upstream, *metrics.Metrics) {
	t.Helper()
	cache, err := lru.New(64)
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	up := &upstream{}
	p := New(Options{
		Matcher:   matcher.New(cache, bloom.NewFactory(), 0.01),
		Metrics:   m,
		Logger:    log.NewNoopLogger(),
		Transport: up,
	})
	return p, up, m
}

// redirector mimics the blocker's callback: navigate the tab, cancel.
func redirector(p *Proxy) domain.InterceptFunc {
	return func(d domain.RequestDetails) domain.Decision {
		target := "http://127.0.0.1:8118/resources/redirect.html?" + url.Values{"target": {d.URL}}.Encode()
		_ = p.Navigate(context.Background(), d.TabID, d.RequestID, target)
		return domain.Decision{Cancel: true}
	}
}

func mainFrameFilter(patterns ...string) domain.RequestFilter {
	return domain.RequestFilter{Patterns: patterns, ResourceTypes: []domain.ResourceType{domain.ResourceMainFrame}}
}

func navigation(target string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Header.Set("Sec-Fetch-Dest", "document")
	return r
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		method string
		dest   string
		accept string
		want   domain.ResourceType
	}{
		{"document", http.MethodGet, "document", "", domain.ResourceMainFrame},
		{"document post", http.MethodPost, "Document", "", domain.ResourceMainFrame},
		{"iframe", http.MethodGet, "iframe", "text/html", domain.ResourceSubFrame},
		{"frame", http.MethodGet, "frame", "", domain.ResourceSubFrame},
		{"image", http.MethodGet, "image", "text/html", domain.ResourceOther},
		{"legacy html get", http.MethodGet, "", "text/html,application/xhtml+xml", domain.ResourceMainFrame},
		{"legacy html post", http.MethodPost, "", "text/html", domain.ResourceOther},
		{"legacy json", http.MethodGet, "", "application/json", domain.ResourceOther},
		{"connect", http.MethodConnect, "document", "text/html", domain.ResourceOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, "http://a.com/", nil)
			if tc.dest != "" {
				r.Header.Set("Sec-Fetch-Dest", tc.dest)
			}
			if tc.accept != "" {
				r.Header.Set("Accept", tc.accept)
			}
			assert.Equal(t, tc.want, Classify(r))
		})
	}
}

func TestTabID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://a.com/", nil)
	r.RemoteAddr = "10.0.0.5:51234"
	assert.Equal(t, "10.0.0.5", TabID(r))

	r.Header.Set(TabHeader, " tab-3 ")
	assert.Equal(t, "tab-3", TabID(r))
}

func TestProxy_RedirectsMatchingMainFrame(t *testing.T) {
	p, up, m := newTestProxy(t)
	require.NoError(t, p.Register(mainFrameFilter("*://*.a.com/*"), redirector(p)))

	w := httptest.NewRecorder()
	p.ServeHTTP(w, navigation("http://www.a.com/page?q=1"))

	assert.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/resources/redirect.html", loc.Path)
	assert.Equal(t, "http://www.a.com/page?q=1", loc.Query().Get("target"))
	assert.Empty(t, up.requests(), "the original request never reaches upstream")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("main_frame", "redirected")))
}

func TestProxy_PassesSubResourcesAndOtherHosts(t *testing.T) {
	p, up, m := newTestProxy(t)
	require.NoError(t, p.Register(mainFrameFilter("*://*.a.com/*"), redirector(p)))

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "http://a.com/logo.png", nil),
		navigation("http://b.com/"),
		navigation("http://nota.com/"),
	} {
		w := httptest.NewRecorder()
		p.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, r.URL.String())
		assert.Equal(t, "upstream", w.Body.String())
	}
	assert.Len(t, up.requests(), 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("other", "pass")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("main_frame", "pass")))
}

func TestProxy_CancelWithoutNavigationIsForbidden(t *testing.T) {
	p, up, _ := newTestProxy(t)
	require.NoError(t, p.Register(mainFrameFilter("*://*.a.com/*"), func(domain.RequestDetails) domain.Decision {
		return domain.Decision{Cancel: true}
	}))

	w := httptest.NewRecorder()
	p.ServeHTTP(w, navigation("http://a.com/"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, up.requests())
}

func TestProxy_AllowDecisionForwards(t *testing.T) {
	p, up, _ := newTestProxy(t)
	var got domain.RequestDetails
	require.NoError(t, p.Register(mainFrameFilter("*://*.a.com/*"), func(d domain.RequestDetails) domain.Decision {
		got = d
		return domain.Decision{}
	}))

	r := navigation("http://a.com/x")
	r.Header.Set(TabHeader, "tab-1")
	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.RequestDetails{TabID: "tab-1", URL: "http://a.com/x", Method: http.MethodGet, ResourceType: domain.ResourceMainFrame}, got)
	reqs := up.requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Header.Get(TabHeader), "tab header is not forwarded")
}

func TestProxy_RegisterInvalidPatternKeepsPrevious(t *testing.T) {
	p, _, m := newTestProxy(t)
	require.NoError(t, p.Register(mainFrameFilter("*://*.a.com/*"), redirector(p)))

	err := p.Register(mainFrameFilter("*://*.bad host/*"), redirector(p))
	assert.ErrorIs(t, err, domain.ErrInvalidPattern)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Patterns))

	w := httptest.NewRecorder()
	p.ServeHTTP(w, navigation("http://a.com/"))
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestProxy_RegisterNilCallback(t *testing.T) {
	p, _, _ := newTestProxy(t)
	assert.Error(t, p.Register(mainFrameFilter("*://*.a.com/*"), nil))
	assert.False(t, p.Registered())
}

func TestProxy_Unregister(t *testing.T) {
	p, up, m := newTestProxy(t)
	p.Unregister() // no-op when nothing is registered
	require.NoError(t, p.Register(mainFrameFilter("*://*.a.com/*", "*://*.b.com/*"), redirector(p)))
	assert.True(t, p.Registered())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Patterns))

	p.Unregister()
	assert.False(t, p.Registered())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Patterns))

	w := httptest.NewRecorder()
	p.ServeHTTP(w, navigation("http://a.com/"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, up.requests(), 1)
}

func TestProxy_ActiveTab(t *testing.T) {
	p, _, _ := newTestProxy(t)
	ctx := context.Background()
	_, err := p.ActiveTab(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveTab)

	r := navigation("http://www.b.com/article")
	r.Header.Set(TabHeader, "7")
	p.ServeHTTP(httptest.NewRecorder(), r)
	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://cdn.c.com/x.js", nil))

	tab, err := p.ActiveTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Tab{ID: "7", URL: "http://www.b.com/article"}, tab, "sub-resources do not change the active tab")
}

func TestProxy_NavigateUnknownTab(t *testing.T) {
	p, _, _ := newTestProxy(t)
	err := p.Navigate(context.Background(), "nobody", "1", "/x")
	assert.ErrorIs(t, err, domain.ErrUnknownTab)
}

// Two tabs behind one client address share a tab ID. Each held navigation
// must still be answered with its own notice URL.
func TestProxy_OverlappingNavigationsFromOneClient(t *testing.T) {
	p, _, _ := newTestProxy(t)
	bothHeld := make(chan struct{})
	var arrived sync.WaitGroup
	arrived.Add(2)
	require.NoError(t, p.Register(mainFrameFilter("*://*.a.com/*", "*://*.b.com/*"), func(d domain.RequestDetails) domain.Decision {
		target := "/resources/redirect.html?" + url.Values{"target": {d.URL}}.Encode()
		assert.NoError(t, p.Navigate(context.Background(), d.TabID, d.RequestID, target))
		arrived.Done()
		<-bothHeld
		return domain.Decision{Cancel: true}
	}))

	targets := []string{"http://a.com/", "http://b.com/"}
	recorders := make([]*httptest.ResponseRecorder, len(targets))
	var served sync.WaitGroup
	for i, target := range targets {
		served.Add(1)
		go func() {
			defer served.Done()
			r := navigation(target)
			r.RemoteAddr = "10.0.0.5:40000"
			recorders[i] = httptest.NewRecorder()
			p.ServeHTTP(recorders[i], r)
		}()
	}
	arrived.Wait()
	close(bothHeld)
	served.Wait()

	for i, target := range targets {
		require.Equal(t, http.StatusFound, recorders[i].Code)
		loc, err := url.Parse(recorders[i].Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, target, loc.Query().Get("target"))
	}
}

func TestProxy_NavigateRejectsMismatchedTab(t *testing.T) {
	p, _, _ := newTestProxy(t)
	var navErr error
	require.NoError(t, p.Register(mainFrameFilter("*://*.a.com/*"), func(d domain.RequestDetails) domain.Decision {
		navErr = p.Navigate(context.Background(), "other-tab", d.RequestID, "/x")
		return domain.Decision{Cancel: true}
	}))

	w := httptest.NewRecorder()
	r := navigation("http://a.com/")
	r.Header.Set(TabHeader, "tab-1")
	p.ServeHTTP(w, r)
	assert.ErrorIs(t, navErr, domain.ErrUnknownTab)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProxy_NoticePage(t *testing.T) {
	p, _, _ := newTestProxy(t)

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resources/redirect.html?target="+url.QueryEscape("http://a.com/<x>"), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "http://a.com/&lt;x&gt;")

	w = httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/resources/redirect.html", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxy_UpstreamFailureIsBadGateway(t *testing.T) {
	cache, err := lru.New(0)
	require.NoError(t, err)
	p := New(Options{
		Matcher: matcher.New(cache, nil, 0),
		Logger:  log.NewNoopLogger(),
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, io.ErrUnexpectedEOF
		}),
	})
	w := httptest.NewRecorder()
	p.ServeHTTP(w, navigation("http://a.com/"))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestProxy_ConnectTunnel(t *testing.T) {
	echo, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer echo.Close()
	go func() {
		c, err := echo.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = io.Copy(c, c)
	}()

	p, _, m := newTestProxy(t)
	require.NoError(t, p.Register(domain.RequestFilter{Patterns: []string{"*://*/*"}}, redirector(p)))
	srv := httptest.NewServer(p)
	defer srv.Close()

	conn, err := net.DialTimeout("tcp", srv.Listener.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	target := echo.Addr().String()
	_, err = io.WriteString(conn, "CONNECT "+target+" HTTP/1.1\r\nHost: "+target+"\r\n\r\n")
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodConnect})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = io.WriteString(conn, "ping")
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(br, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("other", "tunnel")))
}

func TestProxy_ConnectDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p, _, _ := newTestProxy(t)
	srv := httptest.NewServer(p)
	defer srv.Close()

	conn, err := net.DialTimeout("tcp", srv.Listener.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = io.WriteString(conn, "CONNECT "+addr+" HTTP/1.1\r\nHost: "+addr+"\r\n\r\n")
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: http.MethodConnect})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
