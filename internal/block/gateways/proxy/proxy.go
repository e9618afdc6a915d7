// Package proxy is the request interceptor: an HTTP forward proxy that hands
// matching navigations to a registered callback and turns tab navigations
// into redirects.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/common/metrics"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/matcher"
)

const (
	verdictPass       = "pass"
	verdictRedirected = "redirected"
	verdictBlocked    = "blocked"
	verdictTunnel     = "tunnel"

	defaultNoticePath  = "/resources/redirect.html"
	defaultDialTimeout = 10 * time.Second
)

// Options configures a Proxy.
type Options struct {
	Matcher *matcher.Matcher
	Metrics *metrics.Metrics
	Logger  log.Logger
	// Transport forwards allowed requests. Nil uses a clone of
	// http.DefaultTransport that ignores proxy environment variables.
	Transport http.RoundTripper
	// NoticePath is served to direct requests. Defaults to
	// /resources/redirect.html.
	NoticePath  string
	DialTimeout time.Duration
}

// registration is the installed interceptor.
type registration struct {
	filter domain.RequestFilter
	fn     domain.InterceptFunc
}

// navSlot collects a navigation requested while one request is held.
type navSlot struct {
	tabID  string
	target string
}

// Proxy is an http.Handler. At most one interceptor is registered at a time.
type Proxy struct {
	matcher     *matcher.Matcher
	metrics     *metrics.Metrics
	logger      log.Logger
	forward     *httputil.ReverseProxy
	noticePath  string
	dialTimeout time.Duration

	mu  sync.RWMutex
	reg *registration

	seq atomic.Uint64

	tabsMu sync.Mutex
	active *domain.Tab
	// held maps request IDs of requests parked in the interceptor.
	held map[string]*navSlot
}

// New builds a Proxy with no interceptor registered.
func New(opts Options) *Proxy {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = nil
		opts.Transport = t
	}
	if opts.NoticePath == "" {
		opts.NoticePath = defaultNoticePath
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	p := &Proxy{
		matcher:     opts.Matcher,
		metrics:     opts.Metrics,
		logger:      log.WithComponent(opts.Logger, "proxy"),
		noticePath:  opts.NoticePath,
		dialTimeout: opts.DialTimeout,
		held:        make(map[string]*navSlot),
	}
	p.forward = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.Header.Del(TabHeader)
		},
		Transport: opts.Transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.Warn(map[string]any{"url": r.URL.String(), "error": err.Error()}, "Upstream request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	return p
}

// Register installs fn for requests selected by filter, replacing any
// previous interceptor. Malformed patterns are rejected with an error
// wrapping domain.ErrInvalidPattern and leave the previous state in place.
func (p *Proxy) Register(filter domain.RequestFilter, fn domain.InterceptFunc) error {
	if fn == nil {
		return fmt.Errorf("register interceptor: nil callback")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.matcher.Compile(filter.Patterns); err != nil {
		return err
	}
	p.reg = &registration{
		filter: domain.RequestFilter{
			Patterns:      slices.Clone(filter.Patterns),
			ResourceTypes: slices.Clone(filter.ResourceTypes),
		},
		fn: fn,
	}
	compiled := p.matcher.Len()
	p.metrics.Patterns.Set(float64(compiled))
	p.logger.Debug(map[string]any{"patterns": compiled}, "Interceptor registered")
	return nil
}

// Unregister removes the interceptor. It is a no-op when none is installed.
func (p *Proxy) Unregister() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reg == nil {
		return
	}
	p.reg = nil
	p.matcher.Clear()
	p.metrics.Patterns.Set(0)
	p.logger.Debug(nil, "Interceptor unregistered")
}

// Registered reports whether an interceptor is installed.
func (p *Proxy) Registered() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reg != nil
}

// ActiveTab returns the tab of the most recent main-frame navigation.
func (p *Proxy) ActiveTab(ctx context.Context) (domain.Tab, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tab{}, err
	}
	p.tabsMu.Lock()
	defer p.tabsMu.Unlock()
	if p.active == nil {
		return domain.Tab{}, domain.ErrNoActiveTab
	}
	return *p.active, nil
}

// Navigate sends tabID to target. Only a request currently held by the
// interceptor can be navigated; that request alone is answered with a
// redirect to target.
func (p *Proxy) Navigate(ctx context.Context, tabID, requestID, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.tabsMu.Lock()
	defer p.tabsMu.Unlock()
	slot, ok := p.held[requestID]
	if !ok || slot.tabID != tabID {
		return fmt.Errorf("%w: tab %q request %q", domain.ErrUnknownTab, tabID, requestID)
	}
	slot.target = target
	return nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.metrics.Requests.WithLabelValues(string(domain.ResourceOther), verdictTunnel).Inc()
		p.tunnel(w, r)
		return
	}
	if !r.URL.IsAbs() {
		p.serveDirect(w, r)
		return
	}

	rt := Classify(r)
	tabID := TabID(r)
	if rt == domain.ResourceMainFrame {
		p.setActive(domain.Tab{ID: tabID, URL: r.URL.String()})
	}

	if reg := p.selecting(r.URL, rt); reg != nil {
		details := domain.RequestDetails{
			TabID:        tabID,
			RequestID:    strconv.FormatUint(p.seq.Add(1), 10),
			URL:          r.URL.String(),
			Method:       r.Method,
			ResourceType: rt,
		}
		decision, target := p.intercept(reg, details)
		if decision.Cancel {
			if target != "" {
				p.metrics.Requests.WithLabelValues(string(rt), verdictRedirected).Inc()
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			p.metrics.Requests.WithLabelValues(string(rt), verdictBlocked).Inc()
			http.Error(w, "blocked", http.StatusForbidden)
			return
		}
	}

	p.metrics.Requests.WithLabelValues(string(rt), verdictPass).Inc()
	p.forward.ServeHTTP(w, r)
}

// selecting returns the registration if it selects the request.
func (p *Proxy) selecting(u *url.URL, rt domain.ResourceType) *registration {
	p.mu.RLock()
	reg := p.reg
	p.mu.RUnlock()
	if reg == nil || !reg.filter.Accepts(rt) {
		return nil
	}
	res := p.matcher.Match(u)
	if !res.Matched {
		return nil
	}
	p.logger.Debug(map[string]any{"url": u.String(), "pattern": res.Pattern}, "Request matched")
	return reg
}

// intercept holds the request while fn runs and returns any navigation fn
// asked for.
func (p *Proxy) intercept(reg *registration, details domain.RequestDetails) (domain.Decision, string) {
	slot := &navSlot{tabID: details.TabID}
	p.tabsMu.Lock()
	p.held[details.RequestID] = slot
	p.tabsMu.Unlock()

	decision := reg.fn(details)

	p.tabsMu.Lock()
	target := slot.target
	delete(p.held, details.RequestID)
	p.tabsMu.Unlock()
	return decision, target
}

func (p *Proxy) setActive(tab domain.Tab) {
	p.tabsMu.Lock()
	p.active = &tab
	p.tabsMu.Unlock()
}

// serveDirect answers requests addressed to the proxy itself.
func (p *Proxy) serveDirect(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != p.noticePath {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	renderNotice(w, r.URL.Query().Get("target"))
}
