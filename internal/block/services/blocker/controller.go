// Package blocker owns the on/off state of the content blocker and keeps the
// host's request interceptor registered for the stored blocklist.
package blocker

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// NoticePath is where blocked navigations are sent, relative to the notice base.
const NoticePath = "/resources/redirect.html"

// Options configures a Controller.
type Options struct {
	Host   Host
	Logger log.Logger
	// NoticeBase is prepended to NoticePath. Empty yields a relative URL.
	NoticeBase string
}

// Controller is the blocker's state object. The zero status is OFF; status
// lives only in memory and resets on every process start.
//
// Activate, Deactivate and the storage observer's re-activation all run
// under one lock, so registrations never interleave. Site edits are
// serialized separately so concurrent adds and removes do not lose writes.
type Controller struct {
	host       Host
	logger     log.Logger
	noticeBase string

	mu          sync.Mutex
	status      domain.Status
	unsubscribe func()

	listMu sync.Mutex
}

// New constructs a Controller in the OFF state.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Controller{
		host:       opts.Host,
		logger:     log.WithComponent(opts.Logger, "blocker"),
		noticeBase: strings.TrimRight(opts.NoticeBase, "/"),
	}
}

// Initialize creates an empty blocklist when none is stored, then activates.
func (c *Controller) Initialize(ctx context.Context) error {
	_, ok, err := c.host.GetList(ctx)
	if err != nil {
		return fmt.Errorf("read blocklist: %w", err)
	}
	if !ok {
		if err := c.host.SetList(ctx, []string{}); err != nil {
			return fmt.Errorf("create blocklist: %w", err)
		}
		c.logger.Info(nil, "Created empty blocklist")
	}
	return c.Activate(ctx)
}

// Activate registers the interceptor for the current blocklist and switches
// the blocker ON. An empty list leaves no interceptor registered. A failed
// registration is returned as is; the previous registration is already gone
// by then and the status is unchanged. Once registration succeeds the status
// is committed ON even if updating the indicator then fails; that error is
// still returned.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activateLocked(ctx)
}

func (c *Controller) activateLocked(ctx context.Context) error {
	sites, _, err := c.host.GetList(ctx)
	if err != nil {
		return fmt.Errorf("read blocklist: %w", err)
	}
	patterns := domain.PatternsForList(sites)

	c.host.UnregisterInterceptor()
	if len(patterns) > 0 {
		filter := domain.RequestFilter{
			Patterns:      patterns,
			ResourceTypes: []domain.ResourceType{domain.ResourceMainFrame},
		}
		if err := c.host.RegisterInterceptor(filter, c.Redirect); err != nil {
			return fmt.Errorf("register interceptor: %w", err)
		}
	}

	if c.unsubscribe == nil {
		c.unsubscribe = c.host.OnListChanged(c.onListChanged)
	}

	c.status = domain.StatusOn
	if err := c.host.SetIndicator(ctx, domain.IndicatorOn); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	c.logger.Info(map[string]any{"patterns": len(patterns)}, "Blocker activated")
	return nil
}

// Deactivate removes the interceptor and switches the blocker OFF. It is a
// no-op beyond the indicator update when already OFF. The storage observer
// stays subscribed and ignores changes while OFF. As with Activate, an
// indicator failure is returned after the status is committed.
func (c *Controller) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.host.UnregisterInterceptor()
	c.status = domain.StatusOff
	if err := c.host.SetIndicator(ctx, domain.IndicatorOff); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	c.logger.Info(nil, "Blocker deactivated")
	return nil
}

// Status returns the current on/off state.
func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// onListChanged re-activates when the list changes while ON.
func (c *Controller) onListChanged(sites []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != domain.StatusOn {
		c.logger.Debug(map[string]any{"sites": len(sites)}, "List changed while off; ignoring")
		return
	}
	if err := c.activateLocked(context.Background()); err != nil {
		c.logger.Error(map[string]any{"error": err}, "Re-activation after list change failed")
	}
}

// AddSite appends site to the blocklist. Duplicates are kept. The
// interceptor is refreshed by the storage observer, not here.
func (c *Controller) AddSite(ctx context.Context, site string) error {
	c.listMu.Lock()
	defer c.listMu.Unlock()

	sites, _, err := c.host.GetList(ctx)
	if err != nil {
		return fmt.Errorf("read blocklist: %w", err)
	}
	sites = append(sites, site)
	if err := c.host.SetList(ctx, sites); err != nil {
		return fmt.Errorf("write blocklist: %w", err)
	}
	c.logger.Info(map[string]any{"site": site, "sites": len(sites)}, "Site blocked")
	return nil
}

// RemoveSite removes the first exact occurrence of site. An absent site is
// not an error; the list is written back unchanged.
func (c *Controller) RemoveSite(ctx context.Context, site string) error {
	c.listMu.Lock()
	defer c.listMu.Unlock()

	sites, _, err := c.host.GetList(ctx)
	if err != nil {
		return fmt.Errorf("read blocklist: %w", err)
	}
	if i := slices.Index(sites, site); i >= 0 {
		sites = slices.Delete(sites, i, i+1)
		c.logger.Info(map[string]any{"site": site, "sites": len(sites)}, "Site allowed")
	} else {
		c.logger.Debug(map[string]any{"site": site}, "Site not in blocklist")
	}
	if sites == nil {
		sites = []string{}
	}
	if err := c.host.SetList(ctx, sites); err != nil {
		return fmt.Errorf("write blocklist: %w", err)
	}
	return nil
}

// Redirect is the interceptor callback. It navigates the originating tab to
// the notice page and cancels the original request.
func (c *Controller) Redirect(details domain.RequestDetails) domain.Decision {
	target := c.NoticeURL(details.URL)
	if err := c.host.NavigateTab(context.Background(), details.TabID, details.RequestID, target); err != nil {
		c.logger.Warn(map[string]any{"tab": details.TabID, "url": details.URL, "error": err}, "Tab navigation failed")
	} else {
		c.logger.Debug(map[string]any{"tab": details.TabID, "url": details.URL}, "Navigation redirected")
	}
	return domain.Decision{Cancel: true}
}

// NoticeURL builds the notice page URL carrying the original target,
// percent-encoded. Spaces become %20, not the form encoding's "+".
func (c *Controller) NoticeURL(original string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(original), "+", "%20")
	return c.noticeBase + NoticePath + "?target=" + escaped
}

// Close drops the storage observer.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}
