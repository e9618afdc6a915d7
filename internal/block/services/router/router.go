// Package router de-multiplexes panel messages onto the blocker controller.
package router

import (
	"context"
	"fmt"
	"net/url"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/common/utils"
	"github.com/haukened/rr-block/internal/block/domain"
)

// Router dispatches popup messages onto the blocker controller.
type Router struct {
	controller Controller
	tabs       TabQuerier
	logger     log.Logger
}

// RouterOptions configures a Router. Logger defaults to the global logger.
type RouterOptions struct {
	Controller Controller
	Tabs       TabQuerier
	Logger     log.Logger
}

// NewRouter builds a Router over the controller and tab querier in opts.
func NewRouter(opts RouterOptions) *Router {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Router{
		controller: opts.Controller,
		tabs:       opts.Tabs,
		logger:     log.WithComponent(opts.Logger, "router"),
	}
}

// Dispatch handles one message and returns its response value. Every
// controller call is awaited, so a true response means the change took
// effect; failures come back as errors instead.
func (r *Router) Dispatch(ctx context.Context, msg domain.Message) (any, error) {
	r.logger.Debug(map[string]any{"type": msg.Type, "parameter": msg.Parameter}, "Dispatching message")

	switch msg.Type {
	case domain.MsgGetCurrentDomain:
		host, err := r.activeHost(ctx)
		if err != nil {
			return nil, err
		}
		return utils.RegistrableDomain(host), nil

	case domain.MsgGetExtensionStatus:
		return r.controller.Status(), nil

	case domain.MsgUpdateExtensionStatus:
		status, err := domain.ParseStatus(msg.Parameter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidParameter, err)
		}
		if status == domain.StatusOn {
			err = r.controller.Activate(ctx)
		} else {
			err = r.controller.Deactivate(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("update status to %s: %w", status, err)
		}
		return true, nil

	case domain.MsgStartBlockingDomain:
		entry, err := r.activeEntry(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.controller.AddSite(ctx, entry); err != nil {
			return nil, fmt.Errorf("block %s: %w", entry, err)
		}
		return true, nil

	case domain.MsgStartAllowingDomain:
		entry, err := r.activeEntry(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.controller.RemoveSite(ctx, entry); err != nil {
			return nil, fmt.Errorf("allow %s: %w", entry, err)
		}
		return true, nil

	default:
		r.logger.Warn(map[string]any{"type": msg.Type}, "Unrecognized message type")
		return nil, fmt.Errorf("%w: %q", domain.ErrUnrecognizedMessageType, msg.Type)
	}
}

// activeHost returns the host name of the active tab's URL.
func (r *Router) activeHost(ctx context.Context) (string, error) {
	tab, err := r.tabs.QueryActiveTab(ctx)
	if err != nil {
		return "", fmt.Errorf("query active tab: %w", err)
	}
	u, err := url.Parse(tab.URL)
	if err != nil {
		return "", fmt.Errorf("%w: active tab url %q: %v", domain.ErrInvalidParameter, tab.URL, err)
	}
	return u.Hostname(), nil
}

// activeEntry returns the active tab's host as a BlockEntry.
func (r *Router) activeEntry(ctx context.Context) (string, error) {
	host, err := r.activeHost(ctx)
	if err != nil {
		return "", err
	}
	entry := domain.NormalizeEntry(host)
	if entry == "" {
		return "", fmt.Errorf("%w: active tab has no host name", domain.ErrInvalidParameter)
	}
	return entry, nil
}
