package blocker

import (
	"context"

	"github.com/haukened/rr-block/internal/block/domain"
)

// Host is everything the controller needs from its runtime. The daemon
// provides an adapter over the intercepting proxy and a list store; tests
// use an in-memory fake.
type Host interface {
	// RegisterInterceptor installs fn for requests selected by filter. It
	// replaces any previous registration. Malformed patterns fail with
	// domain.ErrInvalidPattern.
	RegisterInterceptor(filter domain.RequestFilter, fn domain.InterceptFunc) error
	// UnregisterInterceptor removes the current registration, if any.
	UnregisterInterceptor()

	// GetList returns the stored blocklist and whether the key exists.
	GetList(ctx context.Context) ([]string, bool, error)
	// SetList replaces the stored blocklist.
	SetList(ctx context.Context, sites []string) error
	// OnListChanged subscribes fn to list writes. fn runs asynchronously.
	OnListChanged(fn func(sites []string)) (unsubscribe func())

	// SetIndicator switches the visible on/off appearance.
	SetIndicator(ctx context.Context, ind domain.Indicator) error

	// QueryActiveTab returns the most recently navigated tab.
	QueryActiveTab(ctx context.Context) (domain.Tab, error)
	// NavigateTab sends the tab to url instead of its pending request
	// requestID. Other held requests of the same tab are not affected.
	NavigateTab(ctx context.Context, tabID, requestID, url string) error
}
