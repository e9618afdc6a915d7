package router

import (
	"context"

	"github.com/haukened/rr-block/internal/block/domain"
)

// Controller is the subset of the blocker controller the router drives.
type Controller interface {
	Status() domain.Status
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	AddSite(ctx context.Context, site string) error
	RemoveSite(ctx context.Context, site string) error
}

// TabQuerier resolves the tab the panel is acting on.
type TabQuerier interface {
	QueryActiveTab(ctx context.Context) (domain.Tab, error)
}
