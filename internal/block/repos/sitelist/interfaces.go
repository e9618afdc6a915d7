// Package sitelist persists the blocklist under the "sites" key and tells
// observers when it changes.
package sitelist

import (
	"context"
	"time"
)

// Change describes a persisted write of the blocklist.
type Change struct {
	Sites []string
	At    time.Time
}

// Observer receives list changes. Observers run on their own goroutine and
// must not assume any ordering relative to the writer.
type Observer func(Change)

// Store is a key-value backed blocklist.
//   - Get returns the list and whether the key exists at all
//   - Set replaces the list and eventually notifies observers
//   - Subscribe registers an observer and returns its unsubscribe func
type Store interface {
	Get(ctx context.Context) ([]string, bool, error)
	Set(ctx context.Context, sites []string) error
	Subscribe(o Observer) (unsubscribe func())
	Close() error
}
