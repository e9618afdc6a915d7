package sitelist

import (
	"slices"
	"sync"
)

// Notifier fans list changes out to subscribed observers. Each delivery runs
// on its own goroutine, so a slow observer never holds up the writer.
type Notifier struct {
	mu        sync.Mutex
	next      uint64
	observers map[uint64]Observer
	closed    bool
	inflight  sync.WaitGroup
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{observers: make(map[uint64]Observer)}
}

// Subscribe registers o. The returned func removes it and is safe to call
// more than once.
func (n *Notifier) Subscribe(o Observer) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.observers[id] = o
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.observers, id)
			n.mu.Unlock()
		})
	}
}

// Publish delivers c to every current observer. Each observer gets its own
// copy of the site slice. Changes published after Close are dropped.
func (n *Notifier) Publish(c Change) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	targets := make([]Observer, 0, len(n.observers))
	for _, o := range n.observers {
		targets = append(targets, o)
	}
	// Add under mu so it is ordered before the Wait in Close.
	n.inflight.Add(len(targets))
	n.mu.Unlock()

	for _, o := range targets {
		go func(o Observer, c Change) {
			defer n.inflight.Done()
			o(c)
		}(o, Change{Sites: slices.Clone(c.Sites), At: c.At})
	}
}

// Wait blocks until every delivery started so far has returned.
func (n *Notifier) Wait() {
	n.inflight.Wait()
}

// Close stops further deliveries and waits for the in-flight ones.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.Wait()
}
