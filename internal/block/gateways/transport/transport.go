// Package transport runs the daemon's HTTP listeners. The proxy and the
// panel API each get their own transport; handlers never see sockets.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/haukened/rr-block/internal/block/common/log"
)

// ServerTransport is a listener that can be started, waited on and
// stopped gracefully.
type ServerTransport interface {
	// Start binds the address and begins serving handler in the background.
	Start(ctx context.Context, handler http.Handler) error
	// Wait blocks until serving ends. It returns nil after a graceful Stop.
	Wait() error
	// Stop drains in-flight requests until ctx expires.
	Stop(ctx context.Context) error
	// Address returns the bound address, or the configured one before Start.
	Address() string
}

const readHeaderTimeout = 10 * time.Second

// HTTPTransport serves an http.Handler on a TCP address.
type HTTPTransport struct {
	name   string
	addr   string
	logger log.Logger

	mu       sync.RWMutex
	running  bool
	server   *http.Server
	listener net.Listener
	done     chan error
}

// NewHTTPTransport creates a transport for addr. name tags its log lines.
func NewHTTPTransport(name, addr string, logger log.Logger) *HTTPTransport {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &HTTPTransport{name: name, addr: addr, logger: logger}
}

func (t *HTTPTransport) Start(ctx context.Context, handler http.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("%s transport already running", t.name)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.addr, err)
	}

	t.listener = ln
	t.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	t.done = make(chan error, 1)
	t.running = true

	t.logger.Info(map[string]any{
		"transport": t.name,
		"address":   ln.Addr().String(),
	}, "HTTP transport started")

	go func(srv *http.Server, done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
		close(done)
	}(t.server, t.done)

	return nil
}

func (t *HTTPTransport) Wait() error {
	t.mu.RLock()
	done := t.done
	t.mu.RUnlock()
	if done == nil {
		return fmt.Errorf("%s transport not started", t.name)
	}
	return <-done
}

func (t *HTTPTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false

	err := t.server.Shutdown(ctx)
	if err != nil {
		t.logger.Warn(map[string]any{
			"transport": t.name,
			"error":     err.Error(),
		}, "Graceful shutdown incomplete")
		_ = t.server.Close()
	}

	t.logger.Info(map[string]any{
		"transport": t.name,
		"address":   t.listener.Addr().String(),
	}, "HTTP transport stopped")

	return err
}

func (t *HTTPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

var _ ServerTransport = (*HTTPTransport)(nil)
