package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// tunnel relays a CONNECT request as an opaque byte stream. Tunneled
// traffic is never inspected.
func (p *Proxy) tunnel(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "tunneling not supported", http.StatusInternalServerError)
		return
	}

	dialCtx, cancel := context.WithTimeout(r.Context(), p.dialTimeout)
	defer cancel()
	var d net.Dialer
	upstream, err := d.DialContext(dialCtx, "tcp", r.Host)
	if err != nil {
		p.logger.Warn(map[string]any{"host": r.Host, "error": err.Error()}, "Tunnel dial failed")
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}

	client, buf, err := hj.Hijack()
	if err != nil {
		_ = upstream.Close()
		p.logger.Error(map[string]any{"error": err.Error()}, "Hijack failed")
		return
	}
	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		_ = client.Close()
		_ = upstream.Close()
		return
	}

	var g errgroup.Group
	// Bytes the client sent ahead of the handshake reply sit in buf.
	g.Go(func() error { return relay(upstream, buf.Reader, client) })
	g.Go(func() error { return relay(client, upstream, upstream) })
	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		p.logger.Debug(map[string]any{"host": r.Host, "error": err.Error()}, "Tunnel closed with error")
	}
	_ = client.Close()
	_ = upstream.Close()
}

// relay copies src to dst, then half-closes dst's write side (or closes it)
// so the peer sees EOF. owner is closed on failure to unblock the other
// direction.
func relay(dst net.Conn, src io.Reader, owner net.Conn) error {
	_, err := io.Copy(dst, src)
	if cw, ok := dst.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	} else {
		_ = dst.Close()
	}
	if err != nil {
		_ = owner.Close()
	}
	return err
}
