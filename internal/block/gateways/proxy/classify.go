package proxy

import (
	"net"
	"net/http"
	"strings"

	"github.com/haukened/rr-block/internal/block/domain"
)

// TabHeader lets a client name the tab a request belongs to. Without it the
// client address identifies the tab.
const TabHeader = "X-Tab-Id"

// Classify derives the resource type of a proxied request from its fetch
// metadata. CONNECT tunnels are opaque and always "other".
func Classify(r *http.Request) domain.ResourceType {
	if r.Method == http.MethodConnect {
		return domain.ResourceOther
	}
	switch strings.ToLower(r.Header.Get("Sec-Fetch-Dest")) {
	case "document":
		return domain.ResourceMainFrame
	case "iframe", "frame":
		return domain.ResourceSubFrame
	case "":
		// Clients without fetch metadata: an HTML GET is a page load.
		if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
			return domain.ResourceMainFrame
		}
	}
	return domain.ResourceOther
}

// TabID identifies the tab a request came from.
func TabID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(TabHeader)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
