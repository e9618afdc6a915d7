// Package panel is the HTTP surface the UI panel talks to.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

const maxBodyBytes = 4 << 10

// Dispatcher answers panel messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.Message) (any, error)
}

// SiteLister reads the stored blocklist.
type SiteLister interface {
	GetList(ctx context.Context) ([]string, bool, error)
}

type Options struct {
	Dispatcher Dispatcher
	Sites      SiteLister
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   log.Logger
}

type handler struct {
	dispatcher Dispatcher
	sites      SiteLister
	logger     log.Logger
}

// NewRouter builds the panel routes.
func NewRouter(opts Options) http.Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	h := &handler{
		dispatcher: opts.Dispatcher,
		sites:      opts.Sites,
		logger:     log.WithComponent(opts.Logger, "panel"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health-check", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", h.handleMessage)
		r.Get("/sites", h.handleSites)
	})
	return r
}

func (h *handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), msg)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error(map[string]any{"type": msg.Type, "error": err.Error()}, "Message failed")
		}
		writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (h *handler) handleSites(w http.ResponseWriter, r *http.Request) {
	sites, _, err := h.sites.GetList(r.Context())
	if err != nil {
		h.logger.Error(map[string]any{"error": err.Error()}, "Reading blocklist failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sites == nil {
		sites = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// statusFor maps router errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnrecognizedMessageType), errors.Is(err, domain.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoActiveTab):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug(map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}, "Panel request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
