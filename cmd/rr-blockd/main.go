package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-block/internal/block/common/clock"
	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/common/metrics"
	"github.com/haukened/rr-block/internal/block/config"
	"github.com/haukened/rr-block/internal/block/gateways/host"
	"github.com/haukened/rr-block/internal/block/gateways/indicator"
	"github.com/haukened/rr-block/internal/block/gateways/panel"
	"github.com/haukened/rr-block/internal/block/gateways/proxy"
	"github.com/haukened/rr-block/internal/block/gateways/transport"
	"github.com/haukened/rr-block/internal/block/repos/matcher"
	"github.com/haukened/rr-block/internal/block/repos/matcher/bloom"
	"github.com/haukened/rr-block/internal/block/repos/matcher/lru"
	"github.com/haukened/rr-block/internal/block/repos/sitelist"
	"github.com/haukened/rr-block/internal/block/repos/sitelist/bolt"
	"github.com/haukened/rr-block/internal/block/repos/sitelist/memory"
	"github.com/haukened/rr-block/internal/block/repos/sitelist/redisstore"
	"github.com/haukened/rr-block/internal/block/repos/sitelist/seed"
	"github.com/haukened/rr-block/internal/block/services/blocker"
	"github.com/haukened/rr-block/internal/block/services/router"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-blockd"

	defaultShutdownTimeout = 10 * time.Second
	defaultStartupTimeout  = 10 * time.Second
)

// Application holds all the components of the blocker daemon
type Application struct {
	config      *config.AppConfig
	store       sitelist.Store
	controller  *blocker.Controller
	proxy       transport.ServerTransport
	panel       transport.ServerTransport
	proxyRoutes http.Handler
	panelRoutes http.Handler
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":       version,
		"env":           cfg.Env,
		"log_level":     cfg.LogLevel,
		"proxy_addr":    cfg.ProxyAddr,
		"panel_addr":    cfg.PanelAddr,
		"store_backend": cfg.StoreBackend,
		"cache_size":    cfg.CacheSize,
	}, "Starting "+appName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Failed to build application")
	}

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Server failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together. The
// blocker is initialized before it returns, so a returned Application is
// already ON.
func buildApplication(ctx context.Context, cfg *config.AppConfig, reg *prometheus.Registry) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	startCtx, cancel := context.WithTimeout(ctx, defaultStartupTimeout)
	defer cancel()

	store, err := buildStore(startCtx, cfg, clk, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build list store: %w", err)
	}

	if cfg.SeedFile != "" {
		if err := applySeed(startCtx, cfg.SeedFile, store); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	lookup, err := buildMatcher(cfg, reg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build matcher: %w", err)
	}

	proxyHandler := proxy.New(proxy.Options{
		Matcher:    lookup,
		Metrics:    m,
		Logger:     logger,
		NoticePath: blocker.NoticePath,
	})
	adapter := host.NewHost(host.HostOptions{
		Store:     store,
		Proxy:     proxyHandler,
		Indicator: indicator.New(m, logger),
	})

	controller := blocker.New(blocker.Options{
		Host:       adapter,
		Logger:     logger,
		NoticeBase: cfg.NoticeBase,
	})
	if err := controller.Initialize(startCtx); err != nil {
		controller.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize blocker: %w", err)
	}

	messages := router.NewRouter(router.RouterOptions{
		Controller: controller,
		Tabs:       adapter,
		Logger:     logger,
	})

	return &Application{
		config:      cfg,
		store:       store,
		controller:  controller,
		proxy:       transport.NewHTTPTransport("proxy", cfg.ProxyAddr, logger),
		panel:       transport.NewHTTPTransport("panel", cfg.PanelAddr, logger),
		proxyRoutes: proxyHandler,
		panelRoutes: panel.NewRouter(panel.Options{
			Dispatcher: messages,
			Sites:      adapter,
			Gatherer:   reg,
			Logger:     logger,
		}),
	}, nil
}

// buildStore opens the configured blocklist backend.
func buildStore(ctx context.Context, cfg *config.AppConfig, clk clock.Clock, m *metrics.Metrics, logger log.Logger) (sitelist.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Warn(nil, "Using in-memory blocklist; changes are lost on exit")
		return memory.New(memory.Options{Clock: clk, Metrics: m}), nil
	case "bolt":
		log.Info(map[string]any{"path": cfg.BoltPath}, "Opening bolt blocklist")
		return bolt.New(cfg.BoltPath, bolt.Options{Clock: clk, Metrics: m})
	case "redis":
		log.Info(map[string]any{"addr": cfg.RedisAddr, "key": cfg.RedisKey}, "Connecting redis blocklist")
		return redisstore.New(ctx, redisstore.Options{
			Addr:    cfg.RedisAddr,
			Key:     cfg.RedisKey,
			Channel: cfg.RedisChannel,
			Clock:   clk,
			Logger:  logger,
			Metrics: m,
		})
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}

// applySeed stores the seed file's sites when no blocklist exists yet.
func applySeed(ctx context.Context, path string, store sitelist.Store) error {
	sites, err := seed.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load seed file: %w", err)
	}
	written, err := seed.Apply(ctx, store, sites)
	if err != nil {
		return fmt.Errorf("failed to apply seed file: %w", err)
	}
	log.Info(map[string]any{
		"path":    path,
		"sites":   len(sites),
		"written": written,
	}, "Seed file processed")
	return nil
}

// buildMatcher creates the pattern matcher with its cache and prefilter, and
// exports the cache statistics on reg.
func buildMatcher(cfg *config.AppConfig, reg prometheus.Registerer) (*matcher.Matcher, error) {
	cacheSize := cfg.CacheSize
	if cacheSize > uint(^uint(0)>>1) {
		return nil, fmt.Errorf("cache size too large: %d (max %d)", cacheSize, ^uint(0)>>1)
	}
	cache, err := lru.New(int(cacheSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	metrics.RegisterCache(reg, cache)
	log.Info(map[string]any{
		"type":          "LRU",
		"size":          cfg.CacheSize,
		"bloom_fp_rate": cfg.BloomFPRate,
	}, "Matcher configured")
	return matcher.New(cache, bloom.NewFactory(), cfg.BloomFPRate), nil
}

// Run serves the proxy and the panel until ctx is cancelled or either
// listener fails, then shuts both down.
func (app *Application) Run(ctx context.Context) error {
	defer app.close()

	if err := app.proxy.Start(ctx, app.proxyRoutes); err != nil {
		return fmt.Errorf("failed to start proxy: %w", err)
	}
	if err := app.panel.Start(ctx, app.panelRoutes); err != nil {
		app.shutdown()
		return fmt.Errorf("failed to start panel: %w", err)
	}

	log.Info(map[string]any{
		"proxy": app.proxy.Address(),
		"panel": app.panel.Address(),
	}, "Blocker started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(app.proxy.Wait)
	g.Go(app.panel.Wait)
	g.Go(func() error {
		<-gctx.Done()
		log.Info(nil, "Shutdown initiated")
		return app.shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout.String()}, "Shutdown timeout exceeded")
	}
	return err
}

// shutdown stops both listeners, draining in-flight requests.
func (app *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	return errors.Join(app.proxy.Stop(ctx), app.panel.Stop(ctx))
}

func (app *Application) close() {
	app.controller.Close()
	if err := app.store.Close(); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Error closing list store")
	}
}
