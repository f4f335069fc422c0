// Package sitemaps serves scalable XML sitemaps for a content site: an
// index plus per-feed documents for pages, tags, categories, users, custom
// taxonomies, news and one bucket per publishing day.
//
// Requests are dispatched on the basename of the request path, content is
// read from a SQLite store, and documents are rendered as Sitemap 0.9 XML
// with the Google image extension.
package sitemaps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// App is the central sitemaps application. It wires together the store,
// cache, generator, handlers and middleware.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Store     *Store
	Cache     Cache
	Generator *Generator
	Links     *Permalinks
	Hooks     Hooks
	Logger    *slog.Logger

	loginLimiter *LoginLimiter
	customRoutes []func(*App)
	now          func() time.Time
	ownsStore    bool
	closers      []func() error
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		now:    time.Now,
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}
	if a.Logger == nil {
		a.Logger = NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	}
	return a
}

// Init opens the store and cache, builds the generator and registers
// middleware and routes. Start calls it; tests and the CLI call it directly.
func (a *App) Init(ctx context.Context) error {
	if err := a.Config.Validate(); err != nil {
		return fmt.Errorf("sitemaps: invalid config: %w", err)
	}

	if a.Store == nil {
		store, err := NewStore(a.Config.DatabasePath)
		if err != nil {
			return fmt.Errorf("sitemaps: init store: %w", err)
		}
		a.Store = store
		a.ownsStore = true
	}

	if a.Cache == nil {
		c, err := a.newCache(ctx)
		if err != nil {
			return fmt.Errorf("sitemaps: init cache: %w", err)
		}
		a.Cache = c
	}

	a.Links = NewPermalinks(a.Config.URL, a.Config.Permalinks)
	a.Generator = NewGenerator(GeneratorConfig{
		Content:     a.Store,
		Links:       a.Links,
		Cache:       a.Cache,
		Hooks:       a.Hooks,
		Feeds:       a.Config.Feeds,
		CacheTTL:    a.Config.Cache.TTL,
		Stylesheets: !a.Config.DisableStylesheets,
		Now:         a.now,
		Logger:      a.Logger,
	})

	if a.Config.AdminEnabled() {
		a.loginLimiter = NewLoginLimiter(5, time.Minute)
		a.closers = append(a.closers, func() error {
			a.loginLimiter.Stop()
			return nil
		})
	}

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

func (a *App) newCache(ctx context.Context) (Cache, error) {
	switch a.Config.Cache.Backend {
	case CacheBackendRedis:
		rc, err := NewRedisCache(ctx, a.Config.Cache.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		a.Logger.Info("using redis cache", slog.String("addr", a.Config.Cache.Redis.Addr))
		return rc, nil
	default:
		return NewMemoryCache(), nil
	}
}

// Start initializes the app and serves HTTP until ctx is cancelled or a
// termination signal arrives, then shuts down gracefully.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	a.Logger.Info("configuration loaded",
		slog.String("site_url", a.Config.URL),
		slog.String("addr", a.Config.Addr),
		slog.String("database_path", a.Config.DatabasePath),
		slog.String("cache_backend", a.Config.Cache.Backend),
		slog.Bool("admin_enabled", a.Config.AdminEnabled()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("starting HTTP server", slog.String("address", a.Config.Addr))
		if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			a.Logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			a.Logger.Info("context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Echo.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		a.Logger.Error("application error", slog.String("error", err.Error()))
		return err
	}
	a.Logger.Info("server stopped")
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/robots.txt", a.handleRobots)
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.Static("/uploads", filepath.Join(a.Config.StaticDir, uploadsSubdir))

	if a.Config.AdminEnabled() {
		a.setupAdminRoutes()
	}

	// Everything else is dispatched on the request basename, so sitemaps
	// answer under any directory prefix.
	e.Match([]string{http.MethodGet, http.MethodHead}, "/*", a.handleSitemap)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.ownsStore && a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
