// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the perfkit server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"perfkit/config"
	"perfkit/internal/batcher"
	"perfkit/internal/cache"
	"perfkit/internal/chart"
	"perfkit/internal/httpclient"
	"perfkit/internal/monitor"
	"perfkit/internal/observability"
	"perfkit/internal/refresh"
	"perfkit/internal/server"
	"perfkit/internal/storage"
	"perfkit/internal/surface"
	"perfkit/internal/table"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config    *config.Config
	logger    *slog.Logger
	toolkit   *Toolkit
	store     cache.Store
	frames    *batcher.FrameScheduler
	refresher *refresh.Refresher
	registry  *prometheus.Registry
	server    *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig is the loaded application configuration.
	AppConfig *config.Config

	// Logger is used by every component (defaults to slog.Default()).
	Logger *slog.Logger

	// HTTPClient performs source fetches (defaults to httpclient.NewDefaultHTTPClient()).
	HTTPClient *http.Client
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	appCfg := cfg.AppConfig
	if err := appCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}

	app := &App{
		config:   appCfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(app.registry)

	store, err := openStore(ctx, appCfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	app.store = store

	doc := surface.NewDocument()
	app.frames = batcher.NewFrameScheduler(appCfg.Batcher.FrameInterval, logger)
	b := batcher.New(app.frames, metrics)

	app.toolkit = &Toolkit{
		Document: doc,
		Fetcher: cache.NewFetcher(store, cache.Config{
			TTL:    appCfg.Cache.TTL,
			Client: client,
			Hooks:  metrics,
			Logger: logger,
		}),
		Batcher: b,
		Tables:  table.NewRenderer(doc, b, appCfg.Table.VisibleRows, logger),
		Charts:  chart.NewUpdater(doc, b, chart.NewSVGEngine(appCfg.Chart.Width, appCfg.Chart.Height), logger),
		Monitor: monitor.New(logger, monitor.WithHooks(metrics)),
	}

	sources := make([]refresh.Source, 0, len(appCfg.Sources))
	for _, s := range appCfg.Sources {
		doc.Mount(s.ID)
		sources = append(sources, refresh.Source{ID: s.ID, URL: s.URL, Kind: s.Kind, Interval: s.Interval})
	}
	app.refresher, err = refresh.New(sources, refresh.Config{
		Fetcher: app.toolkit.Fetcher,
		Tables:  app.toolkit.Tables,
		Charts:  app.toolkit.Charts,
		Tracker: app.toolkit.Monitor,
		Logger:  logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to configure sources: %w", err), store.Close())
	}

	app.server = server.New(server.Deps{
		Document:  doc,
		Tables:    app.toolkit.Tables,
		Charts:    app.toolkit.Charts,
		Spans:     app.toolkit.Monitor,
		Refresher: app.refresher,
		Logger:    logger,
	}, &server.Config{
		APIKey:          appCfg.Server.APIKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
		Gatherer:        app.registry,
		Logger:          logger,
	})

	app.logStartupInfo()
	return app, nil
}

func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "redis":
		return cache.NewRedisStore(ctx, cache.RedisConfig{
			URL:        cfg.RedisURL,
			Prefix:     cfg.RedisPrefix,
			TTL:        cfg.TTL,
			MaxEntries: cfg.MaxEntries,
		})
	case storage.TypeSQLite, storage.TypePostgreSQL:
		db, err := storage.OpenSQL(ctx, storage.Config{
			Type:   cfg.Backend,
			SQLite: storage.SQLiteConfig{Path: cfg.SQLitePath},
			PostgreSQL: storage.PostgreSQLConfig{
				URL:      cfg.PostgresURL,
				MaxConns: cfg.PostgresMaxConns,
			},
		})
		if err != nil {
			return nil, err
		}
		s, err := cache.NewSQLStore(ctx, db, cfg.MaxEntries)
		if err != nil {
			return nil, errors.Join(err, db.Close())
		}
		return s, nil
	case storage.TypeMongoDB:
		st, err := storage.NewMongoDB(ctx, storage.MongoDBConfig{
			URL:      cfg.MongoURL,
			Database: cfg.MongoDatabase,
		})
		if err != nil {
			return nil, err
		}
		s, err := cache.NewMongoStore(ctx, st, cfg.MaxEntries)
		if err != nil {
			return nil, errors.Join(err, st.Close())
		}
		return s, nil
	default:
		if cfg.SnapshotFile != "" {
			return cache.OpenLocalStore(cfg.MaxEntries, cfg.SnapshotFile)
		}
		return cache.NewLocalStore(cfg.MaxEntries), nil
	}
}

// Toolkit returns the component bundle.
func (a *App) Toolkit() *Toolkit {
	return a.toolkit
}

// Handler returns the HTTP handler, e.g. for httptest.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the source refresher and the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	a.refresher.Start()

	a.logger.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			a.logger.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown, honoring the passed context timeout/cancellation.
// 2. Source refresher stop (cancels in-flight fetches).
// 3. Frame scheduler stop and a final flush of pending updates.
// 4. Chart instances disposed.
// 5. Cache store close (writes the local snapshot, closes Redis).
//
// Shutdown is idempotent and safe for repeated calls; after the first call, subsequent calls are no-ops.
// It attempts every step, aggregates failures, and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Shutdown HTTP server first (stop accepting new updates)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2. Stop background refreshes
	if a.refresher != nil {
		a.refresher.Stop()
	}

	// 3. Stop frames and apply what is still queued
	if a.frames != nil {
		a.frames.Stop()
	}
	if a.toolkit != nil {
		if err := flushPending(a.toolkit.Batcher); err != nil {
			a.logger.Error("final flush error", "error", err)
			errs = append(errs, err)
		}

		// 4. Release chart instances
		a.toolkit.Charts.Registry().DisposeAll()
	}

	// 5. Close the cache store
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("cache store close error", "error", err)
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func flushPending(b *batcher.Batcher) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("final flush: update panicked: %v", r)
		}
	}()
	b.Flush()
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	a.logger.Info("cache configured",
		"backend", cfg.Cache.Backend,
		"ttl", cfg.Cache.TTL,
		"max_entries", cfg.Cache.MaxEntries,
	)
	a.logger.Info("batcher configured", "frame_interval", a.frames.Interval())

	if cfg.Server.APIKey != "" {
		a.logger.Info("authentication enabled", "mode", "api_key")
	} else {
		a.logger.Warn("authentication disabled, write endpoints are public")
	}

	if cfg.Metrics.Enabled {
		a.logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		a.logger.Info("prometheus metrics disabled")
	}

	if n := len(cfg.Sources); n > 0 {
		a.logger.Info("sources configured", "count", n)
	}
}
