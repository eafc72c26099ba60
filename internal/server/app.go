// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/api"
	"github.com/JakeFAU/catalog-scraper/internal/config"
	"github.com/JakeFAU/catalog-scraper/internal/dispatcher"
	"github.com/JakeFAU/catalog-scraper/internal/gatekeeper"
	"github.com/JakeFAU/catalog-scraper/internal/logging"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/policy/hosts"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	gate      *gatekeeper.Gatekeeper
	dispatch  *dispatcher.Dispatcher
	apiServer *api.Server
	closers   []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	metrics.Init()

	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeAll(context.Background())
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database", cfg.Database.Backend),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("browser", cfg.Browser.Backend),
		zap.String("snapshots", cfg.Snapshots.Backend),
	)

	var checks []api.Option
	st, err := setupStores(ctx, app)
	if err != nil {
		return nil, err
	}
	checks = append(checks, st.checks...)

	redisClient, err := setupRedis(ctx, app)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		checks = append(checks, api.WithReadinessCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	queue, err := setupQueue(app, redisClient)
	if err != nil {
		return nil, err
	}
	cache := setupCache(app, redisClient)

	browser, err := setupBrowser(app)
	if err != nil {
		return nil, err
	}
	snapshots, err := setupSnapshots(ctx, app)
	if err != nil {
		return nil, err
	}

	app.dispatch = setupDispatcher(app, st, queue, browser, snapshots)
	app.gate = gatekeeper.New(st.jobs, cache, queue, clockFor(), gatekeeper.Config{
		Window:      cfg.DedupWindow(),
		CacheTTL:    cfg.CacheTTL(),
		CachePrefix: cfg.Dedup.CachePrefix,
		Hosts:       hosts.New(cfg.Hosts.Allow, cfg.Hosts.Deny),
	}, logger.Named("gatekeeper"))
	app.apiServer = api.NewServer(app.gate, idGenerator(), cfg.Auth, logger.Named("api"), checks...)

	return app, nil
}

// Gatekeeper returns the request entry point.
func (a *App) Gatekeeper() *gatekeeper.Gatekeeper {
	return a.gate
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Start launches the worker pool.
func (a *App) Start(ctx context.Context) error {
	if err := a.dispatch.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
	return nil
}

// WaitForJob polls until job id reaches a terminal status or ctx ends.
func (a *App) WaitForJob(ctx context.Context, id int64, interval time.Duration) (scrape.ScrapeJob, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := a.gate.GetJob(ctx, id)
		if err != nil {
			return scrape.ScrapeJob{}, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("wait for job %d: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Run starts the workers and HTTP server and blocks until a signal or ctx ends.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close stops the workers and releases infrastructure.
func (a *App) Close(ctx context.Context) error {
	if a.dispatch != nil {
		if err := a.dispatch.Stop(ctx); err != nil {
			a.logger.Warn("dispatcher stop failed", zap.Error(err))
		}
	}
	a.closeAll(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// closeAll runs closers in reverse registration order.
func (a *App) closeAll(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
