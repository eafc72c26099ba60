package server

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/api"
	memcache "github.com/JakeFAU/catalog-scraper/internal/cache/memory"
	rediscache "github.com/JakeFAU/catalog-scraper/internal/cache/redis"
	"github.com/JakeFAU/catalog-scraper/internal/browser/auto"
	"github.com/JakeFAU/catalog-scraper/internal/browser/headless"
	"github.com/JakeFAU/catalog-scraper/internal/browser/static"
	"github.com/JakeFAU/catalog-scraper/internal/clock/system"
	"github.com/JakeFAU/catalog-scraper/internal/config"
	"github.com/JakeFAU/catalog-scraper/internal/dispatcher"
	"github.com/JakeFAU/catalog-scraper/internal/executor"
	"github.com/JakeFAU/catalog-scraper/internal/extract"
	"github.com/JakeFAU/catalog-scraper/internal/hash/sha256"
	"github.com/JakeFAU/catalog-scraper/internal/id/uuid"
	"github.com/JakeFAU/catalog-scraper/internal/policy/ratelimit"
	memqueue "github.com/JakeFAU/catalog-scraper/internal/queue/memory"
	redisqueue "github.com/JakeFAU/catalog-scraper/internal/queue/redis"
	"github.com/JakeFAU/catalog-scraper/internal/reconcile"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
	gcsstorage "github.com/JakeFAU/catalog-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-scraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/catalog-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/catalog-scraper/internal/storage/postgres"
	"github.com/JakeFAU/catalog-scraper/internal/worker"
)

type stores struct {
	jobs    scrape.JobStore
	catalog scrape.CatalogStore
	checks  []api.Option
}

func clockFor() scrape.Clock {
	return system.New()
}

func idGenerator() api.IDGenerator {
	return uuid.NewUUIDGenerator()
}

func setupStores(ctx context.Context, app *App) (stores, error) {
	cfg := app.cfg.Database
	if cfg.Backend != config.BackendPostgres {
		app.logger.Warn("using in-memory job and catalog stores; data is lost on restart")
		return stores{
			jobs:    memorystorage.NewJobStore(),
			catalog: memorystorage.NewCatalogStore(),
		}, nil
	}

	pool, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
	})
	if err != nil {
		return stores{}, fmt.Errorf("postgres init failed: %w", err)
	}
	app.onClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	if cfg.EnsureSchema {
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			return stores{}, fmt.Errorf("postgres schema failed: %w", err)
		}
		app.logger.Info("postgres schema ensured")
	}
	jobs, err := pgstore.NewJobStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("job store init failed: %w", err)
	}
	catalog, err := pgstore.NewCatalogStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("catalog store init failed: %w", err)
	}
	app.logger.Info("postgres stores initialized",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Duration("max_conn_lifetime", cfg.MaxConnLifetime),
	)
	return stores{
		jobs:    jobs,
		catalog: catalog,
		checks:  []api.Option{api.WithReadinessCheck("postgres", pool.Ping)},
	}, nil
}

func setupRedis(ctx context.Context, app *App) (*goredis.Client, error) {
	if app.cfg.Queue.Backend != config.BackendRedis && app.cfg.Cache.Backend != config.BackendRedis {
		return nil, nil
	}
	client, err := rediscache.NewClient(ctx, rediscache.Config{
		Address:  app.cfg.Redis.Address,
		Password: app.cfg.Redis.Password,
		DB:       app.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis init failed: %w", err)
	}
	app.onClose("redis", func(context.Context) error { return client.Close() })
	app.logger.Info("redis client initialized", zap.String("address", app.cfg.Redis.Address))
	return client, nil
}

func setupQueue(app *App, client *goredis.Client) (scrape.Queue, error) {
	if app.cfg.Queue.Backend == config.BackendRedis {
		q, err := redisqueue.New(client, redisqueue.Config{Prefix: app.cfg.Queue.Prefix})
		if err != nil {
			return nil, fmt.Errorf("redis queue init failed: %w", err)
		}
		app.onClose("queue", func(context.Context) error {
			q.Close()
			return nil
		})
		app.logger.Info("using redis queue", zap.String("prefix", app.cfg.Queue.Prefix))
		return q, nil
	}
	q := memqueue.NewQueue(app.cfg.Queue.Capacity)
	app.onClose("queue", func(context.Context) error {
		q.Close()
		return nil
	})
	app.logger.Info("using in-memory queue", zap.Int("capacity", app.cfg.Queue.Capacity))
	return q, nil
}

func setupCache(app *App, client *goredis.Client) scrape.Cache {
	if app.cfg.Cache.Backend == config.BackendRedis {
		app.logger.Info("using redis dedup cache")
		return rediscache.New(client)
	}
	app.logger.Info("using in-memory dedup cache")
	return memcache.New(clockFor())
}

func setupBrowser(app *App) (scrape.Browser, error) {
	cfg := app.cfg.Browser
	staticBrowser := static.New(static.Config{
		UserAgent:     cfg.UserAgent,
		RespectRobots: cfg.RespectRobots,
		Timeout:       time.Duration(cfg.NavTimeoutSeconds) * time.Second,
	})
	if cfg.Backend == config.BackendStatic {
		app.logger.Info("using static browser", zap.String("user_agent", cfg.UserAgent))
		return staticBrowser, nil
	}

	b, err := headless.New(headless.Config{
		MaxParallel:       cfg.MaxParallel,
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: time.Duration(cfg.NavTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("headless browser init failed: %w", err)
	}
	app.onClose("browser", func(context.Context) error {
		b.Close()
		return nil
	})
	if cfg.Backend == config.BackendAuto {
		app.logger.Info("using static browser with headless promotion",
			zap.Int("max_parallel", cfg.MaxParallel),
			zap.Int("promotion_threshold", cfg.PromotionThreshold),
		)
		return auto.New(
			staticBrowser,
			b,
			auto.NewDetector(cfg.PromotionThreshold, app.cfg.Selectors.ContentRegions()...),
			app.logger.Named("browser"),
		), nil
	}
	app.logger.Info("using headless browser", zap.Int("max_parallel", cfg.MaxParallel))
	return b, nil
}

func setupSnapshots(ctx context.Context, app *App) (scrape.BlobStore, error) {
	cfg := app.cfg.Snapshots
	switch cfg.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.onClose("gcs", func(context.Context) error { return client.Close() })
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS snapshot store", zap.String("bucket", cfg.Bucket))
		return store, nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local snapshot store", zap.String("path", cfg.BaseDir))
		return store, nil
	case config.BackendMemory:
		app.logger.Info("using in-memory snapshot store")
		return memorystorage.NewBlobStore(), nil
	default:
		app.logger.Info("page snapshots disabled")
		return nil, nil
	}
}

func setupDispatcher(
	app *App,
	st stores,
	queue scrape.Queue,
	browser scrape.Browser,
	snapshots scrape.BlobStore,
) *dispatcher.Dispatcher {
	cfg := app.cfg
	clock := clockFor()

	var opts []executor.Option
	if cfg.RateLimit.Enabled {
		opts = append(opts, executor.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.RPS,
			DefaultBurst: cfg.RateLimit.Burst,
		})))
		app.logger.Info("per-host rate limiting enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}
	if snapshots != nil {
		opts = append(opts, executor.WithSnapshots(snapshots, sha256.New()))
	}

	exec := executor.New(
		st.jobs,
		browser,
		extract.New(cfg.Selectors, time.Duration(cfg.Browser.WaitTimeoutSeconds)*time.Second),
		reconcile.New(st.catalog, clock, app.logger.Named("reconcile")),
		clock,
		executor.Config{
			JobTimeout:     cfg.JobTimeout(),
			SnapshotPrefix: cfg.Snapshots.Prefix,
		},
		app.logger.Named("executor"),
		opts...,
	)

	base, maxDelay := cfg.Backoff()
	policy := worker.NewExponentialRetryPolicy(cfg.Worker.MaxAttempts, base, maxDelay)
	app.logger.Info("worker config",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_attempts", policy.MaxAttempts()),
		zap.Duration("backoff_base", base),
		zap.Duration("backoff_max", maxDelay),
		zap.Duration("job_timeout", cfg.JobTimeout()),
	)

	workers := make([]*worker.Worker, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			exec,
			policy,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(queue, workers)
}
