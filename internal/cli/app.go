package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ObiAU/citypulse/internal/ai"
	"github.com/ObiAU/citypulse/internal/config"
	"github.com/ObiAU/citypulse/internal/feed"
	"github.com/ObiAU/citypulse/internal/ingest"
	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/metrics"
	"github.com/ObiAU/citypulse/internal/models"
	"github.com/ObiAU/citypulse/internal/queue"
	"github.com/ObiAU/citypulse/internal/sources"
	"github.com/ObiAU/citypulse/internal/store"
)

// app is the fully wired pipeline shared by every command.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	cities  models.Cities
	store   store.Store
	metrics *metrics.Metrics
	sched   *ingest.Scheduler
	feed    *feed.Service
	redis   *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	st, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New(nil)
	cities := models.Cities(cfg.Ingest.Cities)

	searcher := sources.NewFirecrawlClient(sources.FirecrawlOptions{
		APIKey:     cfg.Firecrawl.APIKey,
		BaseURL:    cfg.Firecrawl.BaseURL,
		Timeout:    cfg.Firecrawl.Timeout,
		MaxRetries: cfg.Firecrawl.Retries,
	})
	if !searcher.Configured() {
		log.Warn("FIRECRAWL_API_KEY not set, every category will serve demo data")
	}
	executor := sources.NewExecutor(searcher, sources.ExecutorOptions{
		Limit:   cfg.Firecrawl.Limit,
		Recency: cfg.Firecrawl.Recency,
		Country: cfg.Firecrawl.Country,
	}, log)

	enhancer := ai.NewClient(aiOptions(cfg.AI), log)

	orch := ingest.NewOrchestrator(executor, enhancer, st, ingest.Options{
		Cities:              cities,
		MaxItemsPerCategory: cfg.Ingest.MaxItemsPerCategory,
		ItemTimeout:         cfg.Ingest.ItemTimeout,
		ParallelCategories:  cfg.Ingest.ParallelCategories,
	}, m, log)

	return &app{
		cfg:     cfg,
		log:     log,
		cities:  cities,
		store:   st,
		metrics: m,
		sched:   ingest.NewScheduler(orch, st, m, log),
		feed:    feed.NewService(st, cities),
	}, nil
}

func aiOptions(cfg config.AIConfig) ai.Options {
	return ai.Options{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		MaxTokens:         cfg.MaxTokens,
		Temperature:       cfg.Temperature,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.Retries,
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		db, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(db, nil)
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		log.Info("Using PostgreSQL store")
		return pg, nil
	default:
		log.Info("Using in-memory store", logger.Duration("retention", cfg.Retention))
		return store.NewMemory(cfg.Retention), nil
	}
}

func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := queue.Connect(ctx, a.cfg.Redis.Address, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.redis = client
	return client, nil
}

// useDispatcher installs the configured dispatcher. The returned close
// function drains local units.
func (a *app) useDispatcher(ctx context.Context) (func() error, error) {
	switch a.cfg.Ingest.Dispatcher {
	case config.DispatcherRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		a.sched.UseDispatcher(queue.NewRedis(client, a.cfg.Redis.StreamPrefix, a.metrics))
		a.log.Info("Dispatching city units to Redis", logger.String("stream", queue.StreamName(a.cfg.Redis.StreamPrefix)))
		return func() error { return nil }, nil
	default:
		local := queue.NewLocal(ctx, a.sched.RunCity, a.cfg.Ingest.CityConcurrency, a.metrics, a.log)
		a.sched.UseDispatcher(local)
		return local.Close, nil
	}
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
