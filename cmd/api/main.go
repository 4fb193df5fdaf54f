package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"pageviews/internal/adapter/repo"
	"pageviews/internal/aggregate"
	"pageviews/internal/domain"
	"pageviews/internal/http/handlers"
	"pageviews/internal/http/httpapi"
	"pageviews/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")
	if err := cfg.ValidateAPI(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open counter store")
	}
	defer closeStore()

	agg := aggregate.NewAggregator(store, cfg.StoreBackend, logger)
	batches := aggregate.NewOrchestrator(agg, aggregate.Options{
		Concurrency: cfg.BatchConcurrency,
		Coalesce:    cfg.BatchCoalesce,
	}, logger)

	app := handlers.NewApp(agg, batches, logger)
	server := infra.NewHTTPServer(cfg, cfg.Port, httpapi.NewRouter(app, cfg, logger))

	logger.Info().Str("addr", server.Addr()).Str("backend", cfg.StoreBackend).Msg("API listening")
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}

// openStore acquires the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (domain.CounterStore, func(), error) {
	switch cfg.StoreBackend {
	case infra.BackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		pg := repo.NewCounterRepositoryPG(infra.NewSQLRunner(pool, logger))
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil

	case infra.BackendRedis:
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewCounterRepositoryRedis(rdb, cfg.RedisKeyPrefix), func() { _ = rdb.Close() }, nil

	case infra.BackendBadger:
		db, err := infra.OpenBadger(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close badger")
			}
		}
		return repo.NewCounterRepositoryBadger(db, cfg.BadgerMaxRetries, logger), closeDB, nil
	}
	return nil, nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
}
