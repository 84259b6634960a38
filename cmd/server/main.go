package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leadflow/backend/internal/config"
	"github.com/leadflow/backend/internal/db"
	httpapi "github.com/leadflow/backend/internal/http"
	"github.com/leadflow/backend/internal/http/handlers"
	"github.com/leadflow/backend/internal/jobs"
	"github.com/leadflow/backend/internal/lock"
	"github.com/leadflow/backend/internal/memstore"
	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/service"
)

type backend interface {
	service.Stores
	handlers.Catalog
	Close()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "leadflow-backend").Logger()

	ctx := context.Background()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer store.Close()

	loc, _ := cfg.Location()
	m := metrics.New()
	opts := service.Options{
		LookupTimeout:    cfg.LookupTimeout,
		AppendTimeout:    cfg.AppendTimeout,
		PartialThreshold: cfg.PartialMatchThreshold,
		MaxAlternatives:  cfg.MaxAlternatives,
		Location:         loc,
		Metrics:          m,
		Logger:           logger,
	}
	if cfg.RedisURL != "" {
		locker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer locker.Close()
		opts.Locker = locker
		logger.Info().Msg("using redis ledger lock")
	}
	eng := service.NewEngine(store, opts)

	var cronManager *jobs.CronManager
	if cfg.AnalyticsCron != "" {
		cronManager = jobs.NewCronManager(eng.Aggregator, loc, logger.With().Str("component", "cron").Logger())
		if err := cronManager.SetupJobs(cfg.AnalyticsCron); err != nil {
			logger.Fatal().Err(err).Str("schedule", cfg.AnalyticsCron).Msg("invalid analytics schedule")
		}
		cronManager.Start()
	}

	router := httpapi.Router(cfg, httpapi.Deps{
		Store:      store,
		Service:    eng.Service,
		Aggregator: eng.Aggregator,
		Metrics:    m,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("driver", cfg.StoreDriver).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cronManager != nil {
		cronManager.Stop(ctxShutdown)
	}
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (backend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		mem := memstore.New()
		if cfg.SeedFile != "" {
			seed, err := mem.LoadSeedFile(ctx, cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			logger.Info().Int("consultants", len(seed.Consultants)).Int("skills", len(seed.Skills)).Msg("seed loaded")
		}
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		return mem, nil
	}

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
