package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"clipstudio/internal/adapter/repo"
	"clipstudio/internal/bootstrap"
	"clipstudio/internal/http/handlers"
	httpapi "clipstudio/internal/http/httpapi"
	"clipstudio/internal/infra"
	"clipstudio/internal/infra/credentials"
	"clipstudio/internal/registry"
)

func main() {
	// Load .env when present.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	jobs := repo.NewJobRepository(runner, 0)
	if err := jobs.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure job schema")
	}

	catalog, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load model registry")
	}

	keys := credentials.NewStore(runner)
	if err := keys.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure credential schema")
	}
	providers, err := bootstrap.Providers(ctx, cfg, catalog, keys, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure providers")
	}
	orchestrator, err := bootstrap.Orchestrator(cfg, catalog, providers, jobs, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure orchestrator")
	}

	store, err := bootstrap.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}
	urls, err := bootstrap.NewCache(cfg, store.Signer, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure signed url cache")
	}
	go func() {
		if err := urls.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("signed url sweeper stopped")
		}
	}()

	app, err := handlers.NewApp(handlers.Options{
		Orchestrator:    orchestrator,
		Jobs:            jobs,
		URLs:            urls,
		DB:              dbpool,
		Buckets:         []string{cfg.ReferenceBucket, cfg.WorkspaceBucket},
		WorkspaceBucket: cfg.WorkspaceBucket,
		Logger:          &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build handlers")
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		Files:           store.Files,
	})

	server := infra.NewHTTPServer(cfg, router, &logger)
	if err := server.Serve(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
