package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"clipstudio/internal/adapter/repo"
	"clipstudio/internal/bootstrap"
	"clipstudio/internal/infra"
	"clipstudio/internal/infra/credentials"
	"clipstudio/internal/jobs"
	"clipstudio/internal/registry"
)

// leaseMargin extends a claim past the job's polling deadline.
const leaseMargin = time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	store := repo.NewJobRepository(runner, cfg.JobPollTimeout+leaseMargin)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to ensure job schema")
	}

	catalog, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to load model registry")
	}
	keys := credentials.NewStore(runner)
	if err := keys.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to ensure credential schema")
	}
	providers, err := bootstrap.Providers(ctx, cfg, catalog, keys, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure providers")
	}

	storage, err := bootstrap.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	urls, err := bootstrap.NewCache(cfg, storage.Signer, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure signed url cache")
	}

	var archiver *jobs.Archiver
	if cfg.ArchiveResults {
		archiver, err = jobs.NewArchiver(jobs.ArchiverOptions{
			Bucket:    cfg.WorkspaceBucket,
			Writer:    storage.Writer,
			Results:   store,
			URLs:      urls,
			Providers: providers,
			MaxBytes:  cfg.ArchiveMaxBytes,
			Logger:    &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure archiver")
		}
	}

	poller := jobs.NewPoller(providers, jobs.PollerOptions{
		Defaults: jobs.Options{Interval: cfg.JobPollInterval, Timeout: cfg.JobPollTimeout},
		Logger:   &logger,
	})
	worker, err := jobs.NewWorker(jobs.WorkerOptions{
		Store:         store,
		Poller:        poller,
		Archiver:      archiver,
		Concurrency:   cfg.WorkerConcurrency,
		ClaimInterval: cfg.WorkerClaimInterval,
		Timeout:       cfg.JobPollTimeout,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure worker")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return urls.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
