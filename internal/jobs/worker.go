package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"clipstudio/internal/domain"
	"clipstudio/internal/infra"
)

const (
	DefaultConcurrency   = 16
	DefaultClaimInterval = 2 * time.Second
)

// JobStore is the persistence the worker needs. repo.JobRepositoryPG
// satisfies it.
type JobStore interface {
	ClaimActive(ctx context.Context, limit int) ([]*domain.GenerationJob, error)
	UpdateStatus(ctx context.Context, job *domain.GenerationJob) error
	Release(ctx context.Context, jobID string) error
}

// WorkerOptions configures a Worker. Archiver is optional.
type WorkerOptions struct {
	Store         JobStore
	Poller        *Poller
	Archiver      *Archiver
	Concurrency   int
	ClaimInterval time.Duration
	// Timeout bounds tracking from the job's creation time.
	Timeout time.Duration
	Logger  *infra.Logger
}

// Worker claims active jobs and tracks each one until it is terminal,
// persisting every transition.
type Worker struct {
	store         JobStore
	poller        *Poller
	archiver      *Archiver
	concurrency   int
	claimInterval time.Duration
	timeout       time.Duration
	logger        *infra.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.Mutex
	active map[string]struct{}
}

// NewWorker validates opts and constructs a Worker.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Store == nil {
		return nil, errors.New("jobs: worker store is required")
	}
	if opts.Poller == nil {
		return nil, errors.New("jobs: worker poller is required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	interval := opts.ClaimInterval
	if interval <= 0 {
		interval = DefaultClaimInterval
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Worker{
		store:         opts.Store,
		poller:        opts.Poller,
		archiver:      opts.Archiver,
		concurrency:   concurrency,
		claimInterval: interval,
		timeout:       opts.Timeout,
		logger:        logger,
		sem:           semaphore.NewWeighted(int64(concurrency)),
		active:        make(map[string]struct{}),
	}, nil
}

// Run claims jobs every claim interval until ctx ends, then waits for the
// in-flight trackers to release their jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("worker: started")
	ticker := time.NewTicker(w.claimInterval)
	defer ticker.Stop()
	for {
		if _, err := w.ClaimOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("worker: failed to claim jobs")
		}
		select {
		case <-ctx.Done():
			w.Wait()
			w.logger.Info().Msg("worker: stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ClaimOnce leases as many jobs as there are free tracking slots and starts
// tracking them. It returns the number of trackers started.
func (w *Worker) ClaimOnce(ctx context.Context) (int, error) {
	free := w.concurrency - w.Active()
	if free <= 0 {
		return 0, nil
	}
	claimed, err := w.store.ClaimActive(ctx, free)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, job := range claimed {
		if !w.markActive(job.ID) {
			continue
		}
		if !w.sem.TryAcquire(1) {
			w.unmarkActive(job.ID)
			w.release(job.ID)
			continue
		}
		w.wg.Add(1)
		go w.track(ctx, job)
		started++
	}
	return started, nil
}

// Active reports how many jobs are being tracked.
func (w *Worker) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

// Wait blocks until every tracker has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) markActive(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.active[id]; ok {
		return false
	}
	w.active[id] = struct{}{}
	return true
}

func (w *Worker) unmarkActive(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, id)
}

func (w *Worker) track(ctx context.Context, job *domain.GenerationJob) {
	defer w.wg.Done()
	defer w.sem.Release(1)
	defer w.unmarkActive(job.ID)

	log := w.logger.With().Str("job_id", job.ID).Str("provider", job.ProviderID).Logger()
	log.Info().Str("status", string(job.Status)).Msg("worker: tracking job")

	trackCtx, stop := context.WithCancel(ctx)
	defer stop()

	persist := func(snapshot domain.GenerationJob) bool {
		if err := w.store.UpdateStatus(trackCtx, &snapshot); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Another worker already finished it.
				log.Info().Msg("worker: job no longer active")
				stop()
				return false
			}
			log.Error().Err(err).Msg("worker: update status failed")
			return false
		}
		return true
	}

	opts := Options{}
	if w.timeout > 0 && !job.CreatedAt.IsZero() {
		opts.Deadline = job.CreatedAt.Add(w.timeout)
	}
	t := w.poller.Track(trackCtx, job, opts, Callbacks{
		OnProgress: func(snapshot domain.GenerationJob) {
			persist(snapshot)
		},
		OnComplete: func(snapshot domain.GenerationJob) {
			if !persist(snapshot) {
				return
			}
			log.Info().Str("asset_url", snapshot.Result.AssetURL).Msg("worker: job completed")
			if w.archiver == nil {
				return
			}
			if _, err := w.archiver.Archive(trackCtx, snapshot); err != nil {
				log.Warn().Err(err).Msg("worker: archive result failed")
			}
		},
		OnError: func(snapshot domain.GenerationJob, err error) {
			log.Warn().Err(err).Msg("worker: job failed")
			persist(snapshot)
		},
	})
	<-t.Done()

	if final := t.Job(); !final.Status.Terminal() {
		w.release(job.ID)
	}
}

// release returns an unfinished job to the pool. It runs after shutdown, so
// it does not use the worker context.
func (w *Worker) release(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.Release(ctx, id); err != nil {
		w.logger.Warn().Err(err).Str("job_id", id).Msg("worker: release lease failed")
	}
}
