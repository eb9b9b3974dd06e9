// Package jobs tracks submitted generation jobs until they reach a terminal
// state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"clipstudio/internal/domain"
	"clipstudio/internal/infra"
	"clipstudio/internal/providers/video"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 120 * time.Second
)

// StatusSource reports provider-side status for a job. video.Registry
// satisfies it.
type StatusSource interface {
	Status(ctx context.Context, providerID, jobID string) (*video.JobStatus, error)
}

// Options bound a single tracking run. Deadline, when set, replaces
// Track start + Timeout as the hard ceiling.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Deadline time.Time
}

// Callbacks receive job snapshots. They run on the tracking goroutine and may
// call Tracking.Cancel.
type Callbacks struct {
	OnProgress func(job domain.GenerationJob)
	OnComplete func(job domain.GenerationJob)
	OnError    func(job domain.GenerationJob, err error)
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Defaults Options
	Logger   *infra.Logger
	Now      func() time.Time
}

// Poller polls providers for job status.
type Poller struct {
	source   StatusSource
	defaults Options
	logger   *infra.Logger
	now      func() time.Time
}

// NewPoller constructs a poller over source.
func NewPoller(source StatusSource, opts PollerOptions) *Poller {
	defaults := opts.Defaults
	if defaults.Interval <= 0 {
		defaults.Interval = DefaultInterval
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = DefaultTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Poller{source: source, defaults: defaults, logger: logger, now: now}
}

// Tracking is the handle of one tracked job.
type Tracking struct {
	cancel context.CancelFunc
	done   chan struct{}

	canceled atomic.Bool

	mu  sync.Mutex
	job *domain.GenerationJob
}

// Cancel stops tracking without waiting. No callback starts after Cancel
// returns and no further status checks are issued, but a callback already
// running is not interrupted; wait on Done to know it has returned. Cancel
// may be called from inside a callback.
func (t *Tracking) Cancel() {
	t.canceled.Store(true)
	t.cancel()
}

// Done is closed when tracking stops for any reason, after the last callback
// has returned.
func (t *Tracking) Done() <-chan struct{} {
	return t.done
}

// Job returns a snapshot of the tracked job.
func (t *Tracking) Job() domain.GenerationJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.job.Clone()
}

func (t *Tracking) update(fn func(job *domain.GenerationJob)) domain.GenerationJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.job)
	return *t.job.Clone()
}

func (t *Tracking) emit(fn func()) {
	if fn == nil {
		return
	}
	if t.canceled.Load() {
		return
	}
	fn()
}

// Track starts polling job on its own goroutine. The first check runs
// immediately and checks never overlap. Zero Options fields fall back to the
// poller defaults. Cancelling ctx behaves like Tracking.Cancel.
func (p *Poller) Track(ctx context.Context, job *domain.GenerationJob, opts Options, cb Callbacks) *Tracking {
	if opts.Interval <= 0 {
		opts.Interval = p.defaults.Interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = p.defaults.Timeout
	}
	deadline := opts.Deadline
	if deadline.IsZero() {
		deadline = p.now().Add(opts.Timeout)
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Tracking{cancel: cancel, done: make(chan struct{}), job: job.Clone()}
	go func() {
		<-ctx.Done()
		t.canceled.Store(true)
	}()
	go p.run(ctx, t, opts.Interval, deadline, cb)
	return t
}

// Await tracks job and blocks until it reaches a terminal state, ctx ends or
// the deadline passes.
func (p *Poller) Await(ctx context.Context, job *domain.GenerationJob, opts Options) (domain.GenerationJob, error) {
	var failure error
	t := p.Track(ctx, job, opts, Callbacks{
		OnError: func(_ domain.GenerationJob, err error) { failure = err },
	})
	select {
	case <-t.Done():
	case <-ctx.Done():
		t.Cancel()
		<-t.Done()
		return t.Job(), ctx.Err()
	}
	final := t.Job()
	if failure != nil {
		return final, failure
	}
	if !final.Status.Terminal() {
		return final, ctx.Err()
	}
	return final, nil
}

func (p *Poller) run(ctx context.Context, t *Tracking, interval time.Duration, deadline time.Time, cb Callbacks) {
	defer close(t.done)
	defer t.cancel()

	snapshot := t.Job()
	log := p.logger.With().Str("job_id", snapshot.ID).Str("provider", snapshot.ProviderID).Logger()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("poller: tracking cancelled")
			return
		case <-timer.C:
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			p.timeout(t, deadline, cb)
			log.Warn().Time("deadline", deadline).Msg("poller: job timed out")
			return
		}

		checkCtx, cancelCheck := context.WithTimeout(ctx, remaining)
		status, err := p.source.Status(checkCtx, snapshot.ProviderID, snapshot.ID)
		cancelCheck()
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil && video.IsTemporary(err):
			log.Warn().Err(err).Msg("poller: status check failed, will retry")
		case err != nil:
			kind := domain.ErrProviderFailure
			var rej *video.RejectionError
			if errors.As(err, &rej) && !errors.Is(rej.Kind(), domain.ErrNotFound) {
				kind = rej.Kind()
			}
			p.fail(t, domain.NewJobError(kind, err.Error()), cb)
			log.Error().Err(err).Msg("poller: status check rejected")
			return
		default:
			if p.apply(t, status, cb) {
				return
			}
		}

		wait := interval
		if left := deadline.Sub(p.now()); left < wait {
			wait = left
		}
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// apply folds one status report into the job and reports whether the job is
// now terminal.
func (p *Poller) apply(t *Tracking, report *video.JobStatus, cb Callbacks) bool {
	if report == nil {
		return false
	}
	next, known := MapStatus(report.Status)
	if !known {
		p.logger.Debug().Str("status", report.Status).Msg("poller: unknown provider status ignored")
		return false
	}

	switch next {
	case domain.JobStatusCompleted:
		assetURL := strings.TrimSpace(report.ResultURL)
		if assetURL == "" {
			p.fail(t, domain.NewJobError(domain.ErrProviderFailure, "partial asset delivery: completed without a result url"), cb)
			return true
		}
		job := t.update(func(j *domain.GenerationJob) {
			j.Status = domain.JobStatusCompleted
			j.Progress = 100
			j.Result = &domain.JobResult{AssetURL: assetURL}
			j.UpdatedAt = p.now()
		})
		t.emit(func() {
			if cb.OnComplete != nil {
				cb.OnComplete(job)
			}
		})
		return true
	case domain.JobStatusFailed:
		detail := strings.TrimSpace(report.ErrorDetails)
		if detail == "" {
			detail = "provider reported failure"
		}
		p.fail(t, domain.NewJobError(domain.ClassifyProviderError(detail), detail), cb)
		return true
	}

	changed := false
	job := t.update(func(j *domain.GenerationJob) {
		progress := domain.ProgressFor(next, report.Progress)
		switch {
		case j.Status.CanTransition(next):
			j.Status = next
			changed = true
		case j.Status != next:
			return
		}
		if progress > j.Progress {
			j.Progress = progress
			changed = true
		}
		if changed {
			j.UpdatedAt = p.now()
		}
	})
	if changed {
		t.emit(func() {
			if cb.OnProgress != nil {
				cb.OnProgress(job)
			}
		})
	}
	return false
}

func (p *Poller) timeout(t *Tracking, deadline time.Time, cb Callbacks) {
	detail := fmt.Sprintf("no terminal status before %s", deadline.UTC().Format(time.RFC3339))
	p.fail(t, domain.NewJobError(domain.ErrTimeout, detail), cb)
}

func (p *Poller) fail(t *Tracking, jobErr *domain.JobError, cb Callbacks) {
	job := t.update(func(j *domain.GenerationJob) {
		j.Status = domain.JobStatusFailed
		j.Progress = domain.ProgressFor(domain.JobStatusFailed, nil)
		j.Error = jobErr
		j.UpdatedAt = p.now()
	})
	t.emit(func() {
		if cb.OnError != nil {
			cb.OnError(job, jobErr)
		}
	})
}

var statusSynonyms = map[string]domain.JobStatus{
	"queued":      domain.JobStatusQueued,
	"pending":     domain.JobStatusQueued,
	"in_queue":    domain.JobStatusQueued,
	"submitted":   domain.JobStatusQueued,
	"waiting":     domain.JobStatusQueued,
	"processing":  domain.JobStatusProcessing,
	"running":     domain.JobStatusProcessing,
	"in_progress": domain.JobStatusProcessing,
	"starting":    domain.JobStatusProcessing,
	"generating":  domain.JobStatusProcessing,
	"completed":   domain.JobStatusCompleted,
	"succeeded":   domain.JobStatusCompleted,
	"success":     domain.JobStatusCompleted,
	"done":        domain.JobStatusCompleted,
	"finished":    domain.JobStatusCompleted,
	"failed":      domain.JobStatusFailed,
	"error":       domain.JobStatusFailed,
	"cancelled":   domain.JobStatusFailed,
	"canceled":    domain.JobStatusFailed,
	"rejected":    domain.JobStatusFailed,
	"expired":     domain.JobStatusFailed,
}

// MapStatus maps a raw provider status onto a job status, ignoring case and
// treating '-' and ' ' like '_'.
func MapStatus(raw string) (domain.JobStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	s, ok := statusSynonyms[key]
	return s, ok
}
