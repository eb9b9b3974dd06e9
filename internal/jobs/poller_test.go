package jobs

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipstudio/internal/domain"
	"clipstudio/internal/providers/video"
)

type scriptedResult struct {
	status *video.JobStatus
	err    error
}

type scriptedSource struct {
	mu     sync.Mutex
	script []scriptedResult
	calls  atomic.Int32
}

func (s *scriptedSource) Status(ctx context.Context, providerID, jobID string) (*video.JobStatus, error) {
	n := int(s.calls.Add(1)) - 1
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.script) {
		n = len(s.script) - 1
	}
	r := s.script[n]
	return r.status, r.err
}

func status(raw string) scriptedResult {
	return scriptedResult{status: &video.JobStatus{Status: raw}}
}

func progress(raw string, pct int) scriptedResult {
	return scriptedResult{status: &video.JobStatus{Status: raw, Progress: &pct}}
}

func completed(url string) scriptedResult {
	return scriptedResult{status: &video.JobStatus{Status: "succeeded", ResultURL: url}}
}

func queuedJob() *domain.GenerationJob {
	return &domain.GenerationJob{
		ID:         "job-1",
		ProviderID: "synthetic",
		ModelID:    "ltx-video",
		ClipType:   domain.ClipTypeDialogue,
		Status:     domain.JobStatusQueued,
		Progress:   10,
	}
}

var fastOpts = Options{Interval: 5 * time.Millisecond, Timeout: 2 * time.Second}

func waitDone(t *testing.T, tr *Tracking) {
	t.Helper()
	select {
	case <-tr.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("tracking did not finish")
	}
}

func TestTrackCompletes(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{
		status("pending"),
		progress("RUNNING", 40),
		progress("running", 70),
		completed("https://cdn.test/out.mp4"),
	}}
	p := NewPoller(src, PollerOptions{})

	var mu sync.Mutex
	var progressSeen []int
	var final domain.GenerationJob
	completions := 0
	tr := p.Track(context.Background(), queuedJob(), fastOpts, Callbacks{
		OnProgress: func(job domain.GenerationJob) {
			mu.Lock()
			progressSeen = append(progressSeen, job.Progress)
			mu.Unlock()
		},
		OnComplete: func(job domain.GenerationJob) {
			mu.Lock()
			final = job
			completions++
			mu.Unlock()
		},
		OnError: func(job domain.GenerationJob, err error) {
			t.Errorf("unexpected error callback: %v", err)
		},
	})
	waitDone(t, tr)

	mu.Lock()
	defer mu.Unlock()
	if completions != 1 {
		t.Fatalf("completions = %d, want 1", completions)
	}
	if final.Status != domain.JobStatusCompleted || final.Progress != 100 {
		t.Fatalf("final job = %+v", final)
	}
	if final.Result == nil || final.Result.AssetURL != "https://cdn.test/out.mp4" {
		t.Fatalf("result = %+v", final.Result)
	}
	want := []int{40, 70}
	if len(progressSeen) != len(want) {
		t.Fatalf("progress callbacks = %v, want %v", progressSeen, want)
	}
	for i := range want {
		if progressSeen[i] != want[i] {
			t.Fatalf("progress callbacks = %v, want %v", progressSeen, want)
		}
	}
	if got := src.calls.Load(); got != 4 {
		t.Fatalf("status checks = %d, want 4", got)
	}
}

func TestTrackIgnoresRegression(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{
		progress("processing", 60),
		status("queued"),
		progress("processing", 30),
		completed("https://cdn.test/out.mp4"),
	}}
	p := NewPoller(src, PollerOptions{})
	var mu sync.Mutex
	var statuses []domain.JobStatus
	tr := p.Track(context.Background(), queuedJob(), fastOpts, Callbacks{
		OnProgress: func(job domain.GenerationJob) {
			mu.Lock()
			statuses = append(statuses, job.Status)
			mu.Unlock()
		},
	})
	waitDone(t, tr)
	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 1 || statuses[0] != domain.JobStatusProcessing {
		t.Fatalf("progress statuses = %v, want [processing]", statuses)
	}
	if got := tr.Job(); got.Status != domain.JobStatusCompleted {
		t.Fatalf("final status = %s", got.Status)
	}
}

func TestTrackTimeoutFiresOnceAndStops(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{progress("processing", 20)}}
	p := NewPoller(src, PollerOptions{})

	var errorsSeen atomic.Int32
	var lastErr atomic.Value
	tr := p.Track(context.Background(), queuedJob(), Options{Interval: 10 * time.Millisecond, Timeout: 60 * time.Millisecond}, Callbacks{
		OnError: func(job domain.GenerationJob, err error) {
			errorsSeen.Add(1)
			lastErr.Store(err)
		},
	})
	waitDone(t, tr)

	checks := src.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if after := src.calls.Load(); after != checks {
		t.Fatalf("status checks continued after timeout: %d -> %d", checks, after)
	}
	if got := errorsSeen.Load(); got != 1 {
		t.Fatalf("error callbacks = %d, want 1", got)
	}
	err, _ := lastErr.Load().(error)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if job := tr.Job(); job.Status != domain.JobStatusFailed || job.Progress != 0 {
		t.Fatalf("job after timeout = %+v", job)
	}
}

func TestCancelSuppressesCallbacks(t *testing.T) {
	var pct atomic.Int32
	src := &countingSource{next: func() *video.JobStatus {
		v := int(pct.Add(1))
		return &video.JobStatus{Status: "processing", Progress: &v}
	}}
	p := NewPoller(src, PollerOptions{})

	var callbacks atomic.Int32
	firstProgress := make(chan struct{}, 1)
	tr := p.Track(context.Background(), queuedJob(), fastOpts, Callbacks{
		OnProgress: func(domain.GenerationJob) {
			callbacks.Add(1)
			select {
			case firstProgress <- struct{}{}:
			default:
			}
		},
		OnComplete: func(domain.GenerationJob) { callbacks.Add(1) },
		OnError:    func(domain.GenerationJob, error) { callbacks.Add(1) },
	})
	<-firstProgress
	tr.Cancel()
	waitDone(t, tr)
	seen := callbacks.Load()
	checks := src.calls.Load()

	time.Sleep(40 * time.Millisecond)
	if got := callbacks.Load(); got != seen {
		t.Fatalf("callbacks after cancel: %d -> %d", seen, got)
	}
	if got := src.calls.Load(); got != checks {
		t.Fatalf("status checks after cancel: %d -> %d", checks, got)
	}
}

func TestCancelFromCallback(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{progress("processing", 10)}}
	p := NewPoller(src, PollerOptions{})
	var tr *Tracking
	ready := make(chan struct{})
	var callbacks atomic.Int32
	tr = p.Track(context.Background(), queuedJob(), fastOpts, Callbacks{
		OnProgress: func(domain.GenerationJob) {
			<-ready
			callbacks.Add(1)
			tr.Cancel()
		},
	})
	close(ready)
	waitDone(t, tr)
	if got := callbacks.Load(); got != 1 {
		t.Fatalf("callbacks = %d, want 1", got)
	}
}

func TestCancelDoesNotWaitForRunningCallback(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{progress("processing", 10)}}
	p := NewPoller(src, PollerOptions{})
	entered := make(chan struct{})
	release := make(chan struct{})
	var callbacks atomic.Int32
	tr := p.Track(context.Background(), queuedJob(), fastOpts, Callbacks{
		OnProgress: func(domain.GenerationJob) {
			if callbacks.Add(1) == 1 {
				close(entered)
			}
			<-release
		},
	})
	<-entered

	returned := make(chan struct{})
	go func() {
		tr.Cancel()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("Cancel blocked on a running callback")
	}
	select {
	case <-tr.Done():
		t.Fatalf("Done closed while a callback was still running")
	default:
	}

	close(release)
	waitDone(t, tr)
	if got := callbacks.Load(); got != 1 {
		t.Fatalf("callbacks = %d, want 1", got)
	}
}

func TestTrackCompletedWithoutURLFails(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{status("completed")}}
	p := NewPoller(src, PollerOptions{})
	job, err := p.Await(context.Background(), queuedJob(), fastOpts)
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("error = %v, want ErrProviderFailure", err)
	}
	if job.Status != domain.JobStatusFailed || job.Error == nil {
		t.Fatalf("job = %+v", job)
	}
}

func TestTrackProviderFailureClassified(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{
		{status: &video.JobStatus{Status: "FAILED", ErrorDetails: "Output blocked by safety filter"}},
	}}
	p := NewPoller(src, PollerOptions{})
	job, err := p.Await(context.Background(), queuedJob(), fastOpts)
	if !errors.Is(err, domain.ErrContentPolicyViolation) {
		t.Fatalf("error = %v, want ErrContentPolicyViolation", err)
	}
	if job.Error.Detail != "Output blocked by safety filter" {
		t.Fatalf("detail = %q", job.Error.Detail)
	}
}

func TestTrackRetriesTemporaryErrors(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{
		{err: errors.New("connection reset by peer")},
		{err: &video.RejectionError{Provider: "x", StatusCode: http.StatusServiceUnavailable, Message: "busy"}},
		completed("https://cdn.test/out.mp4"),
	}}
	p := NewPoller(src, PollerOptions{})
	job, err := p.Await(context.Background(), queuedJob(), fastOpts)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
}

func TestTrackNotFoundIsTerminal(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{
		{err: &video.RejectionError{Provider: "x", StatusCode: http.StatusNotFound, Message: "job not found"}},
	}}
	p := NewPoller(src, PollerOptions{})
	_, err := p.Await(context.Background(), queuedJob(), fastOpts)
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("error = %v, want ErrProviderFailure", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("status checks = %d, want 1", got)
	}
}

func TestAwaitHonoursContext(t *testing.T) {
	src := &scriptedSource{script: []scriptedResult{status("queued")}}
	p := NewPoller(src, PollerOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := p.Await(ctx, queuedJob(), fastOpts)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]domain.JobStatus{
		"QUEUED":      domain.JobStatusQueued,
		"in-queue":    domain.JobStatusQueued,
		"In Progress": domain.JobStatusProcessing,
		"Succeeded":   domain.JobStatusCompleted,
		"canceled":    domain.JobStatusFailed,
	}
	for raw, want := range cases {
		got, ok := MapStatus(raw)
		if !ok || got != want {
			t.Fatalf("MapStatus(%q) = %s, %v; want %s", raw, got, ok, want)
		}
	}
	if _, ok := MapStatus("warming-up"); ok {
		t.Fatalf("unknown status should not map")
	}
}

type countingSource struct {
	calls atomic.Int32
	next  func() *video.JobStatus
}

func (s *countingSource) Status(ctx context.Context, providerID, jobID string) (*video.JobStatus, error) {
	s.calls.Add(1)
	return s.next(), nil
}
