// Package generation turns clip authoring intent into exactly one provider
// submission.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clipstudio/internal/cliptype"
	"clipstudio/internal/domain"
	"clipstudio/internal/infra"
	"clipstudio/internal/modelresolver"
	"clipstudio/internal/providers/video"
	"clipstudio/internal/timeline"
)

// SubmitInput is the authoring intent for one clip.
type SubmitInput struct {
	ClipType        domain.ClipType        `json:"clip_type"`
	Prompt          string                 `json:"prompt"`
	ExplicitModelID string                 `json:"model_id,omitempty"`
	Slots           []domain.ReferenceSlot `json:"slots"`
	Seed            *int                   `json:"seed,omitempty"`
	DurationSeconds float64                `json:"duration_seconds,omitempty"`
}

// ProviderSource looks up providers by id. video.Registry satisfies it.
type ProviderSource interface {
	Get(id string) (video.Provider, error)
}

// JobRecorder persists submitted jobs.
type JobRecorder interface {
	Create(ctx context.Context, job *domain.GenerationJob, req *domain.GenerationRequest) error
}

// Options wires the orchestrator collaborators. Router, Timeline and Resolver
// default to the built-in table, the default timeline and an empty registry.
type Options struct {
	Router    *cliptype.Router
	Timeline  *timeline.Manager
	Resolver  *modelresolver.Resolver
	Providers ProviderSource
	Recorder  JobRecorder
	Logger    *infra.Logger
	Now       func() time.Time
}

type Orchestrator struct {
	router    *cliptype.Router
	timeline  *timeline.Manager
	resolver  *modelresolver.Resolver
	providers ProviderSource
	recorder  JobRecorder
	logger    *infra.Logger
	now       func() time.Time
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Providers == nil {
		return nil, errors.New("generation: providers are required")
	}
	router := opts.Router
	if router == nil {
		router = cliptype.NewDefaultRouter()
	}
	manager := opts.Timeline
	if manager == nil {
		manager = timeline.NewManager(timeline.DefaultConfig())
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = modelresolver.New(nil)
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
	return &Orchestrator{
		router:    router,
		timeline:  manager,
		resolver:  resolver,
		providers: opts.Providers,
		recorder:  opts.Recorder,
		logger:    logger,
		now:       now,
	}, nil
}

// Plan validates in and builds the provider request without submitting it.
// All returned errors are authoring errors.
func (o *Orchestrator) Plan(in SubmitInput) (*domain.GenerationRequest, error) {
	descriptor, err := o.router.Resolve(in.ClipType)
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is empty", domain.ErrInvalidPrompt)
	}
	if err := o.timeline.Validate(in.Slots); err != nil {
		return nil, err
	}
	if missing := o.timeline.MissingAnchors(in.Slots, descriptor.Requirement()); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s clips need a %s reference", domain.ErrMissingRequiredReference, descriptor.ClipType, strings.Join(missing, " and "))
	}

	active := o.timeline.ActiveSlots(in.Slots)
	model, err := o.resolver.Resolve(RequiredTasks(descriptor, active), domain.ModalityVideo, in.ExplicitModelID)
	if err != nil {
		return nil, err
	}

	duration := in.DurationSeconds
	switch {
	case duration < 0:
		return nil, fmt.Errorf("%w: duration must be positive", domain.ErrInvalidTimeline)
	case duration == 0:
		duration = descriptor.DefaultDurationSeconds
	}

	var seed *int
	if in.Seed != nil {
		v := *in.Seed
		seed = &v
	}
	return &domain.GenerationRequest{
		ClipType:        descriptor.ClipType,
		Task:            descriptor.Task,
		Prompt:          prompt,
		Model:           model,
		ReferenceSlots:  active,
		DurationSeconds: duration,
		Seed:            seed,
	}, nil
}

// Submit plans the request and hands it to the model's provider exactly once.
// The returned job is Queued. Provider rejections wrap
// domain.ErrSubmissionFailed and keep their classified kind.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*domain.GenerationJob, error) {
	req, err := o.Plan(in)
	if err != nil {
		return nil, err
	}
	provider, err := o.providers.Get(req.Model.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
	}

	started := o.now()
	providerJobID, err := provider.Submit(ctx, *req)
	if err != nil {
		o.logger.Warn().
			Err(err).
			Str("provider", req.Model.ProviderID).
			Str("model", req.Model.ID).
			Str("clip_type", string(req.ClipType)).
			Msg("orchestrator: provider rejected submission")
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrSubmissionFailed, req.Model.ProviderID, err)
	}
	providerJobID = strings.TrimSpace(providerJobID)
	if providerJobID == "" {
		return nil, fmt.Errorf("%w: %s returned an empty job id", domain.ErrSubmissionFailed, req.Model.ProviderID)
	}

	now := o.now()
	job := &domain.GenerationJob{
		ID:         providerJobID,
		ProviderID: req.Model.ProviderID,
		ModelID:    req.Model.ID,
		ClipType:   req.ClipType,
		Status:     domain.JobStatusQueued,
		Progress:   domain.ProgressFor(domain.JobStatusQueued, nil),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("provider", job.ProviderID).
		Str("model", job.ModelID).
		Str("clip_type", string(job.ClipType)).
		Int("references", len(req.ReferenceSlots)).
		Dur("latency", now.Sub(started)).
		Msg("orchestrator: clip submitted")

	if o.recorder != nil {
		if err := o.recorder.Create(ctx, job, req); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: failed to record job")
		}
	}
	return job, nil
}

// RequiredTasks is the descriptor task plus video-reference when any active
// slot holds a video.
func RequiredTasks(descriptor domain.ClipTypeDescriptor, active []domain.ReferenceSlot) []string {
	tasks := []string{descriptor.Task}
	for _, s := range active {
		if s.IsVideo {
			tasks = append(tasks, domain.TaskVideoReference)
			break
		}
	}
	return tasks
}

// Descriptors exposes the clip-type table for catalog listings.
func (o *Orchestrator) Descriptors() []domain.ClipTypeDescriptor {
	return o.router.Descriptors()
}

// Timeline returns the timeline manager used for validation.
func (o *Orchestrator) Timeline() *timeline.Manager {
	return o.timeline
}

// Resolver returns the model resolver.
func (o *Orchestrator) Resolver() *modelresolver.Resolver {
	return o.resolver
}
