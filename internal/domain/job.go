package domain

import (
	"time"
)

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next respects the
// Queued -> Processing -> {Completed|Failed} ordering.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// GenerationRequest is the provider-facing assembly of one clip. It is built
// per submission and not mutated afterwards.
type GenerationRequest struct {
	ClipType        ClipType        `json:"clip_type"`
	Task            string          `json:"task"`
	Prompt          string          `json:"prompt"`
	Model           ModelDescriptor `json:"model"`
	ReferenceSlots  []ReferenceSlot `json:"reference_slots"`
	DurationSeconds float64         `json:"duration_seconds"`
	Seed            *int            `json:"seed,omitempty"`
}

// JobResult holds the delivered asset of a completed job.
type JobResult struct {
	AssetURL string `json:"asset_url"`
	// StorageKey is the workspace object key once the asset is archived.
	StorageKey string `json:"storage_key,omitempty"`
}

// GenerationJob is the caller-facing view of a submitted generation.
type GenerationJob struct {
	ID         string     `json:"id"`
	ProviderID string     `json:"provider_id"`
	ModelID    string     `json:"model_id"`
	ClipType   ClipType   `json:"clip_type"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Result     *JobResult `json:"result,omitempty"`
	Error      *JobError  `json:"-"`
}

// Clone returns a copy that does not share result or error pointers.
func (j *GenerationJob) Clone() *GenerationJob {
	if j == nil {
		return nil
	}
	out := *j
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return &out
}

// ProgressFor returns the heuristic progress for a status. reported is used
// only while processing.
func ProgressFor(status JobStatus, reported *int) int {
	switch status {
	case JobStatusQueued:
		return 10
	case JobStatusProcessing:
		if reported != nil {
			return clampPercent(*reported)
		}
		return 50
	case JobStatusCompleted:
		return 100
	default:
		return 0
	}
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
