package video

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"clipstudio/internal/domain"
)

// Raw provider status strings. Providers may report others; the poller maps
// them case-insensitively.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobStatus is one status report for a submitted generation.
type JobStatus struct {
	Status       string
	Progress     *int
	ResultURL    string
	ErrorDetails string
}

// Provider is the contract implemented by every video generation backend.
type Provider interface {
	// Submit hands the request to the backend and returns its job id.
	Submit(ctx context.Context, req domain.GenerationRequest) (string, error)
	// Status reports the current state of a submitted job.
	Status(ctx context.Context, jobID string) (*JobStatus, error)
}

// AssetFetcher is implemented by providers whose result URLs need the
// provider's credentials to download.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, resultURL string) ([]byte, string, error)
}

// Registry maps provider ids from the model registry to implementations.
type Registry map[string]Provider

// Get returns the provider registered under id.
func (r Registry) Get(id string) (Provider, error) {
	p, ok := r[id]
	if !ok || p == nil {
		return nil, fmt.Errorf("video: provider %q not configured", id)
	}
	return p, nil
}

// Status implements the poller's status source over all registered providers.
func (r Registry) Status(ctx context.Context, providerID, jobID string) (*JobStatus, error) {
	p, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	return p.Status(ctx, jobID)
}

// RejectionError is returned when a backend refuses a request outright.
type RejectionError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Kind classifies the rejection into a domain error kind.
func (e *RejectionError) Kind() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	if e.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return domain.ClassifyProviderError(e.Message)
}

// Temporary reports whether retrying a status check may succeed.
func (e *RejectionError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Is lets errors.Is match the classified kind.
func (e *RejectionError) Is(target error) bool {
	return target == e.Kind()
}

// IsTemporary reports whether err from a status check should be retried on
// the next poll rather than failing the job.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Temporary()
	}
	return !errors.Is(err, domain.ErrNotFound)
}

func referenceType(s domain.ReferenceSlot) string {
	if s.IsVideo {
		return "video"
	}
	return "image"
}
