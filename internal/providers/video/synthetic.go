package video

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipstudio/internal/domain"
)

// SyntheticOptions tunes the simulated queue and render phases.
type SyntheticOptions struct {
	Name        string
	BaseURL     string
	QueueDelay  time.Duration
	RenderDelay time.Duration
	Now         func() time.Time
}

// SyntheticProvider fakes a remote backend for local development and CI. Jobs
// move queued -> processing -> completed on a fixed schedule and complete with
// a deterministic asset URL derived from the request. The job id carries the
// job state, so any process sharing the options can report status.
type SyntheticProvider struct {
	name        string
	baseURL     string
	queueDelay  time.Duration
	renderDelay time.Duration
	now         func() time.Time
}

const syntheticIDPrefix = "syn-"

type syntheticJob struct {
	SubmittedMillis int64  `json:"t"`
	AssetPath       string `json:"a"`
	Nonce           string `json:"n"`
}

func NewSyntheticProvider(opts SyntheticOptions) *SyntheticProvider {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "synthetic"
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://cdn.example.com"
	}
	queueDelay := opts.QueueDelay
	if queueDelay <= 0 {
		queueDelay = 2 * time.Second
	}
	renderDelay := opts.RenderDelay
	if renderDelay <= 0 {
		renderDelay = 8 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SyntheticProvider{
		name:        name,
		baseURL:     baseURL,
		queueDelay:  queueDelay,
		renderDelay: renderDelay,
		now:         now,
	}
}

func (s *SyntheticProvider) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	seed := deterministicSeed(req.Model.ID, req.ClipType, req.Prompt, req.DurationSeconds, seedValue(req.Seed), len(req.ReferenceSlots))
	raw, err := json.Marshal(syntheticJob{
		SubmittedMillis: s.now().UnixMilli(),
		AssetPath:       fmt.Sprintf("synthetic/%s/%s-%s.mp4", url.PathEscape(req.Model.ID), req.ClipType, seed),
		Nonce:           uuid.NewString()[:8],
	})
	if err != nil {
		return "", fmt.Errorf("%s: encode job: %w", s.name, err)
	}
	return syntheticIDPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

func (s *SyntheticProvider) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	job, ok := decodeSyntheticJob(jobID)
	if !ok {
		return nil, &RejectionError{Provider: s.name, StatusCode: http.StatusNotFound, Message: "job not found"}
	}
	elapsed := s.now().Sub(time.UnixMilli(job.SubmittedMillis))
	switch {
	case elapsed < s.queueDelay:
		return &JobStatus{Status: StatusQueued}, nil
	case elapsed < s.queueDelay+s.renderDelay:
		progress := int(100 * (elapsed - s.queueDelay) / s.renderDelay)
		return &JobStatus{Status: StatusProcessing, Progress: &progress}, nil
	default:
		return &JobStatus{Status: StatusCompleted, ResultURL: s.baseURL + "/" + job.AssetPath}, nil
	}
}

// FetchAsset returns placeholder bytes for a synthetic result so archiving
// works without a real CDN.
func (s *SyntheticProvider) FetchAsset(ctx context.Context, resultURL string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	path, ok := strings.CutPrefix(resultURL, s.baseURL+"/")
	if !ok || path == "" {
		return nil, "", &RejectionError{Provider: s.name, StatusCode: http.StatusNotFound, Message: "asset not found"}
	}
	return []byte("synthetic clip " + path), "video/mp4", nil
}

func decodeSyntheticJob(jobID string) (syntheticJob, bool) {
	encoded, ok := strings.CutPrefix(jobID, syntheticIDPrefix)
	if !ok {
		return syntheticJob{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return syntheticJob{}, false
	}
	var job syntheticJob
	if err := json.Unmarshal(raw, &job); err != nil || job.AssetPath == "" {
		return syntheticJob{}, false
	}
	return job, true
}

func seedValue(seed *int) any {
	if seed == nil {
		return "none"
	}
	return *seed
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Provider = (*SyntheticProvider)(nil)
