package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clipstudio/internal/domain"
	"clipstudio/internal/infra"
	"clipstudio/internal/providers/video"
)

// DefaultMaxAssetBytes caps a downloaded clip.
const DefaultMaxAssetBytes int64 = 512 << 20

// ErrAssetTooLarge is returned when a result exceeds the archiver's limit.
var ErrAssetTooLarge = errors.New("jobs: result asset exceeds size limit")

// ObjectWriter stores bytes under bucket/path. storage.FileStore and
// storage.S3Store satisfy it.
type ObjectWriter interface {
	Put(ctx context.Context, bucket, path string, data []byte, contentType string) error
}

// ResultKeyRecorder persists where an archived result lives.
type ResultKeyRecorder interface {
	SetResultKey(ctx context.Context, jobID, key string) error
}

// URLWarmer pre-signs a freshly archived asset. signedurl.Cache satisfies it.
type URLWarmer interface {
	Get(ctx context.Context, bucket, path string) (string, error)
}

// ArchiverOptions configures an Archiver.
type ArchiverOptions struct {
	Bucket     string
	Writer     ObjectWriter
	Results    ResultKeyRecorder
	URLs       URLWarmer
	Providers  video.Registry
	HTTPClient *http.Client
	MaxBytes   int64
	Logger     *infra.Logger
}

// Archiver copies finished clips from provider storage into the workspace
// bucket so they outlive the provider's retention window.
type Archiver struct {
	bucket     string
	writer     ObjectWriter
	results    ResultKeyRecorder
	urls       URLWarmer
	providers  video.Registry
	httpClient *http.Client
	maxBytes   int64
	logger     *infra.Logger
}

// NewArchiver validates opts and constructs an Archiver.
func NewArchiver(opts ArchiverOptions) (*Archiver, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("jobs: archive bucket is required")
	}
	if opts.Writer == nil {
		return nil, errors.New("jobs: archive writer is required")
	}
	if opts.Results == nil {
		return nil, errors.New("jobs: result recorder is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAssetBytes
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Archiver{
		bucket:     opts.Bucket,
		writer:     opts.Writer,
		results:    opts.Results,
		urls:       opts.URLs,
		providers:  opts.Providers,
		httpClient: client,
		maxBytes:   maxBytes,
		logger:     logger,
	}, nil
}

// ArchiveKey is the workspace path of a job's archived clip.
func ArchiveKey(job domain.GenerationJob) string {
	return fmt.Sprintf("clips/%s/%s.mp4", job.ClipType, job.ID)
}

// Archive downloads the completed job's result, stores it and records the
// storage key. It returns the key.
func (a *Archiver) Archive(ctx context.Context, job domain.GenerationJob) (string, error) {
	if job.Status != domain.JobStatusCompleted || job.Result == nil || strings.TrimSpace(job.Result.AssetURL) == "" {
		return "", fmt.Errorf("jobs: job %s has no result to archive", job.ID)
	}
	data, contentType, err := a.fetch(ctx, job)
	if err != nil {
		return "", err
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "video/mp4"
	}

	key := ArchiveKey(job)
	if err := a.writer.Put(ctx, a.bucket, key, data, contentType); err != nil {
		return "", fmt.Errorf("jobs: store result: %w", err)
	}
	if err := a.results.SetResultKey(ctx, job.ID, key); err != nil {
		return "", fmt.Errorf("jobs: record result key: %w", err)
	}
	if a.urls != nil {
		if _, err := a.urls.Get(ctx, a.bucket, key); err != nil {
			a.logger.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: warm archived url failed")
		}
	}

	a.logger.Info().
		Str("job_id", job.ID).
		Str("bucket", a.bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("jobs: archived result")
	return key, nil
}

func (a *Archiver) fetch(ctx context.Context, job domain.GenerationJob) ([]byte, string, error) {
	if p, ok := a.providers[job.ProviderID]; ok {
		if f, ok := p.(video.AssetFetcher); ok {
			data, contentType, err := f.FetchAsset(ctx, job.Result.AssetURL)
			if err != nil {
				return nil, "", fmt.Errorf("jobs: fetch result: %w", err)
			}
			if int64(len(data)) > a.maxBytes {
				return nil, "", ErrAssetTooLarge
			}
			return data, contentType, nil
		}
	}
	return a.download(ctx, job.Result.AssetURL)
}

func (a *Archiver) download(ctx context.Context, assetURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(assetURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", fmt.Errorf("jobs: invalid result url: %s", assetURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("jobs: build download request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("jobs: download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("jobs: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("jobs: read result: %w", err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, "", ErrAssetTooLarge
	}
	return data, resp.Header.Get("Content-Type"), nil
}
