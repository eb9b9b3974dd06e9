// Package bootstrap assembles the runtime graph shared by the API and the
// tracking worker from the loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"clipstudio/internal/generation"
	"clipstudio/internal/infra"
	"clipstudio/internal/jobs"
	"clipstudio/internal/providers/genai"
	"clipstudio/internal/providers/video"
	"clipstudio/internal/registry"
	"clipstudio/internal/signedurl"
	"clipstudio/internal/storage"
	"clipstudio/internal/timeline"
)

// KeySource resolves provider API keys, preferring the configured value.
// credentials.Store satisfies it.
type KeySource interface {
	ResolveAPIKey(ctx context.Context, provider, configured string) (string, error)
}

// Providers builds one video provider per provider id referenced by the
// catalog. A provider without credentials is replaced by a synthetic one so
// development setups still walk the full job lifecycle.
func Providers(ctx context.Context, cfg *infra.Config, catalog *registry.Catalog, keys KeySource, logger *infra.Logger) (video.Registry, error) {
	out := make(video.Registry)
	httpClient := &http.Client{Timeout: 60 * time.Second}

	resolve := func(provider, configured string) string {
		if keys == nil {
			return strings.TrimSpace(configured)
		}
		key, err := keys.ResolveAPIKey(ctx, provider, configured)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("bootstrap: failed to load stored api key")
			return strings.TrimSpace(configured)
		}
		return key
	}
	synthetic := func(id, reason string) {
		logger.Warn().Str("provider", id).Str("reason", reason).Msg("bootstrap: using synthetic video provider")
		out[id] = video.NewSyntheticProvider(video.SyntheticOptions{Name: id})
	}

	for _, id := range catalog.ProviderIDs() {
		switch id {
		case registry.ProviderGemini:
			key := resolve(registry.ProviderGemini, cfg.GeminiAPIKey)
			if key == "" {
				synthetic(id, "missing api key")
				continue
			}
			client, err := genai.NewClient(genai.Options{
				APIKey:     key,
				BaseURL:    cfg.GeminiBaseURL,
				Model:      cfg.GeminiModel,
				HTTPClient: httpClient,
				Logger:     logger,
			})
			if err != nil {
				return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
			}
			out[id] = video.NewGeminiProvider(client, cfg.ProviderAspectRatio)
		case registry.ProviderHTTP:
			key := resolve(registry.ProviderHTTP, cfg.ProviderAPIKey)
			if key == "" || strings.TrimSpace(cfg.ProviderBaseURL) == "" {
				synthetic(id, "missing api key or base url")
				continue
			}
			p, err := video.NewHTTPProvider(video.HTTPOptions{
				Name:        id,
				APIKey:      key,
				BaseURL:     cfg.ProviderBaseURL,
				AspectRatio: cfg.ProviderAspectRatio,
				HTTPClient:  httpClient,
				Logger:      logger,
			})
			if err != nil {
				return nil, fmt.Errorf("bootstrap: http provider: %w", err)
			}
			out[id] = p
		case registry.ProviderSynthetic:
			out[id] = video.NewSyntheticProvider(video.SyntheticOptions{Name: id})
		default:
			logger.Warn().Str("provider", id).Msg("bootstrap: no implementation for provider, its models cannot be submitted")
		}
	}
	return out, nil
}

// Storage is the configured object storage backend.
type Storage struct {
	Signer signedurl.Signer
	Writer jobs.ObjectWriter
	// Files serves local signed URLs; nil for object storage.
	Files http.Handler
}

// NewStorage builds the backend selected by STORAGE_DRIVER.
func NewStorage(ctx context.Context, cfg *infra.Config) (*Storage, error) {
	switch cfg.StorageDriver {
	case infra.StorageDriverS3:
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Region:       cfg.AWSRegion,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return &Storage{Signer: store, Writer: store}, nil
	default:
		root := cfg.StoragePath
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		store, err := storage.NewFileStore(root)
		if err != nil {
			return nil, err
		}
		signer, err := storage.NewLocalSigner(cfg.StorageBaseURL, []byte(cfg.StorageSigningKey), nil)
		if err != nil {
			return nil, err
		}
		return &Storage{Signer: signer, Writer: store, Files: signer.Handler(store)}, nil
	}
}

// NewCache wraps signer with the per-bucket policies: long-lived references,
// short-lived workspace assets.
func NewCache(cfg *infra.Config, signer signedurl.Signer, logger *infra.Logger) (*signedurl.Cache, error) {
	return signedurl.New(signer, signedurl.Options{
		Policies: map[string]signedurl.Policy{
			cfg.ReferenceBucket: signedurl.ReferencePolicy(),
			cfg.WorkspaceBucket: signedurl.WorkspacePolicy(),
		},
		DefaultPolicy: signedurl.WorkspacePolicy(),
		Logger:        logger,
	})
}

// Timeline builds the timeline manager from the frame settings.
func Timeline(cfg *infra.Config) *timeline.Manager {
	return timeline.NewManager(timeline.Config{
		MaxFrame:     cfg.TimelineMaxFrame,
		FrameQuantum: cfg.TimelineFrameQuantum,
		MaxSlots:     cfg.TimelineMaxSlots,
	})
}

// Orchestrator wires the submission pipeline.
func Orchestrator(cfg *infra.Config, catalog *registry.Catalog, providers video.Registry, recorder generation.JobRecorder, logger *infra.Logger) (*generation.Orchestrator, error) {
	return generation.New(generation.Options{
		Router:    catalog.Router,
		Timeline:  Timeline(cfg),
		Resolver:  catalog.Resolver,
		Providers: providers,
		Recorder:  recorder,
		Logger:    logger,
	})
}
