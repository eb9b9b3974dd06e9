package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"clipstudio/internal/domain"
	"clipstudio/internal/generation"
	"clipstudio/internal/infra"
	"clipstudio/internal/signedurl"
)

// JobReader loads persisted generation jobs.
type JobReader interface {
	GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error)
}

// URLSigner hands out signed asset URLs.
type URLSigner interface {
	Get(ctx context.Context, bucket, path string) (string, error)
	Entry(bucket, path string) (signedurl.Entry, bool)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the API dependencies. Orchestrator is required.
type Options struct {
	Orchestrator *generation.Orchestrator
	Jobs         JobReader
	URLs         URLSigner
	DB           Pinger
	// Buckets limits which buckets may be signed. Empty allows any.
	Buckets []string
	// WorkspaceBucket holds archived results.
	WorkspaceBucket string
	Logger          *infra.Logger
}

type App struct {
	orchestrator *generation.Orchestrator
	jobs         JobReader
	urls         URLSigner
	db           Pinger
	buckets      map[string]struct{}
	workspace    string
	docs         *apiDocs
	logger       *infra.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewApp(opts Options) (*App, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("handlers: orchestrator is required")
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	buckets := make(map[string]struct{}, len(opts.Buckets))
	for _, b := range opts.Buckets {
		if b = strings.TrimSpace(b); b != "" {
			buckets[b] = struct{}{}
		}
	}
	docs, err := loadAPIDocs(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("handlers: openapi document: %w", err)
	}
	return &App{
		orchestrator: opts.Orchestrator,
		jobs:         opts.Jobs,
		urls:         opts.URLs,
		db:           opts.DB,
		buckets:      buckets,
		workspace:    strings.TrimSpace(opts.WorkspaceBucket),
		docs:         docs,
		logger:       logger,
		inflight:     make(map[string]struct{}),
	}, nil
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body of at most 1 MiB and rejects unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
