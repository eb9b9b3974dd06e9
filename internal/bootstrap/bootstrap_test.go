package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"clipstudio/internal/infra"
	"clipstudio/internal/providers/video"
	"clipstudio/internal/registry"
	"clipstudio/internal/signedurl"
	"clipstudio/internal/storage"
)

type staticKeys map[string]string

func (k staticKeys) ResolveAPIKey(ctx context.Context, provider, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key, ok := k[provider]; ok {
		return key, nil
	}
	return "", errors.New("no stored key")
}

func testLogger() *infra.Logger {
	l := zerolog.Nop()
	return &l
}

func baseConfig(t *testing.T) *infra.Config {
	t.Helper()
	return &infra.Config{
		GeminiBaseURL:        "https://gemini.test/v1beta",
		ProviderAspectRatio:  "16:9",
		StorageDriver:        infra.StorageDriverLocal,
		StoragePath:          t.TempDir(),
		StorageBaseURL:       "http://localhost:8080/v1/files",
		StorageSigningKey:    "test-key",
		ReferenceBucket:      "references",
		WorkspaceBucket:      "workspace",
		TimelineMaxFrame:     160,
		TimelineFrameQuantum: 8,
		TimelineMaxSlots:     10,
	}
}

func TestProvidersFallBackToSynthetic(t *testing.T) {
	cfg := baseConfig(t)
	providers, err := Providers(context.Background(), cfg, registry.Default(), nil, testLogger())
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	for _, id := range []string{registry.ProviderGemini, registry.ProviderHTTP} {
		p, err := providers.Get(id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if _, ok := p.(*video.SyntheticProvider); !ok {
			t.Fatalf("%s provider = %T, want synthetic", id, p)
		}
	}
}

func TestProvidersUseResolvedKeys(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ProviderBaseURL = "https://videos.test"
	keys := staticKeys{registry.ProviderGemini: "stored-gemini", registry.ProviderHTTP: "stored-http"}

	providers, err := Providers(context.Background(), cfg, registry.Default(), keys, testLogger())
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	if _, ok := providers[registry.ProviderGemini].(*video.GeminiProvider); !ok {
		t.Fatalf("gemini provider = %T", providers[registry.ProviderGemini])
	}
	if _, ok := providers[registry.ProviderHTTP].(*video.HTTPProvider); !ok {
		t.Fatalf("http provider = %T", providers[registry.ProviderHTTP])
	}
}

func TestNewStorageLocal(t *testing.T) {
	cfg := baseConfig(t)
	st, err := NewStorage(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	if st.Files == nil {
		t.Fatalf("expected a file handler for local storage")
	}
	if _, ok := st.Writer.(*storage.FileStore); !ok {
		t.Fatalf("writer = %T, want *storage.FileStore", st.Writer)
	}

	ctx := context.Background()
	if err := st.Writer.Put(ctx, "workspace", "clips/dialogue/j.mp4", []byte("clip"), "video/mp4"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.StoragePath, "workspace", "clips", "dialogue", "j.mp4")); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	signed, err := st.Signer.Sign(ctx, "workspace", "clips/dialogue/j.mp4", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, signed[len("http://localhost:8080/v1/files"):], nil)
	rec := httptest.NewRecorder()
	st.Files.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "clip" {
		t.Fatalf("serve = %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewCacheBucketPolicies(t *testing.T) {
	cfg := baseConfig(t)
	signer := signedurl.SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		return "https://signed.test/" + bucket + "/" + path, nil
	})
	cache, err := NewCache(cfg, signer, testLogger())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if got := cache.PolicyFor("references"); got != signedurl.ReferencePolicy() {
		t.Fatalf("reference policy = %+v", got)
	}
	if got := cache.PolicyFor("workspace"); got != signedurl.WorkspacePolicy() {
		t.Fatalf("workspace policy = %+v", got)
	}
}

func TestTimelineFromConfig(t *testing.T) {
	m := Timeline(baseConfig(t))
	frames := m.AutoSpace(3)
	if len(frames) != 3 || frames[0] != 0 || frames[2] != 160 {
		t.Fatalf("frames = %v", frames)
	}
}
