package video

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"clipstudio/internal/domain"
)

func sampleRequest() domain.GenerationRequest {
	seed := 42
	return domain.GenerationRequest{
		ClipType:        domain.ClipTypeTransition,
		Task:            domain.TaskKeyframeInterpolation,
		Prompt:          " a door opens onto a beach ",
		Model:           domain.ModelDescriptor{ID: "ltx-video", ProviderID: "ltx"},
		DurationSeconds: 3,
		Seed:            &seed,
		ReferenceSlots: []domain.ReferenceSlot{
			domain.NewSlot("https://cdn.example.com/a.png", 0, 1, false),
			domain.NewSlot("https://cdn.example.com/b.mp4", 160, 0.4, true),
		},
	}
}

func TestHTTPProviderSubmitPayload(t *testing.T) {
	var captured submitPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/generations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "gen-123", "status": "queued"})
	}))
	defer server.Close()

	p, err := NewHTTPProvider(HTTPOptions{Name: "ltx", APIKey: "secret", BaseURL: server.URL + "/v1/"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	jobID, err := p.Submit(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if jobID != "gen-123" {
		t.Fatalf("job id = %q, want gen-123", jobID)
	}
	if auth != "Bearer secret" {
		t.Fatalf("authorization = %q", auth)
	}
	if captured.Model != "ltx-video" || captured.Task != domain.TaskKeyframeInterpolation {
		t.Fatalf("payload model/task = %q/%q", captured.Model, captured.Task)
	}
	if captured.Prompt != "a door opens onto a beach" {
		t.Fatalf("prompt = %q", captured.Prompt)
	}
	if captured.Seed == nil || *captured.Seed != 42 {
		t.Fatalf("seed = %v", captured.Seed)
	}
	if len(captured.References) != 2 {
		t.Fatalf("references = %d, want 2", len(captured.References))
	}
	if captured.References[1].Type != "video" || captured.References[1].Frame != 160 {
		t.Fatalf("second reference = %+v", captured.References[1])
	}
	if captured.AspectRatio != "16:9" {
		t.Fatalf("aspect ratio = %q", captured.AspectRatio)
	}
}

func TestHTTPProviderSubmitRejections(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"message":"slow down"}`, domain.ErrRateLimited},
		{"policy", http.StatusBadRequest, `{"error":{"message":"prompt violates content policy","code":"policy"}}`, domain.ErrContentPolicyViolation},
		{"generic", http.StatusBadRequest, `invalid duration`, domain.ErrProviderFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()
			p, err := NewHTTPProvider(HTTPOptions{APIKey: "k", BaseURL: server.URL})
			if err != nil {
				t.Fatalf("new provider: %v", err)
			}
			_, err = p.Submit(context.Background(), sampleRequest())
			var rej *RejectionError
			if !errors.As(err, &rej) {
				t.Fatalf("expected RejectionError, got %v", err)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("error %v does not match %v", err, tc.want)
			}
		})
	}
}

func TestHTTPProviderSubmitRequiresAPIKey(t *testing.T) {
	p, err := NewHTTPProvider(HTTPOptions{BaseURL: "https://api.example.com"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Submit(context.Background(), sampleRequest()); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("error = %v, want ErrMissingAPIKey", err)
	}
	if _, err := NewHTTPProvider(HTTPOptions{}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}

func TestHTTPProviderStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/generations/done":
			_, _ = w.Write([]byte(`{"id":"done","status":"succeeded","output":{"url":"https://cdn.example.com/out.mp4"}}`))
		case "/generations/running":
			_, _ = w.Write([]byte(`{"id":"running","status":"running","progress":35}`))
		case "/generations/bad":
			_, _ = w.Write([]byte(`{"id":"bad","status":"failed","error":"NSFW content detected"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"unknown generation"}`))
		}
	}))
	defer server.Close()
	p, err := NewHTTPProvider(HTTPOptions{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx := context.Background()

	done, err := p.Status(ctx, "done")
	if err != nil {
		t.Fatalf("status done: %v", err)
	}
	if done.Status != "succeeded" || done.ResultURL != "https://cdn.example.com/out.mp4" {
		t.Fatalf("done status = %+v", done)
	}
	running, err := p.Status(ctx, "running")
	if err != nil {
		t.Fatalf("status running: %v", err)
	}
	if running.Progress == nil || *running.Progress != 35 {
		t.Fatalf("running progress = %v", running.Progress)
	}
	bad, err := p.Status(ctx, "bad")
	if err != nil {
		t.Fatalf("status bad: %v", err)
	}
	if bad.ErrorDetails != "NSFW content detected" {
		t.Fatalf("error details = %q", bad.ErrorDetails)
	}
	_, err = p.Status(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing job error = %v, want ErrNotFound", err)
	}
	if IsTemporary(err) {
		t.Fatalf("not found should not be temporary")
	}
}

func TestIsTemporary(t *testing.T) {
	if !IsTemporary(errors.New("connection reset")) {
		t.Fatalf("network errors should be temporary")
	}
	if !IsTemporary(&RejectionError{StatusCode: http.StatusBadGateway}) {
		t.Fatalf("5xx should be temporary")
	}
	if IsTemporary(&RejectionError{StatusCode: http.StatusBadRequest, Message: "bad"}) {
		t.Fatalf("4xx should not be temporary")
	}
	if IsTemporary(nil) {
		t.Fatalf("nil is not temporary")
	}
}

func TestRegistryGet(t *testing.T) {
	reg := Registry{"synthetic": NewSyntheticProvider(SyntheticOptions{})}
	if _, err := reg.Get("synthetic"); err != nil {
		t.Fatalf("Get(synthetic): %v", err)
	}
	if _, err := reg.Get("missing"); err == nil {
		t.Fatalf("expected error for missing provider")
	}
	if _, err := reg.Status(context.Background(), "missing", "x"); err == nil {
		t.Fatalf("expected error for status on missing provider")
	}
}
