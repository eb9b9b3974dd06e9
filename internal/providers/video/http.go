package video

import (
	"bytes"
	"context"
	"encoding/json"
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
)

// ErrMissingAPIKey indicates that the provider was configured without credentials.
var ErrMissingAPIKey = errors.New("video: api key is required")

// HTTPOptions configures an HTTPProvider.
type HTTPOptions struct {
	Name           string
	APIKey         string
	BaseURL        string
	AspectRatio    string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// HTTPProvider speaks the generic generations REST contract:
// POST {base}/generations and GET {base}/generations/{id}.
type HTTPProvider struct {
	name        string
	apiKey      string
	baseURL     string
	aspectRatio string
	httpClient  *http.Client
	logger      *infra.Logger
}

type submitPayload struct {
	Model           string             `json:"model"`
	Task            string             `json:"task"`
	ClipType        string             `json:"clip_type"`
	Prompt          string             `json:"prompt"`
	DurationSeconds float64            `json:"duration_seconds"`
	AspectRatio     string             `json:"aspect_ratio,omitempty"`
	Seed            *int               `json:"seed,omitempty"`
	References      []referencePayload `json:"references,omitempty"`
}

type referencePayload struct {
	URL      string  `json:"url"`
	Type     string  `json:"type"`
	Frame    int     `json:"frame"`
	Strength float64 `json:"strength"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type statusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  *int   `json:"progress"`
	ResultURL string `json:"result_url"`
	Output    *struct {
		URL string `json:"url"`
	} `json:"output"`
	Error json.RawMessage `json:"error"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   any    `json:"error"`
}

// NewHTTPProvider constructs a provider with sane defaults and injected dependencies.
func NewHTTPProvider(opts HTTPOptions) (*HTTPProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("video: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("video: invalid base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "http"
	}
	aspect := strings.TrimSpace(opts.AspectRatio)
	if aspect == "" {
		aspect = "16:9"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &HTTPProvider{
		name:        name,
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		aspectRatio: aspect,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// Name returns the provider id.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Submit posts the generation request once. Rejections are returned as
// *RejectionError.
func (p *HTTPProvider) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	payload := submitPayload{
		Model:           req.Model.ID,
		Task:            req.Task,
		ClipType:        string(req.ClipType),
		Prompt:          strings.TrimSpace(req.Prompt),
		DurationSeconds: req.DurationSeconds,
		AspectRatio:     p.aspectRatio,
		Seed:            req.Seed,
	}
	for _, s := range req.ReferenceSlots {
		payload.References = append(payload.References, referencePayload{
			URL:      s.MediaURL(),
			Type:     referenceType(s),
			Frame:    s.FrameNum,
			Strength: s.Strength,
		})
	}

	var decoded submitResponse
	if err := p.do(ctx, http.MethodPost, "/generations", payload, &decoded); err != nil {
		return "", err
	}
	jobID := strings.TrimSpace(decoded.ID)
	if jobID == "" {
		return "", &RejectionError{Provider: p.name, Message: "empty job id in response"}
	}
	p.logger.Debug().
		Str("provider", p.name).
		Str("model", req.Model.ID).
		Str("job_id", jobID).
		Msg("video: submitted generation")
	return jobID, nil
}

// Status fetches the job state.
func (p *HTTPProvider) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("video: job id is required")
	}
	var decoded statusResponse
	if err := p.do(ctx, http.MethodGet, "/generations/"+url.PathEscape(jobID), nil, &decoded); err != nil {
		return nil, err
	}
	status := &JobStatus{
		Status:       decoded.Status,
		Progress:     decoded.Progress,
		ResultURL:    strings.TrimSpace(decoded.ResultURL),
		ErrorDetails: errorText(decoded.Error),
	}
	if status.ResultURL == "" && decoded.Output != nil {
		status.ResultURL = strings.TrimSpace(decoded.Output.URL)
	}
	return status, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("video: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("video: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("video: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &RejectionError{Provider: p.name, StatusCode: resp.StatusCode, Message: rejectionMessage(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("video: decode response: %w", err)
	}
	return nil
}

func rejectionMessage(raw []byte) string {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		switch {
		case detail.Message != "" && detail.Code != "":
			return fmt.Sprintf("%s (%s)", detail.Message, detail.Code)
		case detail.Message != "":
			return detail.Message
		case detail.Error != nil:
			if text := errorText(mustJSON(detail.Error)); text != "" {
				return text
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

// errorText accepts either a bare string or an object with a message field.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		if obj.Code != "" {
			return fmt.Sprintf("%s (%s)", obj.Message, obj.Code)
		}
		return obj.Message
	}
	return strings.TrimSpace(string(raw))
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

var _ Provider = (*HTTPProvider)(nil)
