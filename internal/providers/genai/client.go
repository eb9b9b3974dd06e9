package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clipstudio/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("genai: api key is required")

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the Gemini API long-running video endpoints
// (predictLongRunning + operations).
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// Frame is a conditioning image passed inline to the video model.
type Frame struct {
	Data     []byte
	MimeType string
}

// VideoRequest represents the information required to start a video generation.
type VideoRequest struct {
	Model           string
	Prompt          string
	NegativePrompt  string
	AspectRatio     string
	DurationSeconds int
	Seed            *int
	FirstFrame      *Frame
	LastFrame       *Frame
	RequestID       string
}

// Operation is the normalized view of a long-running generation operation.
type Operation struct {
	Name          string
	Done          bool
	VideoURI      string
	ErrorCode     int
	ErrorMessage  string
	FilteredCount int
	FilterReasons []string
}

// APIError is a non-2xx response from the Gemini API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt    string       `json:"prompt"`
	Image     *inlineImage `json:"image,omitempty"`
	LastFrame *inlineImage `json:"lastFrame,omitempty"`
}

type inlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type predictParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	NegativePrompt  string `json:"negativePrompt,omitempty"`
	Seed            *int   `json:"seed,omitempty"`
	SampleCount     int    `json:"sampleCount,omitempty"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RAIMediaFilteredCount   int      `json:"raiMediaFilteredCount"`
			RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "veo-3.0-generate-preview"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured default model identifier.
func (c *Client) Model() string {
	return c.model
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// StartVideo starts a long-running video generation and returns the
// operation name to poll.
func (c *Client) StartVideo(ctx context.Context, req VideoRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	instance := predictInstance{Prompt: buildVideoPrompt(req)}
	if req.FirstFrame != nil && len(req.FirstFrame.Data) > 0 {
		instance.Image = encodeFrame(req.FirstFrame)
	}
	if req.LastFrame != nil && len(req.LastFrame.Data) > 0 {
		instance.LastFrame = encodeFrame(req.LastFrame)
	}
	payload := predictRequest{
		Instances: []predictInstance{instance},
		Parameters: predictParameters{
			AspectRatio:     strings.TrimSpace(req.AspectRatio),
			DurationSeconds: req.DurationSeconds,
			NegativePrompt:  strings.TrimSpace(req.NegativePrompt),
			Seed:            req.Seed,
			SampleCount:     1,
		},
	}

	var op operationResponse
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(model))
	if err := c.invokeGemini(ctx, http.MethodPost, path, payload, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", errors.New("genai: operation name missing from response")
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", model).
		Str("operation", op.Name).
		Msg("genai: started video operation")

	return op.Name, nil
}

// Operation fetches the current state of a long-running operation.
func (c *Client) Operation(ctx context.Context, name string) (*Operation, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return nil, errors.New("genai: operation name is required")
	}
	var op operationResponse
	if err := c.invokeGemini(ctx, http.MethodGet, "/"+name, nil, &op); err != nil {
		return nil, err
	}
	out := &Operation{Name: op.Name, Done: op.Done}
	if op.Error != nil {
		out.ErrorCode = op.Error.Code
		out.ErrorMessage = op.Error.Message
	}
	if op.Response != nil {
		resp := op.Response.GenerateVideoResponse
		out.FilteredCount = resp.RAIMediaFilteredCount
		out.FilterReasons = resp.RAIMediaFilteredReasons
		for _, sample := range resp.GeneratedSamples {
			if uri := strings.TrimSpace(sample.Video.URI); uri != "" {
				out.VideoURI = uri
				break
			}
		}
	}
	return out, nil
}

// DownloadFrame fetches a reference image so it can be sent inline.
func (c *Client) DownloadFrame(ctx context.Context, uri string) (*Frame, error) {
	data, mime, err := c.downloadFile(ctx, uri, false)
	if err != nil {
		return nil, err
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return &Frame{Data: data, MimeType: mime}, nil
}

// DownloadVideo fetches a generated video. Files served by the API itself
// need the API key.
func (c *Client) DownloadVideo(ctx context.Context, uri string) ([]byte, string, error) {
	return c.downloadFile(ctx, uri, true)
}

func (c *Client) invokeGemini(ctx context.Context, method, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) downloadFile(ctx context.Context, uri string, withKey bool) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	if withKey && c.apiKey != "" && c.sameHost(req.URL) {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("download file status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) sameHost(u *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	return err == nil && strings.EqualFold(base.Host, u.Host)
}

func encodeFrame(f *Frame) *inlineImage {
	mime := strings.TrimSpace(f.MimeType)
	if mime == "" {
		mime = "image/png"
	}
	return &inlineImage{
		BytesBase64Encoded: base64.StdEncoding.EncodeToString(f.Data),
		MimeType:           mime,
	}
}

func buildVideoPrompt(req VideoRequest) string {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "Create a short cinematic clip"
	}
	return prompt
}
