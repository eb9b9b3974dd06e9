package video

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"clipstudio/internal/domain"
	"clipstudio/internal/providers/genai"
)

const (
	geminiProviderName = "gemini"
	veoMinSeconds      = 4
	veoMaxSeconds      = 8
)

// GeminiProvider submits clips to Veo through the Gemini long-running
// operations API. Job ids are operation names.
type GeminiProvider struct {
	client      *genai.Client
	aspectRatio string
}

func NewGeminiProvider(client *genai.Client, aspectRatio string) *GeminiProvider {
	if strings.TrimSpace(aspectRatio) == "" {
		aspectRatio = "16:9"
	}
	return &GeminiProvider{client: client, aspectRatio: aspectRatio}
}

func (g *GeminiProvider) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	videoReq := genai.VideoRequest{
		Model:           req.Model.ID,
		Prompt:          req.Prompt,
		AspectRatio:     g.aspectRatio,
		DurationSeconds: veoDuration(req.DurationSeconds),
		Seed:            req.Seed,
	}
	first, last := keyframes(req.ReferenceSlots)
	if first != nil {
		frame, err := g.client.DownloadFrame(ctx, first.MediaURL())
		if err != nil {
			return "", fmt.Errorf("gemini: first frame: %w", err)
		}
		videoReq.FirstFrame = frame
	}
	if last != nil {
		frame, err := g.client.DownloadFrame(ctx, last.MediaURL())
		if err != nil {
			return "", fmt.Errorf("gemini: last frame: %w", err)
		}
		videoReq.LastFrame = frame
	}
	name, err := g.client.StartVideo(ctx, videoReq)
	if err != nil {
		return "", asRejection(err)
	}
	return name, nil
}

func (g *GeminiProvider) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	op, err := g.client.Operation(ctx, jobID)
	if err != nil {
		return nil, asRejection(err)
	}
	switch {
	case !op.Done:
		return &JobStatus{Status: StatusProcessing}, nil
	case op.ErrorMessage != "":
		return &JobStatus{Status: StatusFailed, ErrorDetails: op.ErrorMessage}, nil
	case op.VideoURI == "" && op.FilteredCount > 0:
		detail := "content policy: output filtered"
		if len(op.FilterReasons) > 0 {
			detail = "content policy: " + strings.Join(op.FilterReasons, "; ")
		}
		return &JobStatus{Status: StatusFailed, ErrorDetails: detail}, nil
	default:
		return &JobStatus{Status: StatusCompleted, ResultURL: op.VideoURI}, nil
	}
}

// keyframes picks the image slots usable as first and last frame. Video
// references have no Veo equivalent and are skipped.
// FetchAsset downloads a finished video, authenticating against the API host.
func (g *GeminiProvider) FetchAsset(ctx context.Context, resultURL string) ([]byte, string, error) {
	return g.client.DownloadVideo(ctx, resultURL)
}

func keyframes(slots []domain.ReferenceSlot) (first, last *domain.ReferenceSlot) {
	var images []domain.ReferenceSlot
	for _, s := range slots {
		if s.Active() && !s.IsVideo {
			images = append(images, s)
		}
	}
	if len(images) == 0 {
		return nil, nil
	}
	if images[0].FrameNum == 0 {
		first = &images[0]
	}
	if tail := images[len(images)-1]; len(images) > 1 || first == nil {
		last = &tail
	}
	return first, last
}

func veoDuration(seconds float64) int {
	d := int(math.Round(seconds))
	if d < veoMinSeconds {
		return veoMinSeconds
	}
	if d > veoMaxSeconds {
		return veoMaxSeconds
	}
	return d
}

func asRejection(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return &RejectionError{Provider: geminiProviderName, StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	if errors.Is(err, genai.ErrMissingAPIKey) {
		return &RejectionError{Provider: geminiProviderName, Message: err.Error()}
	}
	return err
}

var _ Provider = (*GeminiProvider)(nil)
