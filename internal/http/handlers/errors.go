package handlers

import (
	"errors"
	"net/http"

	"clipstudio/internal/domain"
	"clipstudio/internal/middleware"
	"clipstudio/internal/timeline"
)

type errorDetail struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Detail   string   `json:"detail,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func (a *App) error(w http.ResponseWriter, code int, codeStr, msg string) {
	a.json(w, code, errorBody{Error: errorDetail{Code: codeStr, Message: msg}})
}

// First match wins. Submission failures are checked after the provider
// kinds they may wrap so those keep their own status.
var errorStatuses = []struct {
	kind   error
	status int
}{
	{domain.ErrUnknownClipType, http.StatusUnprocessableEntity},
	{domain.ErrMissingRequiredReference, http.StatusUnprocessableEntity},
	{domain.ErrInvalidTimeline, http.StatusUnprocessableEntity},
	{domain.ErrNoEligibleModel, http.StatusUnprocessableEntity},
	{domain.ErrInvalidPrompt, http.StatusUnprocessableEntity},
	{domain.ErrRateLimited, http.StatusTooManyRequests},
	{domain.ErrContentPolicyViolation, http.StatusUnprocessableEntity},
	{domain.ErrSubmissionFailed, http.StatusBadGateway},
	{domain.ErrSigningFailed, http.StatusBadGateway},
	{domain.ErrNotFound, http.StatusNotFound},
}

func classify(err error) (int, error) {
	for _, m := range errorStatuses {
		if errors.Is(err, m.kind) {
			return m.status, m.kind
		}
	}
	return http.StatusInternalServerError, nil
}

// fail writes err as a localized API error.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	status, kind := classify(err)
	body := errorDetail{Code: "internal", Message: domain.UserMessage(err, locale)}
	if kind != nil {
		body.Code = domain.ErrorCode(kind)
		body.Message = domain.UserMessage(kind, locale)
	}
	if status == http.StatusUnprocessableEntity {
		body.Detail = err.Error()
		var verr *timeline.ValidationError
		if errors.As(err, &verr) {
			body.Problems = verr.Problems
		}
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("http: request failed")
	}
	a.json(w, status, errorBody{Error: body})
}
