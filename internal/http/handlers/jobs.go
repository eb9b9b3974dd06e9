package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clipstudio/internal/domain"
	"clipstudio/internal/middleware"
)

type jobErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type jobView struct {
	ID          string            `json:"job_id"`
	ProviderID  string            `json:"provider"`
	ModelID     string            `json:"model_id"`
	ClipType    domain.ClipType   `json:"clip_type"`
	Status      domain.JobStatus  `json:"status"`
	Progress    int               `json:"progress"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Result      *domain.JobResult `json:"result,omitempty"`
	DownloadURL string            `json:"download_url,omitempty"`
	Error       *jobErrorView     `json:"error,omitempty"`
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	if a.jobs == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "job store not configured")
		return
	}
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	view := jobView{
		ID:         job.ID,
		ProviderID: job.ProviderID,
		ModelID:    job.ModelID,
		ClipType:   job.ClipType,
		Status:     job.Status,
		Progress:   job.Progress,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
		Result:     job.Result,
	}
	if job.Result != nil && job.Result.StorageKey != "" && a.urls != nil && a.workspace != "" {
		signed, err := a.urls.Get(r.Context(), a.workspace, job.Result.StorageKey)
		if err != nil {
			a.logger.Warn().Err(err).Str("job_id", job.ID).Msg("handlers: sign archived result failed")
		} else {
			view.DownloadURL = signed
		}
	}
	if job.Error != nil {
		view.Error = &jobErrorView{
			Code:    job.Error.KindCode(),
			Message: domain.UserMessage(job.Error, middleware.LocaleFromContext(r.Context())),
			Detail:  job.Error.Detail,
		}
	}
	a.json(w, http.StatusOK, view)
}
