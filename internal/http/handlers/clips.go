package handlers

import (
	"net/http"
	"strings"

	"clipstudio/internal/domain"
	"clipstudio/internal/generation"
)

type submitResponse struct {
	JobID    string           `json:"job_id"`
	Status   domain.JobStatus `json:"status"`
	Progress int              `json:"progress"`
	ModelID  string           `json:"model_id"`
	Provider string           `json:"provider"`
}

type planResponse struct {
	ClipType        domain.ClipType        `json:"clip_type"`
	Task            string                 `json:"task"`
	Model           domain.ModelDescriptor `json:"model"`
	DurationSeconds float64                `json:"duration_seconds"`
	ReferenceSlots  []domain.ReferenceSlot `json:"reference_slots"`
}

// SubmitClip validates the authoring input and submits it to the resolved
// provider. A request carrying an Idempotency-Key that is already being
// submitted is rejected with 409.
func (a *App) SubmitClip(w http.ResponseWriter, r *http.Request) {
	var in generation.SubmitInput
	if err := decode(w, r, &in); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		if !a.acquire(key) {
			a.error(w, http.StatusConflict, "duplicate_submission", "a submission with this idempotency key is in progress")
			return
		}
		defer a.release(key)
	}

	job, err := a.orchestrator.Submit(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, submitResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		ModelID:  job.ModelID,
		Provider: job.ProviderID,
	})
}

// PlanClip runs submission validation and model resolution without calling
// a provider.
func (a *App) PlanClip(w http.ResponseWriter, r *http.Request) {
	var in generation.SubmitInput
	if err := decode(w, r, &in); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req, err := a.orchestrator.Plan(in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, planResponse{
		ClipType:        req.ClipType,
		Task:            req.Task,
		Model:           req.Model,
		DurationSeconds: req.DurationSeconds,
		ReferenceSlots:  req.ReferenceSlots,
	})
}

func (a *App) acquire(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inflight[key]; busy {
		return false
	}
	a.inflight[key] = struct{}{}
	return true
}

func (a *App) release(key string) {
	a.mu.Lock()
	delete(a.inflight, key)
	a.mu.Unlock()
}
