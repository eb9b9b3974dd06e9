package handlers

import (
	"fmt"
	"net/http"

	"clipstudio/internal/domain"
)

type autoSpaceRequest struct {
	Count int `json:"count"`
}

type validateRequest struct {
	Slots []domain.ReferenceSlot `json:"slots"`
}

// AutoSpace returns evenly spread frame positions and matching placeholder
// slots for a new timeline.
func (a *App) AutoSpace(w http.ResponseWriter, r *http.Request) {
	var req autoSpaceRequest
	if err := decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	manager := a.orchestrator.Timeline()
	maxSlots := manager.Config().MaxSlots
	if req.Count < 1 || req.Count > maxSlots {
		a.fail(w, r, fmt.Errorf("%w: count must be between 1 and %d", domain.ErrInvalidTimeline, maxSlots))
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"frames": manager.AutoSpace(req.Count),
		"slots":  manager.Placeholders(req.Count),
	})
}

// ValidateTimeline checks a slot list and returns its active slots in frame
// order.
func (a *App) ValidateTimeline(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	manager := a.orchestrator.Timeline()
	if err := manager.Validate(req.Slots); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"valid":  true,
		"active": manager.ActiveSlots(req.Slots),
	})
}
