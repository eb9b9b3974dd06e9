package handlers

import (
	"net/http"
	"strings"

	"clipstudio/internal/domain"
)

type clipTypeView struct {
	domain.ClipTypeDescriptor
	References domain.ReferenceRequirement `json:"references"`
}

func (a *App) ClipTypes(w http.ResponseWriter, r *http.Request) {
	descriptors := a.orchestrator.Descriptors()
	items := make([]clipTypeView, 0, len(descriptors))
	for _, d := range descriptors {
		items = append(items, clipTypeView{ClipTypeDescriptor: d, References: d.Requirement()})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// Models lists registered models, optionally filtered by ?modality= and
// ?task=.
func (a *App) Models(w http.ResponseWriter, r *http.Request) {
	modality := domain.Modality(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("modality"))))
	task := strings.TrimSpace(r.URL.Query().Get("task"))
	models := a.orchestrator.Resolver().Models(modality)
	items := make([]domain.ModelDescriptor, 0, len(models))
	for _, m := range models {
		if task != "" && !m.Supports(task) {
			continue
		}
		items = append(items, m)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
