// Package modelresolver picks a concrete generation model from a read-only
// registry given the capabilities a clip needs.
package modelresolver

import (
	"fmt"
	"sort"
	"strings"

	"clipstudio/internal/domain"
)

// Resolver ranks registry entries by capability. The registry is copied at
// construction and never mutated.
type Resolver struct {
	models []domain.ModelDescriptor
	byID   map[string]int
}

// New builds a Resolver over models. Later duplicates of an id are ignored
// so the first registration wins.
func New(models []domain.ModelDescriptor) *Resolver {
	r := &Resolver{
		models: make([]domain.ModelDescriptor, 0, len(models)),
		byID:   make(map[string]int, len(models)),
	}
	for _, m := range models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			continue
		}
		if _, dup := r.byID[id]; dup {
			continue
		}
		m.ID = id
		m.Tasks = append([]string(nil), m.Tasks...)
		r.byID[id] = len(r.models)
		r.models = append(r.models, m)
	}
	return r
}

// Lookup returns the model registered under id.
func (r *Resolver) Lookup(id string) (domain.ModelDescriptor, bool) {
	idx, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.ModelDescriptor{}, false
	}
	return r.models[idx], true
}

// Models lists registered models of modality in registration order. An empty
// modality lists everything.
func (r *Resolver) Models(modality domain.Modality) []domain.ModelDescriptor {
	out := make([]domain.ModelDescriptor, 0, len(r.models))
	for _, m := range r.models {
		if modality == "" || m.Modality == modality {
			out = append(out, m)
		}
	}
	return out
}

// Resolve returns the model to use for required tasks and modality.
//
// An explicit id wins when it exists, matches modality and supports at least
// one required task. Otherwise models whose tasks cover every required task
// are ranked; if none do, models covering at least one are ranked instead.
// Ranking prefers IsDefault, then higher Priority, then registration order.
func (r *Resolver) Resolve(required []string, modality domain.Modality, explicitID string) (domain.ModelDescriptor, error) {
	required = normalizeTasks(required)
	if explicitID = strings.TrimSpace(explicitID); explicitID != "" {
		if m, ok := r.Lookup(explicitID); ok && m.Modality == modality && coversAny(m, required) {
			return m, nil
		}
	}

	var strict, relaxed []int
	for i, m := range r.models {
		if m.Modality != modality {
			continue
		}
		if coversAll(m, required) {
			strict = append(strict, i)
		} else if coversAny(m, required) {
			relaxed = append(relaxed, i)
		}
	}
	candidates := strict
	if len(candidates) == 0 {
		candidates = relaxed
	}
	if len(candidates) == 0 {
		return domain.ModelDescriptor{}, fmt.Errorf("modelresolver: %s model for tasks [%s]: %w",
			modality, strings.Join(required, ", "), domain.ErrNoEligibleModel)
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		ma, mb := r.models[candidates[a]], r.models[candidates[b]]
		if ma.IsDefault != mb.IsDefault {
			return ma.IsDefault
		}
		if ma.Priority != mb.Priority {
			return ma.Priority > mb.Priority
		}
		return candidates[a] < candidates[b]
	})
	return r.models[candidates[0]], nil
}

func normalizeTasks(tasks []string) []string {
	out := make([]string, 0, len(tasks))
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func coversAll(m domain.ModelDescriptor, required []string) bool {
	for _, t := range required {
		if !m.Supports(t) {
			return false
		}
	}
	return true
}

// coversAny treats an empty requirement as satisfied.
func coversAny(m domain.ModelDescriptor, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, t := range required {
		if m.Supports(t) {
			return true
		}
	}
	return false
}
