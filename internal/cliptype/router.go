// Package cliptype routes narrative clip types to generation tasks, default
// durations and reference anchor requirements.
package cliptype

import (
	"fmt"
	"strings"

	"clipstudio/internal/domain"
)

// Router is a read-only lookup over a clip type table.
type Router struct {
	order       []domain.ClipType
	descriptors map[domain.ClipType]domain.ClipTypeDescriptor
}

// DefaultTable returns the built-in routing table.
func DefaultTable() []domain.ClipTypeDescriptor {
	return []domain.ClipTypeDescriptor{
		{ClipType: domain.ClipTypeEstablishing, Task: domain.TaskTextToVideo, DefaultDurationSeconds: 6},
		{ClipType: domain.ClipTypeDialogue, Task: domain.TaskTextToVideo, DefaultDurationSeconds: 5},
		{ClipType: domain.ClipTypeAction, Task: domain.TaskTextToVideo, DefaultDurationSeconds: 4},
		{ClipType: domain.ClipTypeReaction, Task: domain.TaskImageToVideo, DefaultDurationSeconds: 3, RequiresStartReference: true},
		{ClipType: domain.ClipTypeTransition, Task: domain.TaskKeyframeInterpolation, DefaultDurationSeconds: 3, RequiresStartReference: true, RequiresEndReference: true},
		{ClipType: domain.ClipTypeClosing, Task: domain.TaskImageToVideo, DefaultDurationSeconds: 5, RequiresEndReference: true},
	}
}

// NewDefaultRouter builds a Router over DefaultTable.
func NewDefaultRouter() *Router {
	r, err := NewRouter(DefaultTable())
	if err != nil {
		panic(err)
	}
	return r
}

// NewRouter validates table and builds a Router. Every clip type must appear
// exactly once with a task and a positive default duration.
func NewRouter(table []domain.ClipTypeDescriptor) (*Router, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("cliptype: table is empty")
	}
	r := &Router{
		order:       make([]domain.ClipType, 0, len(table)),
		descriptors: make(map[domain.ClipType]domain.ClipTypeDescriptor, len(table)),
	}
	for _, d := range table {
		tag := domain.ClipType(strings.TrimSpace(string(d.ClipType)))
		if tag == "" {
			return nil, fmt.Errorf("cliptype: descriptor without clip type")
		}
		if _, dup := r.descriptors[tag]; dup {
			return nil, fmt.Errorf("cliptype: duplicate descriptor for %q", tag)
		}
		if strings.TrimSpace(d.Task) == "" {
			return nil, fmt.Errorf("cliptype: %q has no task", tag)
		}
		if d.DefaultDurationSeconds <= 0 {
			return nil, fmt.Errorf("cliptype: %q has non-positive default duration", tag)
		}
		d.ClipType = tag
		r.descriptors[tag] = d
		r.order = append(r.order, tag)
	}
	return r, nil
}

// Resolve returns the descriptor for clipType. An unregistered tag is a
// contract violation by the caller and wraps domain.ErrUnknownClipType.
func (r *Router) Resolve(clipType domain.ClipType) (domain.ClipTypeDescriptor, error) {
	d, ok := r.descriptors[clipType]
	if !ok {
		return domain.ClipTypeDescriptor{}, fmt.Errorf("cliptype: %q: %w", clipType, domain.ErrUnknownClipType)
	}
	return d, nil
}

// MustResolve is Resolve for statically known clip types.
func (r *Router) MustResolve(clipType domain.ClipType) domain.ClipTypeDescriptor {
	d, err := r.Resolve(clipType)
	if err != nil {
		panic(err)
	}
	return d
}

// ReferenceRequirement returns which anchors clipType needs filled.
func (r *Router) ReferenceRequirement(clipType domain.ClipType) (domain.ReferenceRequirement, error) {
	d, err := r.Resolve(clipType)
	if err != nil {
		return domain.ReferenceRequirement{}, err
	}
	return d.Requirement(), nil
}

// ClipTypes lists registered tags in table order.
func (r *Router) ClipTypes() []domain.ClipType {
	out := make([]domain.ClipType, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptors lists descriptors in table order.
func (r *Router) Descriptors() []domain.ClipTypeDescriptor {
	out := make([]domain.ClipTypeDescriptor, 0, len(r.order))
	for _, tag := range r.order {
		out = append(out, r.descriptors[tag])
	}
	return out
}
