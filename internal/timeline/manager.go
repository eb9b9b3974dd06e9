// Package timeline manages the bounded, frame-indexed set of reference slots
// attached to a clip.
package timeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"clipstudio/internal/domain"
)

const (
	DefaultMaxFrame     = 160
	DefaultFrameQuantum = 8
	DefaultMaxSlots     = 10
	DefaultSlotStrength = 1.0
	anchorStart         = "start"
	anchorEnd           = "end"
)

// Config carries the timeline tuning values.
type Config struct {
	MaxFrame     int
	FrameQuantum int
	MaxSlots     int
}

// DefaultConfig returns the standard 160 frame, 8 frame quantum, 10 slot
// timeline.
func DefaultConfig() Config {
	return Config{MaxFrame: DefaultMaxFrame, FrameQuantum: DefaultFrameQuantum, MaxSlots: DefaultMaxSlots}
}

func (c Config) normalized() Config {
	if c.MaxFrame <= 0 {
		c.MaxFrame = DefaultMaxFrame
	}
	if c.FrameQuantum <= 0 {
		c.FrameQuantum = DefaultFrameQuantum
	}
	if c.MaxSlots <= 0 {
		c.MaxSlots = DefaultMaxSlots
	}
	return c
}

// Manager validates and transforms slot lists. It holds no slot state.
type Manager struct {
	cfg Config
}

// NewManager returns a Manager; zero fields in cfg take defaults.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg.normalized()}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// AutoSpace spreads count positions over [0, MaxFrame].
func (m *Manager) AutoSpace(count int) []int {
	return autoSpace(count, m.cfg.MaxFrame, m.cfg.FrameQuantum)
}

// AutoSpace spreads count positions over [0, maxFrame] on the default 8 frame
// quantum. The first position is always 0 and no position exceeds maxFrame.
func AutoSpace(count, maxFrame int) []int {
	return autoSpace(count, maxFrame, DefaultFrameQuantum)
}

func autoSpace(count, maxFrame, quantum int) []int {
	if count <= 1 {
		return []int{0}
	}
	step := (maxFrame / (count - 1)) / quantum * quantum
	frames := make([]int, count)
	for i := range frames {
		frames[i] = min(i*step, maxFrame)
	}
	return frames
}

// Placeholders seeds count inert slots at auto-spaced positions.
func (m *Manager) Placeholders(count int) []domain.ReferenceSlot {
	frames := m.AutoSpace(count)
	slots := make([]domain.ReferenceSlot, len(frames))
	for i, f := range frames {
		slots[i] = domain.ReferenceSlot{FrameNum: f, Strength: DefaultSlotStrength}
	}
	return slots
}

// ValidationError lists every problem found in a slot list.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "timeline: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return domain.ErrInvalidTimeline
}

// Validate checks slot count, frame quantization and range, strength range
// and frame uniqueness among active slots. The returned error wraps
// domain.ErrInvalidTimeline.
func (m *Manager) Validate(slots []domain.ReferenceSlot) error {
	var problems []string
	if len(slots) > m.cfg.MaxSlots {
		problems = append(problems, fmt.Sprintf("%d slots exceeds the limit of %d", len(slots), m.cfg.MaxSlots))
	}
	seen := make(map[int]int, len(slots))
	for i, s := range slots {
		if s.FrameNum < 0 || s.FrameNum > m.cfg.MaxFrame {
			problems = append(problems, fmt.Sprintf("slot %d: frame %d outside [0, %d]", i, s.FrameNum, m.cfg.MaxFrame))
		} else if s.FrameNum%m.cfg.FrameQuantum != 0 {
			problems = append(problems, fmt.Sprintf("slot %d: frame %d is not a multiple of %d", i, s.FrameNum, m.cfg.FrameQuantum))
		}
		if math.IsNaN(s.Strength) || s.Strength < 0 || s.Strength > 1 {
			problems = append(problems, fmt.Sprintf("slot %d: strength %v outside [0, 1]", i, s.Strength))
		}
		if !s.Active() {
			continue
		}
		if prev, dup := seen[s.FrameNum]; dup {
			problems = append(problems, fmt.Sprintf("slot %d: frame %d already used by slot %d", i, s.FrameNum, prev))
			continue
		}
		seen[s.FrameNum] = i
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ActiveSlots drops placeholders and returns the rest ascending by frame in
// a new slice.
func (m *Manager) ActiveSlots(slots []domain.ReferenceSlot) []domain.ReferenceSlot {
	return ActiveSlots(slots)
}

// ActiveSlots is the configuration-free form of Manager.ActiveSlots.
func ActiveSlots(slots []domain.ReferenceSlot) []domain.ReferenceSlot {
	out := make([]domain.ReferenceSlot, 0, len(slots))
	for _, s := range slots {
		if !s.Active() {
			continue
		}
		u := s.MediaURL()
		s.URL = &u
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FrameNum < out[j].FrameNum })
	return out
}

// MissingAnchors names the required anchors with no active slot. The start
// anchor is frame 0. The end anchor is the latest active slot past frame 0,
// so auto-spaced layouts that stop short of MaxFrame still close the clip.
func (m *Manager) MissingAnchors(slots []domain.ReferenceSlot, req domain.ReferenceRequirement) []string {
	var hasStart, hasEnd bool
	for _, s := range slots {
		if !s.Active() {
			continue
		}
		if s.FrameNum == 0 {
			hasStart = true
		} else {
			hasEnd = true
		}
	}
	var missing []string
	if req.Start && !hasStart {
		missing = append(missing, anchorStart)
	}
	if req.End && !hasEnd {
		missing = append(missing, anchorEnd)
	}
	return missing
}
