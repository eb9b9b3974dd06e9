package timeline

import (
	"errors"
	"math"
	"testing"

	"clipstudio/internal/domain"
)

func TestAutoSpace(t *testing.T) {
	tests := []struct {
		count int
		want  []int
	}{
		{0, []int{0}},
		{1, []int{0}},
		{2, []int{0, 160}},
		{3, []int{0, 80, 160}},
		{5, []int{0, 40, 80, 120, 160}},
		{7, []int{0, 24, 48, 72, 96, 120, 144}},
	}
	for _, tc := range tests {
		got := AutoSpace(tc.count, DefaultMaxFrame)
		if len(got) != len(tc.want) {
			t.Fatalf("AutoSpace(%d) = %v, want %v", tc.count, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("AutoSpace(%d) = %v, want %v", tc.count, got, tc.want)
			}
		}
	}
}

func TestAutoSpaceInvariants(t *testing.T) {
	for count := 2; count <= DefaultMaxSlots; count++ {
		frames := AutoSpace(count, DefaultMaxFrame)
		if frames[0] != 0 {
			t.Fatalf("AutoSpace(%d)[0] = %d, want 0", count, frames[0])
		}
		for i, f := range frames {
			if f%DefaultFrameQuantum != 0 {
				t.Fatalf("AutoSpace(%d)[%d] = %d is not quantized", count, i, f)
			}
			if f > DefaultMaxFrame {
				t.Fatalf("AutoSpace(%d)[%d] = %d exceeds max frame", count, i, f)
			}
			if i > 0 && f <= frames[i-1] {
				t.Fatalf("AutoSpace(%d) not strictly ascending: %v", count, frames)
			}
		}
	}
}

func TestManagerAutoSpaceHonorsConfig(t *testing.T) {
	m := NewManager(Config{MaxFrame: 96, FrameQuantum: 4})
	got := m.AutoSpace(3)
	want := []int{0, 48, 96}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AutoSpace(3) = %v, want %v", got, want)
		}
	}
	if m.Config().MaxSlots != DefaultMaxSlots {
		t.Fatalf("MaxSlots default = %d", m.Config().MaxSlots)
	}
}

func TestValidateRejections(t *testing.T) {
	m := NewManager(DefaultConfig())
	eleven := make([]domain.ReferenceSlot, 11)
	for i := range eleven {
		eleven[i] = domain.ReferenceSlot{FrameNum: 0, Strength: 0.5}
	}
	tests := []struct {
		name  string
		slots []domain.ReferenceSlot
	}{
		{"frame not quantized", []domain.ReferenceSlot{domain.NewSlot("a.png", 7, 0.5, false)}},
		{"frame out of range", []domain.ReferenceSlot{domain.NewSlot("a.png", 168, 0.5, false)}},
		{"negative frame", []domain.ReferenceSlot{domain.NewSlot("a.png", -8, 0.5, false)}},
		{"strength above one", []domain.ReferenceSlot{domain.NewSlot("a.png", 0, 1.5, false)}},
		{"strength negative", []domain.ReferenceSlot{domain.NewSlot("a.png", 0, -0.1, false)}},
		{"strength NaN", []domain.ReferenceSlot{domain.NewSlot("a.png", 0, math.NaN(), false)}},
		{"duplicate frame", []domain.ReferenceSlot{
			domain.NewSlot("a.png", 0, 0.5, false),
			domain.NewSlot("b.png", 0, 0.5, false),
		}},
		{"eleven slots", eleven},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := m.Validate(tc.slots)
			if !errors.Is(err, domain.ErrInvalidTimeline) {
				t.Fatalf("Validate() error = %v, want ErrInvalidTimeline", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || len(verr.Problems) == 0 {
				t.Fatalf("expected ValidationError with problems, got %v", err)
			}
		})
	}
}

func TestValidateAcceptsPlaceholdersSharingFrames(t *testing.T) {
	m := NewManager(DefaultConfig())
	slots := []domain.ReferenceSlot{
		{FrameNum: 0, Strength: 1},
		{FrameNum: 0, Strength: 1},
		domain.NewSlot("a.png", 0, 0.8, false),
		domain.NewSlot("b.mp4", 160, 0.3, true),
	}
	if err := m.Validate(slots); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if err := m.Validate(nil); err != nil {
		t.Fatalf("Validate(nil) = %v, want nil", err)
	}
}

func TestActiveSlotsSortedWithoutPlaceholders(t *testing.T) {
	blank := "  "
	slots := []domain.ReferenceSlot{
		domain.NewSlot("c.png", 160, 1, false),
		{FrameNum: 8, Strength: 1},
		domain.NewSlot("a.png", 0, 1, false),
		{URL: &blank, FrameNum: 16, Strength: 1},
		domain.NewSlot("b.mp4", 80, 0.5, true),
	}
	got := ActiveSlots(slots)
	wantFrames := []int{0, 80, 160}
	if len(got) != len(wantFrames) {
		t.Fatalf("ActiveSlots() returned %d slots, want %d", len(got), len(wantFrames))
	}
	for i, s := range got {
		if s.FrameNum != wantFrames[i] {
			t.Fatalf("ActiveSlots()[%d].FrameNum = %d, want %d", i, s.FrameNum, wantFrames[i])
		}
		if !s.Active() {
			t.Fatalf("ActiveSlots()[%d] is a placeholder", i)
		}
	}
	if slots[0].FrameNum != 160 {
		t.Fatalf("input slice was reordered")
	}
}

func TestMissingAnchors(t *testing.T) {
	m := NewManager(DefaultConfig())
	both := domain.ReferenceRequirement{Start: true, End: true}
	startOnly := []domain.ReferenceSlot{domain.NewSlot("a.png", 0, 1, false), {FrameNum: 160, Strength: 1}}
	missing := m.MissingAnchors(startOnly, both)
	if len(missing) != 1 || missing[0] != "end" {
		t.Fatalf("MissingAnchors() = %v, want [end]", missing)
	}
	full := append(startOnly, domain.NewSlot("z.png", 160, 1, false))
	if missing := m.MissingAnchors(full, both); len(missing) != 0 {
		t.Fatalf("MissingAnchors() = %v, want none", missing)
	}
	if missing := m.MissingAnchors(nil, domain.ReferenceRequirement{}); len(missing) != 0 {
		t.Fatalf("MissingAnchors() = %v, want none", missing)
	}
}

func TestMissingAnchorsFilledPlaceholders(t *testing.T) {
	m := NewManager(DefaultConfig())
	both := domain.ReferenceRequirement{Start: true, End: true}
	for _, count := range []int{2, 4, 8, 10} {
		slots := m.Placeholders(count)
		for i := range slots {
			u := "https://cdn.test/ref.png"
			slots[i].URL = &u
		}
		if err := m.Validate(slots); err != nil {
			t.Fatalf("Validate(Placeholders(%d)) error = %v", count, err)
		}
		if missing := m.MissingAnchors(slots, both); len(missing) != 0 {
			t.Fatalf("MissingAnchors(Placeholders(%d)) = %v, want none", count, missing)
		}
	}

	single := []domain.ReferenceSlot{domain.NewSlot("a.png", 0, 1, false)}
	if missing := m.MissingAnchors(single, both); len(missing) != 1 || missing[0] != "end" {
		t.Fatalf("MissingAnchors(start only) = %v, want [end]", missing)
	}
	late := []domain.ReferenceSlot{domain.NewSlot("z.png", 144, 1, false)}
	if missing := m.MissingAnchors(late, both); len(missing) != 1 || missing[0] != "start" {
		t.Fatalf("MissingAnchors(end only) = %v, want [start]", missing)
	}
}

func TestPlaceholders(t *testing.T) {
	m := NewManager(DefaultConfig())
	slots := m.Placeholders(3)
	if len(slots) != 3 {
		t.Fatalf("Placeholders(3) returned %d slots", len(slots))
	}
	for _, s := range slots {
		if s.Active() {
			t.Fatalf("placeholder should be inert: %+v", s)
		}
	}
	if err := m.Validate(slots); err != nil {
		t.Fatalf("placeholders should validate: %v", err)
	}
	if len(m.ActiveSlots(slots)) != 0 {
		t.Fatalf("placeholders should not be active")
	}
}
