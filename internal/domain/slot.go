package domain

import "strings"

// ReferenceSlot anchors an optional image or video on the generation
// timeline. A nil URL marks an inert placeholder.
type ReferenceSlot struct {
	URL      *string `json:"url"`
	IsVideo  bool    `json:"is_video"`
	FrameNum int     `json:"frame_num"`
	Strength float64 `json:"strength"`
}

// Active reports whether the slot carries media.
func (s ReferenceSlot) Active() bool {
	return s.URL != nil && strings.TrimSpace(*s.URL) != ""
}

// MediaURL returns the slot URL or "" for placeholders.
func (s ReferenceSlot) MediaURL() string {
	if s.URL == nil {
		return ""
	}
	return strings.TrimSpace(*s.URL)
}

// NewSlot builds an active slot.
func NewSlot(url string, frame int, strength float64, isVideo bool) ReferenceSlot {
	u := url
	return ReferenceSlot{URL: &u, IsVideo: isVideo, FrameNum: frame, Strength: strength}
}
