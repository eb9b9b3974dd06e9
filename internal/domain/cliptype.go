package domain

// ClipType tags the narrative role of a generated clip.
type ClipType string

const (
	ClipTypeEstablishing ClipType = "establishing"
	ClipTypeDialogue     ClipType = "dialogue"
	ClipTypeAction       ClipType = "action"
	ClipTypeReaction     ClipType = "reaction"
	ClipTypeTransition   ClipType = "transition"
	ClipTypeClosing      ClipType = "closing"
)

// Generation tasks understood by the model registry.
const (
	TaskTextToVideo           = "text-to-video"
	TaskImageToVideo          = "image-to-video"
	TaskKeyframeInterpolation = "keyframe-interpolation"
	TaskVideoReference        = "video-reference"
)

// ClipTypeDescriptor is the routing entry for a single clip type.
type ClipTypeDescriptor struct {
	ClipType               ClipType `json:"clip_type" yaml:"clip_type"`
	Task                   string   `json:"task" yaml:"task"`
	DefaultDurationSeconds float64  `json:"default_duration_seconds" yaml:"default_duration_seconds"`
	RequiresStartReference bool     `json:"requires_start_reference" yaml:"requires_start_reference"`
	RequiresEndReference   bool     `json:"requires_end_reference" yaml:"requires_end_reference"`
}

// ReferenceRequirement lists the timeline anchors that must be filled before
// a clip may be submitted.
type ReferenceRequirement struct {
	Start bool `json:"start"`
	End   bool `json:"end"`
}

// Requirement extracts the anchor requirement from the descriptor.
func (d ClipTypeDescriptor) Requirement() ReferenceRequirement {
	return ReferenceRequirement{Start: d.RequiresStartReference, End: d.RequiresEndReference}
}
