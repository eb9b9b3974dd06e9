package domain

// Modality enumerates the output kind of a registered model.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
	ModalityChat  Modality = "chat"
)

// ModelDescriptor describes one registered generation model and how it
// ranks during capability resolution.
type ModelDescriptor struct {
	ID         string   `json:"id" yaml:"id"`
	Modality   Modality `json:"modality" yaml:"modality"`
	Tasks      []string `json:"tasks" yaml:"tasks"`
	FamilyTag  string   `json:"family_tag,omitempty" yaml:"family_tag"`
	IsDefault  bool     `json:"is_default" yaml:"is_default"`
	ProviderID string   `json:"provider_id" yaml:"provider_id"`
	Priority   float64  `json:"priority" yaml:"priority"`
}

// Supports reports whether the model lists task.
func (m ModelDescriptor) Supports(task string) bool {
	for _, t := range m.Tasks {
		if t == task {
			return true
		}
	}
	return false
}
