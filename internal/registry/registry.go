// Package registry loads the clip-type table and the model registry from a
// YAML file, falling back to the built-in catalog.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"clipstudio/internal/cliptype"
	"clipstudio/internal/domain"
	"clipstudio/internal/modelresolver"
)

// Provider ids used by the built-in catalog.
const (
	ProviderGemini    = "gemini"
	ProviderHTTP      = "http"
	ProviderSynthetic = "synthetic"
)

// File is the on-disk registry layout.
type File struct {
	ClipTypes []domain.ClipTypeDescriptor `yaml:"clip_types"`
	Models    []domain.ModelDescriptor    `yaml:"models"`
}

// Catalog is the loaded, validated registry.
type Catalog struct {
	Router   *cliptype.Router
	Resolver *modelresolver.Resolver
	Models   []domain.ModelDescriptor
}

// ProviderIDs lists the distinct provider ids referenced by the models.
func (c *Catalog) ProviderIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range c.Models {
		if _, ok := seen[m.ProviderID]; ok {
			continue
		}
		seen[m.ProviderID] = struct{}{}
		ids = append(ids, m.ProviderID)
	}
	return ids
}

// DefaultModels is the built-in model registry.
func DefaultModels() []domain.ModelDescriptor {
	return []domain.ModelDescriptor{
		{
			ID:         "veo-3.0-generate-preview",
			Modality:   domain.ModalityVideo,
			Tasks:      []string{domain.TaskTextToVideo, domain.TaskImageToVideo, domain.TaskKeyframeInterpolation},
			FamilyTag:  "veo",
			IsDefault:  true,
			ProviderID: ProviderGemini,
			Priority:   10,
		},
		{
			ID:         "ltx-video",
			Modality:   domain.ModalityVideo,
			Tasks:      []string{domain.TaskTextToVideo, domain.TaskImageToVideo, domain.TaskKeyframeInterpolation},
			FamilyTag:  "ltx",
			ProviderID: ProviderHTTP,
			Priority:   5,
		},
		{
			ID:         "gen4-reference",
			Modality:   domain.ModalityVideo,
			Tasks:      []string{domain.TaskImageToVideo, domain.TaskVideoReference},
			FamilyTag:  "gen4",
			ProviderID: ProviderHTTP,
			Priority:   3,
		},
		{
			ID:         "gemini-2.5-flash-image",
			Modality:   domain.ModalityImage,
			Tasks:      []string{"text-to-image", "image-edit"},
			FamilyTag:  "gemini",
			IsDefault:  true,
			ProviderID: ProviderGemini,
			Priority:   10,
		},
	}
}

// Default builds the catalog from the built-in tables.
func Default() *Catalog {
	c, err := build(File{ClipTypes: cliptype.DefaultTable(), Models: DefaultModels()})
	if err != nil {
		panic(fmt.Sprintf("registry: built-in catalog invalid: %v", err))
	}
	return c
}

// Load reads path. An empty path returns the built-in catalog. Sections
// missing from the file fall back to their built-in table.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML registry document.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: failed to parse YAML: %w", err)
	}
	if len(f.ClipTypes) == 0 {
		f.ClipTypes = cliptype.DefaultTable()
	}
	if len(f.Models) == 0 {
		f.Models = DefaultModels()
	}
	return build(f)
}

func build(f File) (*Catalog, error) {
	router, err := cliptype.NewRouter(f.ClipTypes)
	if err != nil {
		return nil, err
	}
	if err := validateModels(f.Models); err != nil {
		return nil, err
	}
	return &Catalog{
		Router:   router,
		Resolver: modelresolver.New(f.Models),
		Models:   f.Models,
	}, nil
}

func validateModels(models []domain.ModelDescriptor) error {
	var problems []string
	seen := make(map[string]struct{}, len(models))
	for i, m := range models {
		id := strings.TrimSpace(m.ID)
		switch {
		case id == "":
			problems = append(problems, fmt.Sprintf("model %d: id is required", i))
			continue
		case m.Modality != domain.ModalityImage && m.Modality != domain.ModalityVideo && m.Modality != domain.ModalityChat:
			problems = append(problems, fmt.Sprintf("model %s: unknown modality %q", id, m.Modality))
		case len(m.Tasks) == 0:
			problems = append(problems, fmt.Sprintf("model %s: no tasks", id))
		case strings.TrimSpace(m.ProviderID) == "":
			problems = append(problems, fmt.Sprintf("model %s: provider_id is required", id))
		}
		if _, dup := seen[id]; dup {
			problems = append(problems, fmt.Sprintf("model %s: duplicate id", id))
		}
		seen[id] = struct{}{}
	}
	if len(problems) > 0 {
		return errors.New("registry: " + strings.Join(problems, "; "))
	}
	return nil
}
