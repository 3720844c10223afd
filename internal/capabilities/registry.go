package capabilities

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry resolves client-facing model ids. It is immutable after construction.
type Registry struct {
	models []ModelCapabilities
	byID   map[string]*ModelCapabilities
}

// NewRegistry creates a new capability registry from the embedded models file
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile("config/models.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read models.yaml: %w", err)
	}
	return NewRegistryFromYAML(data)
}

// NewRegistryFromYAML builds a registry from raw YAML (used by tests)
func NewRegistryFromYAML(data []byte) (*Registry, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal models: %w", err)
	}
	if len(catalog.Models) == 0 {
		return nil, fmt.Errorf("model catalog is empty")
	}

	r := &Registry{
		models: catalog.Models,
		byID:   make(map[string]*ModelCapabilities, len(catalog.Models)),
	}
	for i := range r.models {
		m := &r.models[i]
		if m.ProviderModel == "" {
			return nil, fmt.Errorf("model %s has no provider_model", m.ID)
		}
		if m.DisplayName == "" {
			m.DisplayName = m.ID
		}
		r.byID[m.ID] = m
	}

	return r, nil
}

// GetModel returns capabilities for a model id
func (r *Registry) GetModel(id string) (*ModelCapabilities, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", id)
	}
	return m, nil
}

// HasModel reports whether the id is in the catalog
func (r *Registry) HasModel(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// ListModels returns all models ordered as defined in YAML
func (r *Registry) ListModels() []ModelCapabilities {
	return r.models
}
