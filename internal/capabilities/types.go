package capabilities

import "gopkg.in/yaml.v3"

// ModelCapabilities represents all metadata for a selectable chat model
type ModelCapabilities struct {
	// Model identifier (set during YAML unmarshaling)
	ID string `yaml:"-" json:"id"`

	// Display information
	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description" json:"description"`

	// ProviderModel is what the provider registry routes on
	ProviderModel string `yaml:"provider_model" json:"-"`

	// Limits
	MaxOutput int `yaml:"max_output" json:"max_output"`
}

// Catalog is the ordered list of models from the embedded YAML file
type Catalog struct {
	Models []ModelCapabilities `yaml:"-" json:"models"` // Ordered slice, populated by custom unmarshaler
}

// UnmarshalYAML implements custom YAML unmarshaling to preserve model order from YAML file
func (c *Catalog) UnmarshalYAML(node *yaml.Node) error {
	type modelsOnly struct {
		Models map[string]ModelCapabilities `yaml:"models"`
	}
	var m modelsOnly
	if err := node.Decode(&m); err != nil {
		return err
	}

	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value != "models" {
			continue
		}
		modelsNode := node.Content[i+1]
		// modelsNode.Content alternates: key, value, key, value...
		for j := 0; j < len(modelsNode.Content); j += 2 {
			modelID := modelsNode.Content[j].Value
			if model, ok := m.Models[modelID]; ok {
				model.ID = modelID
				c.Models = append(c.Models, model)
			}
		}
		break
	}

	return nil
}
