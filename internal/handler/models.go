package handler

import (
	"net/http"

	"turnstream/internal/capabilities"
	"turnstream/internal/httputil"
)

// ModelsHandler lists the models a client may pass as modelId
type ModelsHandler struct {
	registry     *capabilities.Registry
	defaultModel string
}

// NewModelsHandler creates a new models handler
func NewModelsHandler(registry *capabilities.Registry, defaultModel string) *ModelsHandler {
	return &ModelsHandler{
		registry:     registry,
		defaultModel: defaultModel,
	}
}

// ListModels returns the catalog in YAML order
// GET /api/models
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"default": h.defaultModel,
		"models":  h.registry.ListModels(),
	})
}
