package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cortexai/finops-insight/internal/middleware"
	"github.com/cortexai/finops-insight/internal/models"
	"github.com/cortexai/finops-insight/internal/tools"
)

type ResourcesHandler struct {
	registry *tools.Registry
}

func NewResourcesHandler(registry *tools.Registry) *ResourcesHandler {
	return &ResourcesHandler{registry: registry}
}

// List handles GET /resources
func (h *ResourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	models.WriteJSON(w, http.StatusOK, map[string]any{"resources": h.registry.Resources()})
}

// Read handles GET /resources/{name}
func (h *ResourcesHandler) Read(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	resp, ok := h.registry.ReadResource(r.Context(), name, middleware.Caller(r.Context()))
	if !ok {
		models.WriteError(w, http.StatusNotFound, "unknown resource: "+name)
		return
	}
	writeResponse(w, resp)
}
