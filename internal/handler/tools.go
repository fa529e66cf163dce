package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cortexai/finops-insight/internal/middleware"
	"github.com/cortexai/finops-insight/internal/models"
	"github.com/cortexai/finops-insight/internal/tools"
)

// maxBodyBytes leaves room for a maximum-size statement plus JSON framing
const maxBodyBytes = 1 << 20

// ToolsHandler exposes the tool registry over HTTP
type ToolsHandler struct {
	registry *tools.Registry
}

func NewToolsHandler(registry *tools.Registry) *ToolsHandler {
	return &ToolsHandler{registry: registry}
}

type toolList struct {
	Backend models.Backend `json:"backend"`
	Tools   []tools.Tool   `json:"tools"`
}

// List handles GET /tools
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	models.WriteJSON(w, http.StatusOK, toolList{Backend: h.registry.Backend(), Tools: h.registry.List()})
}

// Call handles POST /tools/{name}. The body is the JSON object of tool
// arguments; an empty body calls the tool with its defaults.
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.registry.Get(name); !ok {
		models.WriteError(w, http.StatusNotFound, "unknown tool: "+name)
		return
	}

	input, err := decodeArgs(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp := h.registry.Call(r.Context(), name, input, middleware.Caller(r.Context()))
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp tools.Response) {
	status := http.StatusOK
	if resp.Error != nil {
		status = httpStatus(resp.Error.Kind)
	}
	models.WriteJSON(w, status, resp)
}

func decodeArgs(body io.Reader) (map[string]interface{}, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var input map[string]interface{}
	if err := dec.Decode(&input); err != nil {
		return nil, err
	}
	return input, nil
}
