package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/apibridge/catalog"
	"github.com/BaSui01/apibridge/registry"
	"github.com/BaSui01/apibridge/types"
)

// ToolsHandler serves the materialized descriptors of the bound source.
type ToolsHandler struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewToolsHandler creates a descriptor listing handler.
func NewToolsHandler(reg *registry.Registry, logger *zap.Logger) *ToolsHandler {
	return &ToolsHandler{
		registry: reg,
		logger:   logger.With(zap.String("component", "tools_handler")),
	}
}

// HandleListTools answers GET /v1/tools. Optional query parameters resource,
// action, and has_path_params narrow the candidate set before any
// descriptors are returned.
func (h *ToolsHandler) HandleListTools(w http.ResponseWriter, r *http.Request) {
	filter := registry.Filter{
		Resource: r.URL.Query().Get("resource"),
		Action:   catalog.Action(r.URL.Query().Get("action")),
	}

	if raw := r.URL.Query().Get("has_path_params"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
				"has_path_params must be true or false", h.logger)
			return
		}
		filter.HasPathParams = &value
	}

	descriptors, err := h.registry.SelectCandidates(r.Context(), filter)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	WriteSuccess(w, descriptors)
}
