package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/apibridge/executor"
	"github.com/BaSui01/apibridge/types"
)

// InvokeHandler dispatches catalogued operations through the executor.
type InvokeHandler struct {
	executor *executor.Executor
	logger   *zap.Logger
}

// NewInvokeHandler creates an invocation handler.
func NewInvokeHandler(exec *executor.Executor, logger *zap.Logger) *InvokeHandler {
	return &InvokeHandler{
		executor: exec,
		logger:   logger.With(zap.String("component", "invoke_handler")),
	}
}

// InvokeResponse is the body of a completed invocation. Body carries the
// upstream response verbatim when it is valid JSON, otherwise as a string.
type InvokeResponse struct {
	InvocationID string          `json:"invocation_id"`
	Success      bool            `json:"success"`
	StatusCode   int             `json:"status_code"`
	Body         json.RawMessage `json:"body,omitempty"`
}

// HandleInvoke answers POST /v1/invoke.
func (h *InvokeHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	var call executor.Call
	if err := DecodeJSONBody(w, r, &call, h.logger); err != nil {
		return
	}
	if call.OperationID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"operation_id is required", h.logger)
		return
	}

	result, err := h.executor.Invoke(r.Context(), call)
	if err != nil {
		var apiErr *types.Error
		if !errors.As(err, &apiErr) {
			apiErr = types.NewError(types.ErrInternalError, err.Error())
		}
		// Upstream failures still carry the raw response body.
		if result != nil {
			WriteErrorWithData(w, apiErr, toInvokeResponse(result), h.logger)
			return
		}
		WriteError(w, apiErr, h.logger)
		return
	}

	WriteSuccess(w, toInvokeResponse(result))
}

func toInvokeResponse(result *executor.Result) InvokeResponse {
	resp := InvokeResponse{
		InvocationID: result.InvocationID.String(),
		Success:      result.Success,
		StatusCode:   result.StatusCode,
	}
	if len(result.Body) == 0 {
		return resp
	}
	if json.Valid(result.Body) {
		resp.Body = json.RawMessage(result.Body)
	} else {
		quoted, _ := json.Marshal(string(result.Body))
		resp.Body = quoted
	}
	return resp
}
