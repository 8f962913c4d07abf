package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"phone-resale/internal/app"
	"phone-resale/internal/core"
	"phone-resale/internal/logging"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindInvalidState, core.KindInsufficientInventory:
		return http.StatusConflict
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports an error returned by the application service.
// Configuration and unclassified errors are logged and hidden from the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logging.LogError(h.logger, "web", op, requestIDFromContext(r.Context()), nil, err)
		code, msg := "INTERNAL_ERROR", "internal server error"
		if kind == core.KindConfiguration {
			code, msg = string(kind), "server is misconfigured"
		}
		writeError(w, r, msg, code, status)
		return
	}
	msg := err.Error()
	var de *core.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	writeErrorResponse(w, status, errorResponse{
		Error:     msg,
		Code:      string(kind),
		RequestID: requestIDFromContext(r.Context()),
		Fields:    app.FieldErrors(err),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
