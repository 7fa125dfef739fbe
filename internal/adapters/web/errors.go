package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"delivery-reconciler/internal/app"
	"delivery-reconciler/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Result    any    `json:"result,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorWith(w, r, message, code, status, nil)
}

func writeErrorWith(w http.ResponseWriter, r *http.Request, message, code string, status int, result any) {
	writeJSONStatus(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
		Result:    result,
	})
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus sets the content type before the status line goes out.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps engine errors onto an HTTP status and a stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case core.IsNotFound(err):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, core.ErrConcurrentConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, core.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"
	case errors.Is(err, app.ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidQuantity),
		errors.Is(err, core.ErrInvalidPlan):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeServiceError writes err with its mapped status; internal errors hide their message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, result any) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("request_id", requestIDFromContext(r.Context())).Error("request failed")
		msg = "internal server error"
	}
	writeErrorWith(w, r, msg, code, status, result)
}
