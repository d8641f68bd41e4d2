package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chatd/internal/inference"
	"chatd/internal/session"
	"chatd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case inference.IsContextOverflow(err):
		return http.StatusRequestEntityTooLarge
	case inference.IsMalformedOutput(err):
		return http.StatusBadGateway
	case inference.IsTooBusy(err):
		return http.StatusTooManyRequests
	case inference.IsModelLoad(err), inference.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeError maps err, counts backpressure rejections and writes the payload.
func writeError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure(inference.TooBusyReason(err))
	}
	writeJSONError(w, status, err.Error())
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
