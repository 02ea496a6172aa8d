package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"sdserver/internal/manager"
	"sdserver/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}

// statusFor maps service errors onto response codes. Anything unrecognized
// is a 500 carrying the error text.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case manager.IsBadRequest(err):
		return http.StatusBadRequest
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case errors.Is(err, manager.ErrNotLoaded):
		return http.StatusNotFound
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}
