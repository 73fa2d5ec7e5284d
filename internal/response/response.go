// Package response provides small helpers for writing JSON API responses
// with a consistent envelope structure.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	domain "github.com/oggyb/outreach-campaigns/internal/domain/message"
)

// JSONResponse is the common response envelope for all API endpoints.
type JSONResponse struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// ErrorBody holds details about an API error.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RespondJSON writes a successful JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	resp := JSONResponse{
		Success:   true,
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, status, resp)
}

// RespondError writes an error JSON response with the given status code and message.
func RespondError(w http.ResponseWriter, status int, msg string) {
	resp := JSONResponse{
		Success: false,
		Error: &ErrorBody{
			Code:    status,
			Message: msg,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, status, resp)
}

// RespondServiceError maps a service error to its HTTP status.
// Internal details are not echoed for unexpected errors.
func RespondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		RespondError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, domain.ErrStoreUnavailable):
		RespondError(w, http.StatusServiceUnavailable, "message store unavailable, try again later")
	default:
		RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeJSON encodes v as JSON and writes it to the response writer.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
