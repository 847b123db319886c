// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

const internalErrorMessage = "internal server error"

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes data as JSON with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes data with 200 OK
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteErrorMessage writes {"error": message}
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	writeError(w, status, ErrorResponse{Error: message})
}

// WriteDetailedError writes err together with per-field details
func WriteDetailedError(w http.ResponseWriter, status int, err error, details map[string]string) {
	writeError(w, status, ErrorResponse{Error: err.Error(), Details: details})
}

// WriteValidationError writes a 400
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteInternalError writes a 500 with a fixed message. The cause belongs in
// the logs, not in the response.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, internalErrorMessage)
}

// WriteServiceUnavailable writes a 503
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusServiceUnavailable, message)
}

// writeError drops encode failures; the status line has already been sent
func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	_ = WriteJSON(w, status, body)
}
