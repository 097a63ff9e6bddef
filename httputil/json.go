// httputil/json.go

// Package httputil holds the small JSON response helpers used by the
// corsgate middleware when it refuses a request.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// jsonLogger is a package-level logger for encoding errors. Use SetJSONLogger to configure.
var jsonLogger JSONLogger

// JSONLogger is a minimal interface for logging JSON encoding errors.
type JSONLogger interface {
	Error(msg string, args ...any)
}

// SetJSONLogger configures the logger used for JSON encoding errors.
// This should be called once during application startup.
func SetJSONLogger(logger JSONLogger) {
	jsonLogger = logger
}

// WriteJSON writes a JSON response with the given status code. Status codes
// outside 100-599 are clamped to 500. Encoding failures after headers are
// sent can only be logged, not answered.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil && jsonLogger != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Fprintf(os.Stderr, "httputil: logger panic while reporting json error: %v\n", r)
				}
			}()
			jsonLogger.Error(fmt.Sprintf("json encoding failed after headers sent: %v", err))
		}()
	}
}

// JSONError writes a structured JSON error with an error code and message.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}
