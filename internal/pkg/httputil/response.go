// Package httputil holds the JSON response helpers used by the local
// marketing API stub.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/hri/contact-sync/internal/pkg/logger"
)

// ErrorResponse mirrors the ActiveCampaign error envelope.
type ErrorResponse struct {
	Message string        `json:"message"`
	Errors  []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail is one entry of ErrorResponse.Errors.
type ErrorDetail struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode failed", "error", err.Error())
	}
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Message: message, Errors: []ErrorDetail{{Title: http.StatusText(status), Detail: message}}})
}

func BadRequest(w http.ResponseWriter, message string) { Error(w, http.StatusBadRequest, message) }

func NotFound(w http.ResponseWriter, message string) { Error(w, http.StatusNotFound, message) }

func Forbidden(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, "You do not have permission to perform this action.")
}

// Decode reads the JSON body into dst. On failure it writes a 400 and
// returns false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
