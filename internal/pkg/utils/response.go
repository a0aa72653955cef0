package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
)

// TransientRetryAfter is advertised to clients when a provider is temporarily unavailable
const TransientRetryAfter = 30 * time.Second

// SuccessResponse is the envelope of every successful API response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse is the envelope of every failed API response
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine readable code; Details holds remediation
// data such as the consent URL or the missing scopes.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteSuccess writes data inside a success envelope
func WriteSuccess(w http.ResponseWriter, status int, data interface{}) error {
	return writeJSON(w, status, SuccessResponse{Success: true, Data: data})
}

// WriteSuccessWithMessage writes a success envelope with a human readable message
func WriteSuccessWithMessage(w http.ResponseWriter, status int, message string, data interface{}) error {
	return writeJSON(w, status, SuccessResponse{Success: true, Message: message, Data: data})
}

// WriteError writes err inside an error envelope. Transient provider
// failures also get a Retry-After header.
func WriteError(w http.ResponseWriter, err *errors.AppError) error {
	if err.Code == errors.ErrCodeTransient && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", strconv.Itoa(int(TransientRetryAfter.Seconds())))
	}
	return writeJSON(w, err.StatusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    err.Code,
			Message: err.Message,
			Details: err.Details,
		},
	})
}
