package client

import (
	"errors"
	"fmt"
)

// Error codes returned by the connection endpoints
const (
	CodeAuthExpired              = "AUTH_EXPIRED"
	CodeRequiredCustomerAction   = "REQUIRED_CUSTOMER_ACTION"
	CodeInsufficientScope        = "INSUFFICIENT_SCOPE"
	CodeConnectionNotEstablished = "CONNECTION_NOT_ESTABLISHED"
	CodeTransient                = "TRANSIENT"
	CodeUnknownProvider          = "UNKNOWN_PROVIDER_ERROR"
	CodeTokenExchange            = "TOKEN_EXCHANGE_FAILED"
	CodeUnsupportedProvider      = "UNSUPPORTED_PROVIDER"
)

// APIError represents an error returned by the API
type APIError struct {
	StatusCode int                    `json:"-"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error [%s]: %s (status: %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("API error: %s (status: %d)", e.Message, e.StatusCode)
}

// IsNotFound returns true if the error is a 404 not found error
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized returns true if the error is a 401 unauthorized error
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsServerError returns true if the error is a 5xx server error
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// NeedsReconnect reports whether the user must go through authorization again
func (e *APIError) NeedsReconnect() bool {
	return e.Code == CodeAuthExpired || e.Code == CodeInsufficientScope
}

// Retryable reports whether the same call may succeed later without user action
func (e *APIError) Retryable() bool {
	return e.Code == CodeTransient
}

// RemediationURL returns the consent URL carried by a REQUIRED_CUSTOMER_ACTION error
func (e *APIError) RemediationURL() string {
	if e.Code != CodeRequiredCustomerAction {
		return ""
	}
	url, _ := e.Details["url"].(string)
	return url
}

// ErrorCode returns the API error code of err, or "" when err is not an APIError
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
