package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"-"`
	Internal   error       `json:"-"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Common error codes
const (
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeDatabase           = "DATABASE_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Connection lifecycle error codes
const (
	ErrCodeAuthExpired              = "AUTH_EXPIRED"
	ErrCodeRequiredCustomerAction   = "REQUIRED_CUSTOMER_ACTION"
	ErrCodeInsufficientScope        = "INSUFFICIENT_SCOPE"
	ErrCodeConnectionNotEstablished = "CONNECTION_NOT_ESTABLISHED"
	ErrCodeTransient                = "TRANSIENT"
	ErrCodeUnknownProvider          = "UNKNOWN_PROVIDER_ERROR"
	ErrCodeTokenExchange            = "TOKEN_EXCHANGE_FAILED"
	ErrCodeUnsupportedProvider      = "UNSUPPORTED_PROVIDER"
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// HasCode reports whether err, or any error it wraps, is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	if appErr.Code == code {
		return true
	}
	return appErr.Internal != nil && HasCode(appErr.Internal, code)
}

// AsAppError returns err as an AppError, wrapping unknown errors as internal errors.
func AsAppError(err error, fallbackMessage string) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal(fallbackMessage, err)
}

// Common error constructors

// Internal creates an internal server error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message, http.StatusForbidden)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ValidationError creates a validation error
func ValidationError(message string, details interface{}) *AppError {
	return New(ErrCodeValidation, message, http.StatusBadRequest).WithDetails(details)
}

// DatabaseError creates a database error
func DatabaseError(message string, err error) *AppError {
	return Wrap(err, ErrCodeDatabase, message, http.StatusInternalServerError)
}

// RateLimited creates a rate limited error
func RateLimited(message string) *AppError {
	return New(ErrCodeRateLimited, message, http.StatusTooManyRequests)
}

// ServiceUnavailable creates a service unavailable error
func ServiceUnavailable(message string) *AppError {
	return New(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// UnsupportedProvider is returned for provider ids missing from the catalog
func UnsupportedProvider(provider string) *AppError {
	return New(ErrCodeUnsupportedProvider,
		fmt.Sprintf("Provider %q is not configured", provider),
		http.StatusNotFound)
}

// Connection lifecycle errors

// AuthExpired signals that no usable token exists for the provider: the credential
// is missing or could not be refreshed. The user must connect again.
func AuthExpired(provider string, err error) *AppError {
	return Wrap(err, ErrCodeAuthExpired,
		fmt.Sprintf("Authorization for %s has expired, please reconnect", provider),
		http.StatusUnauthorized)
}

// RequiredCustomerAction carries the consent URL the user has to visit.
func RequiredCustomerAction(provider, url string) *AppError {
	return New(ErrCodeRequiredCustomerAction,
		fmt.Sprintf("%s requires you to complete an action before data can be shared", provider),
		http.StatusForbidden).WithDetails(map[string]string{"url": url})
}

// InsufficientScope asks for a reconnect with broader permissions.
func InsufficientScope(provider string, missing []string) *AppError {
	return New(ErrCodeInsufficientScope,
		fmt.Sprintf("Reconnect %s with broader permissions", provider),
		http.StatusForbidden).WithDetails(map[string]interface{}{"missing": missing})
}

// ConnectionNotEstablished asks the user to link their organization.
func ConnectionNotEstablished(provider string) *AppError {
	return New(ErrCodeConnectionNotEstablished,
		fmt.Sprintf("Link your organization in %s to share data", provider),
		http.StatusForbidden)
}

// Transient marks a failure that is safe to retry on a later call.
func Transient(provider string, err error) *AppError {
	return Wrap(err, ErrCodeTransient,
		fmt.Sprintf("%s is temporarily unavailable, try again shortly", provider),
		http.StatusServiceUnavailable)
}

// UnknownProvider wraps an unclassified provider failure, preserving the raw message.
func UnknownProvider(provider, message string) *AppError {
	return New(ErrCodeUnknownProvider,
		fmt.Sprintf("Request to %s failed", provider),
		http.StatusBadGateway).WithDetails(map[string]string{"message": message})
}

// TokenExchange wraps a failed authorization code exchange.
func TokenExchange(provider string, err error) *AppError {
	return Wrap(err, ErrCodeTokenExchange,
		fmt.Sprintf("Failed to exchange authorization code with %s", provider),
		http.StatusBadGateway)
}
