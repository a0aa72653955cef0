package connection

import (
	"encoding/json"
	"time"

	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
)

// Status is the derived connection state of one (user, provider) pair
type Status string

// Connection statuses
const (
	StatusDisconnected       Status = "disconnected"
	StatusAuthRequired       Status = "auth_required"
	StatusConnectionRequired Status = "connection_required"
	StatusPartiallyConnected Status = "partially_connected"
	StatusConnected          Status = "connected"
)

// IsUsable reports whether at least one capability can be reached.
func (s Status) IsUsable() bool {
	return s == StatusConnected || s == StatusPartiallyConnected
}

// CategoryKind tags an ErrorCategory
type CategoryKind string

// Error category kinds
const (
	CategoryUnauthorized             CategoryKind = "unauthorized"
	CategoryRequiredCustomerAction   CategoryKind = "required_customer_action"
	CategoryInsufficientScope        CategoryKind = "insufficient_scope"
	CategoryConnectionNotEstablished CategoryKind = "connection_not_established"
	CategoryTransient                CategoryKind = "transient"
	CategoryUnknown                  CategoryKind = "unknown"
)

// ErrorCategory is the normalized classification of a provider failure.
// Only the payload field matching Kind is set.
type ErrorCategory struct {
	Kind    CategoryKind `json:"kind"`
	URL     string       `json:"url,omitempty"`
	Missing []string     `json:"missing,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Unauthorized returns the unauthorized category
func Unauthorized() ErrorCategory {
	return ErrorCategory{Kind: CategoryUnauthorized}
}

// RequiredCustomerAction returns a category carrying the consent URL
func RequiredCustomerAction(url string) ErrorCategory {
	return ErrorCategory{Kind: CategoryRequiredCustomerAction, URL: url}
}

// InsufficientScope returns a category carrying the missing scopes
func InsufficientScope(missing []string) ErrorCategory {
	return ErrorCategory{Kind: CategoryInsufficientScope, Missing: missing}
}

// ConnectionNotEstablished returns the organization link category
func ConnectionNotEstablished() ErrorCategory {
	return ErrorCategory{Kind: CategoryConnectionNotEstablished}
}

// Transient returns the retryable category
func Transient() ErrorCategory {
	return ErrorCategory{Kind: CategoryTransient}
}

// Unknown returns a category preserving the provider message
func Unknown(message string) ErrorCategory {
	return ErrorCategory{Kind: CategoryUnknown, Message: message}
}

// AsError converts the category into the AppError handed to the tool layer.
func (c ErrorCategory) AsError(provider string) *errors.AppError {
	switch c.Kind {
	case CategoryUnauthorized:
		return errors.AuthExpired(provider, nil)
	case CategoryRequiredCustomerAction:
		return errors.RequiredCustomerAction(provider, c.URL)
	case CategoryInsufficientScope:
		return errors.InsufficientScope(provider, c.Missing)
	case CategoryConnectionNotEstablished:
		return errors.ConnectionNotEstablished(provider)
	case CategoryTransient:
		return errors.Transient(provider, nil)
	default:
		return errors.UnknownProvider(provider, c.Message)
	}
}

// ProbeResult is the outcome of one capability probe
type ProbeResult struct {
	Endpoint  string         `json:"endpoint"`
	Success   bool           `json:"success"`
	ItemCount int            `json:"item_count"`
	Category  *ErrorCategory `json:"category,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
}

// StatusReport is what CheckStatus hands to the UI and the tool layer
type StatusReport struct {
	Provider         string        `json:"provider"`
	Status           Status        `json:"status"`
	ProbeResults     []ProbeResult `json:"probe_results"`
	RemediationLinks []string      `json:"remediation_links"`
	Message          string        `json:"message"`
	CheckedAt        time.Time     `json:"checked_at"`
}

// FetchResult is the payload of one capability call made for the tool layer
type FetchResult struct {
	Provider     string          `json:"provider"`
	Endpoint     string          `json:"endpoint"`
	Items        json.RawMessage `json:"items"`
	ItemCount    int             `json:"item_count"`
	FromFallback bool            `json:"from_fallback"`
}
