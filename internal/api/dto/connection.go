package dto

import (
	"encoding/json"
	"time"

	"github.com/pratik-mahalle/farmlink/internal/domain/connection"
)

// ConnectRequest completes an OAuth authorization for a provider
type ConnectRequest struct {
	Code string `json:"code" validate:"required,max=4096"`
}

// CapabilityError describes why a capability is unavailable
type CapabilityError struct {
	Kind    string   `json:"kind"`
	URL     string   `json:"url,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Message string   `json:"message,omitempty"`
}

// CapabilityDTO is the outcome of probing one provider endpoint
type CapabilityDTO struct {
	Endpoint   string           `json:"endpoint"`
	Available  bool             `json:"available"`
	ItemCount  int              `json:"itemCount"`
	Error      *CapabilityError `json:"error,omitempty"`
	DurationMs int64            `json:"durationMs"`
}

// ConnectionStatusDTO represents a provider connection in API responses
type ConnectionStatusDTO struct {
	Provider         string          `json:"provider"`
	Status           string          `json:"status"`
	Usable           bool            `json:"usable"`
	Message          string          `json:"message"`
	RemediationLinks []string        `json:"remediationLinks"`
	Capabilities     []CapabilityDTO `json:"capabilities"`
	CheckedAt        time.Time       `json:"checkedAt"`
}

// FetchResponse carries the items returned by a capability endpoint
type FetchResponse struct {
	Provider  string          `json:"provider"`
	Endpoint  string          `json:"endpoint"`
	Items     json.RawMessage `json:"items" swaggertype:"array,object"`
	ItemCount int             `json:"itemCount"`
	Sample    bool            `json:"sample"`
}

// AuthorizeResponse points the user at the provider consent screen
type AuthorizeResponse struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// NewConnectionStatusDTO converts a status report for the API
func NewConnectionStatusDTO(r *connection.StatusReport) ConnectionStatusDTO {
	caps := make([]CapabilityDTO, len(r.ProbeResults))
	for i, p := range r.ProbeResults {
		caps[i] = CapabilityDTO{
			Endpoint:   p.Endpoint,
			Available:  p.Success,
			ItemCount:  p.ItemCount,
			DurationMs: p.Duration.Milliseconds(),
		}
		if p.Category != nil {
			caps[i].Error = &CapabilityError{
				Kind:    string(p.Category.Kind),
				URL:     p.Category.URL,
				Missing: p.Category.Missing,
				Message: p.Category.Message,
			}
		}
	}

	links := r.RemediationLinks
	if links == nil {
		links = []string{}
	}

	return ConnectionStatusDTO{
		Provider:         r.Provider,
		Status:           string(r.Status),
		Usable:           r.Status.IsUsable(),
		Message:          r.Message,
		RemediationLinks: links,
		Capabilities:     caps,
		CheckedAt:        r.CheckedAt,
	}
}

// NewFetchResponse converts a fetch result for the API
func NewFetchResponse(r *connection.FetchResult) FetchResponse {
	return FetchResponse{
		Provider:  r.Provider,
		Endpoint:  r.Endpoint,
		Items:     r.Items,
		ItemCount: r.ItemCount,
		Sample:    r.FromFallback,
	}
}
