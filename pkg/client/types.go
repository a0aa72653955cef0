package client

import (
	"encoding/json"
	"time"
)

// Connection statuses
const (
	StatusDisconnected       = "disconnected"
	StatusAuthRequired       = "auth_required"
	StatusConnectionRequired = "connection_required"
	StatusPartiallyConnected = "partially_connected"
	StatusConnected          = "connected"
)

// Provider is a catalogued farm-data provider
type Provider struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	Endpoints []string `json:"endpoints"`
}

// CapabilityError explains why a capability is unavailable
type CapabilityError struct {
	Kind    string   `json:"kind"`
	URL     string   `json:"url,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Capability is the probe outcome of one provider endpoint
type Capability struct {
	Endpoint   string           `json:"endpoint"`
	Available  bool             `json:"available"`
	ItemCount  int              `json:"itemCount"`
	Error      *CapabilityError `json:"error,omitempty"`
	DurationMs int64            `json:"durationMs"`
}

// ConnectionStatus is a user's connection to one provider
type ConnectionStatus struct {
	Provider         string       `json:"provider"`
	Status           string       `json:"status"`
	Usable           bool         `json:"usable"`
	Message          string       `json:"message"`
	RemediationLinks []string     `json:"remediationLinks"`
	Capabilities     []Capability `json:"capabilities"`
	CheckedAt        time.Time    `json:"checkedAt"`
}

// FetchResult holds the items returned by a capability endpoint
type FetchResult struct {
	Provider  string          `json:"provider"`
	Endpoint  string          `json:"endpoint"`
	Items     json.RawMessage `json:"items"`
	ItemCount int             `json:"itemCount"`
	// Sample is set when the items are sample data served because the provider call failed
	Sample bool `json:"sample"`
}

// Authorization is the consent URL that starts a connection
type Authorization struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// HealthResponse is returned by the liveness probe
type HealthResponse struct {
	Status string `json:"status"`
}
