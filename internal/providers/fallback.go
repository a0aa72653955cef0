package providers

import (
	"encoding/json"
	"fmt"
)

// FallbackPolicy decides whether a failed fetch may be answered with substitute data.
// Probes never consult it.
type FallbackPolicy interface {
	Fallback(provider *ProviderConfig, endpoint *EndpointConfig, cause error) (json.RawMessage, bool)
}

// NoFallback surfaces every failure
type NoFallback struct{}

// Fallback never substitutes data
func (NoFallback) Fallback(*ProviderConfig, *EndpointConfig, error) (json.RawMessage, bool) {
	return nil, false
}

// SampleDataFallback answers failed fetches with the endpoint's configured sample payload
type SampleDataFallback struct{}

// Fallback returns the sample payload when the endpoint has a valid one
func (SampleDataFallback) Fallback(_ *ProviderConfig, endpoint *EndpointConfig, _ error) (json.RawMessage, bool) {
	if endpoint == nil || endpoint.Sample == "" {
		return nil, false
	}
	raw := json.RawMessage(endpoint.Sample)
	if !json.Valid(raw) {
		return nil, false
	}
	return raw, true
}

// NewFallbackPolicy returns the policy for a config name: "none" or "sample"
func NewFallbackPolicy(name string) (FallbackPolicy, error) {
	switch name {
	case "", "none":
		return NoFallback{}, nil
	case "sample":
		return SampleDataFallback{}, nil
	default:
		return nil, fmt.Errorf("unknown fallback policy %q", name)
	}
}
