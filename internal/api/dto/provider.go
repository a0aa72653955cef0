package dto

import "github.com/pratik-mahalle/farmlink/internal/providers"

// ProviderDTO describes a catalogued provider in API responses
type ProviderDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	Endpoints []string `json:"endpoints"`
}

// NewProviderDTO converts a catalog entry for the API. Secrets are never exposed.
func NewProviderDTO(p *providers.ProviderConfig) ProviderDTO {
	endpoints := make([]string, len(p.Endpoints))
	for i, ep := range p.Endpoints {
		endpoints[i] = ep.Name
	}
	scopes := p.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return ProviderDTO{ID: p.ID, Name: p.Name, Scopes: scopes, Endpoints: endpoints}
}
