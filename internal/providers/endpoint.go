package providers

import "context"

// ProbeEndpoint is one capability checked during a status probe
type ProbeEndpoint struct {
	Name          string
	RequiredScope string
	// Invoke calls the capability and returns how many items it holds
	Invoke func(ctx context.Context, client *Client) (int, error)
}

// ProbeEndpoints builds the probe list for a provider from its catalog entry
func ProbeEndpoints(p *ProviderConfig) []ProbeEndpoint {
	endpoints := make([]ProbeEndpoint, 0, len(p.Endpoints))
	for i := range p.Endpoints {
		ep := p.Endpoints[i]
		endpoints = append(endpoints, ProbeEndpoint{
			Name:          ep.Name,
			RequiredScope: ep.RequiredScope,
			Invoke: func(ctx context.Context, client *Client) (int, error) {
				_, n, err := client.Call(ctx, &ep)
				return n, err
			},
		})
	}
	return endpoints
}
