package client

import (
	"context"
	"net/http"
	"net/url"
)

// ConnectionService handles connection lifecycle API calls
type ConnectionService struct {
	client *Client
}

// Providers lists the providers the server is configured for
func (s *ConnectionService) Providers(ctx context.Context) ([]Provider, error) {
	var out []Provider
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/providers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List checks every provider for the current user
func (s *ConnectionService) List(ctx context.Context) ([]ConnectionStatus, error) {
	var out []ConnectionStatus
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/connections", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status checks one provider connection
func (s *ConnectionService) Status(ctx context.Context, provider string) (*ConnectionStatus, error) {
	var out ConnectionStatus
	if err := s.client.doRequest(ctx, http.MethodGet, connectionPath(provider, "status"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthorizeURL returns the provider consent URL. An empty state lets the server pick one.
func (s *ConnectionService) AuthorizeURL(ctx context.Context, provider, state string) (*Authorization, error) {
	path := connectionPath(provider, "authorize")
	if state != "" {
		path += "?" + url.Values{"state": {state}}.Encode()
	}

	var out Authorization
	if err := s.client.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Connect exchanges an authorization code and returns the first status check
func (s *ConnectionService) Connect(ctx context.Context, provider, code string) (*ConnectionStatus, error) {
	var out ConnectionStatus
	body := map[string]string{"code": code}
	if err := s.client.doRequest(ctx, http.MethodPost, connectionPath(provider, "connect"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Disconnect removes the stored credential for provider
func (s *ConnectionService) Disconnect(ctx context.Context, provider string) error {
	return s.client.doRequest(ctx, http.MethodPost, connectionPath(provider, "disconnect"), nil, nil)
}

// Fetch calls one capability endpoint
func (s *ConnectionService) Fetch(ctx context.Context, provider, endpoint string) (*FetchResult, error) {
	var out FetchResult
	path := connectionPath(provider, "data") + "/" + url.PathEscape(endpoint)
	if err := s.client.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func connectionPath(provider, action string) string {
	return "/api/v1/connections/" + url.PathEscape(provider) + "/" + action
}
