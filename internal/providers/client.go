package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// maxResponseBytes caps how much of a provider response is read
const maxResponseBytes = 8 << 20

// TokenProvider hands out a valid access token for a connection
type TokenProvider interface {
	EnsureValid(ctx context.Context, userID, providerID string) (string, error)
}

// HTTPError is a non-2xx response from a capability endpoint
type HTTPError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}

// ClientFactory builds authenticated clients, one per (user, provider) connection
type ClientFactory struct {
	catalog *Catalog
	tokens  TokenProvider
	base    *http.Client
}

// NewClientFactory creates a client factory. A nil base client uses http.DefaultClient settings.
func NewClientFactory(catalog *Catalog, tokens TokenProvider, base *http.Client) *ClientFactory {
	if base == nil {
		base = &http.Client{}
	}
	return &ClientFactory{catalog: catalog, tokens: tokens, base: base}
}

// ForConnection returns a client that authenticates as userID against providerID.
// Tokens come from the TokenProvider and are cached for the client's lifetime.
func (f *ClientFactory) ForConnection(ctx context.Context, userID, providerID string) (*Client, error) {
	provider, ok := f.catalog.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("provider %s is not configured", providerID)
	}

	src := &connectionTokenSource{
		ctx:        ctx,
		tokens:     f.tokens,
		userID:     userID,
		providerID: providerID,
	}

	base := f.base.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		provider: provider,
		source:   src,
		http: &http.Client{
			Timeout:   f.base.Timeout,
			Transport: &oauth2.Transport{Source: src, Base: base},
		},
	}, nil
}

// connectionTokenSource adapts EnsureValid to oauth2.TokenSource. The first
// successful token is reused so parallel calls in one check share a lookup.
type connectionTokenSource struct {
	ctx        context.Context
	tokens     TokenProvider
	userID     string
	providerID string

	mu    sync.Mutex
	token *oauth2.Token
}

func (s *connectionTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil {
		return s.token, nil
	}

	access, err := s.tokens.EnsureValid(s.ctx, s.userID, s.providerID)
	if err != nil {
		return nil, err
	}
	s.token = &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	return s.token, nil
}

// Client calls one provider's capability endpoints for one user
type Client struct {
	provider *ProviderConfig
	source   *connectionTokenSource
	http     *http.Client
}

// Provider returns the provider this client talks to
func (c *Client) Provider() *ProviderConfig {
	return c.provider
}

// Authorize makes sure a valid access token is available before any call is made.
func (c *Client) Authorize() error {
	_, err := c.source.Token()
	return err
}

// Call invokes an endpoint and returns its item collection and the item count.
// Non-2xx responses are returned as *HTTPError.
func (c *Client) Call(ctx context.Context, endpoint *EndpointConfig) (json.RawMessage, int, error) {
	var body io.Reader
	if endpoint.Body != "" {
		body = strings.NewReader(endpoint.Body)
	}

	req, err := http.NewRequestWithContext(ctx, endpoint.Method, c.provider.BaseURL+endpoint.Path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request for %s: %w", endpoint.Name, err)
	}

	accept := c.provider.Accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read %s response: %w", endpoint.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, &HTTPError{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	}

	return ExtractItems(data, endpoint.ItemsField)
}

// ExtractItems pulls the item array out of a response body. With an empty
// itemsField the body itself must be an array. An empty body counts as no items.
func ExtractItems(data []byte, itemsField string) (json.RawMessage, int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return json.RawMessage("[]"), 0, nil
	}

	raw := json.RawMessage(trimmed)
	if itemsField != "" {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, 0, fmt.Errorf("decode response envelope: %w", err)
		}
		field, ok := envelope[itemsField]
		if !ok || string(bytes.TrimSpace(field)) == "null" {
			return json.RawMessage("[]"), 0, nil
		}
		raw = field
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, fmt.Errorf("response is not a collection: %w", err)
	}
	return raw, len(items), nil
}
