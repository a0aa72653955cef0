package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the farmlink API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	userAgent  string
}

// Config holds the client configuration
type Config struct {
	BaseURL    string        // API base URL (e.g., "https://farmlink.example.com")
	Token      string        // Bearer token identifying the user
	Timeout    time.Duration // HTTP client timeout (default: 60s, status checks probe providers)
	HTTPClient *http.Client  // Optional custom HTTP client
	UserAgent  string
}

// NewClient creates a new farmlink API client
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
		}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "farmlink-go"
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
	}
}

// SetToken sets the bearer token for authenticated requests
func (c *Client) SetToken(token string) {
	c.token = token
}

// envelope is the JSON wrapper every API response uses
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *APIError       `json:"error"`
}

// doRequest performs an HTTP request and decodes the data member of the
// response envelope into result.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &env); err != nil && resp.StatusCode < 400 {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Message: strings.TrimSpace(string(respBody))}
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if result != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}

	return nil
}

// Connections returns the connection lifecycle service
func (c *Client) Connections() *ConnectionService {
	return &ConnectionService{client: c}
}
