package providers

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/pratik-mahalle/farmlink/internal/domain/credential"
)

// DefaultTokenLifetime is assumed when a token response omits expires_in
const DefaultTokenLifetime = time.Hour

// TokenSet is the result of a code exchange or refresh grant
type TokenSet struct {
	AccessToken string
	// RefreshToken is empty when the provider did not rotate it
	RefreshToken string
	// Scope is nil when the provider did not report granted scopes
	Scope     []string
	ExpiresAt time.Time
}

// TokenEndpoint talks to a provider's OAuth2 token endpoint
type TokenEndpoint interface {
	Exchange(ctx context.Context, provider *ProviderConfig, code string) (*TokenSet, error)
	Refresh(ctx context.Context, provider *ProviderConfig, refreshToken string) (*TokenSet, error)
}

// OAuth2TokenEndpoint implements TokenEndpoint with golang.org/x/oauth2.
// Client credentials are sent in the form body.
type OAuth2TokenEndpoint struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewOAuth2TokenEndpoint creates a token endpoint client. A nil httpClient uses http.DefaultClient.
func NewOAuth2TokenEndpoint(httpClient *http.Client) *OAuth2TokenEndpoint {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuth2TokenEndpoint{httpClient: httpClient, now: time.Now}
}

// OAuth2Config returns the oauth2 configuration for a provider
func (p *ProviderConfig) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL returns the consent page URL the UI redirects the user to
func (p *ProviderConfig) AuthCodeURL(state string) string {
	return p.OAuth2Config().AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for tokens
func (e *OAuth2TokenEndpoint) Exchange(ctx context.Context, provider *ProviderConfig, code string) (*TokenSet, error) {
	tok, err := provider.OAuth2Config().Exchange(e.withClient(ctx), code)
	if err != nil {
		return nil, describeTokenError("exchange", err)
	}
	set := e.tokenSet(tok)
	if set.Scope == nil {
		set.Scope = credential.NormalizeScope(provider.Scopes)
	}
	return set, nil
}

// Refresh performs a refresh_token grant. The returned RefreshToken is the
// rotated token, or the one passed in when the provider did not rotate it.
func (e *OAuth2TokenEndpoint) Refresh(ctx context.Context, provider *ProviderConfig, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token")
	}
	src := provider.OAuth2Config().TokenSource(e.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, describeTokenError("refresh", err)
	}
	return e.tokenSet(tok), nil
}

func (e *OAuth2TokenEndpoint) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

func (e *OAuth2TokenEndpoint) tokenSet(tok *oauth2.Token) *TokenSet {
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = e.now().Add(DefaultTokenLifetime)
	}

	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	if raw, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(raw) != "" {
		set.Scope = credential.ParseScope(raw)
	}
	return set
}

// TokenError describes a failed grant without leaking tokens
type TokenError struct {
	Grant      string
	StatusCode int
	Code       string
	Err        error
}

func (e *TokenError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token %s failed: status %d %s", e.Grant, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("token %s failed: %v", e.Grant, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

func describeTokenError(grant string, err error) error {
	te := &TokenError{Grant: grant, Err: err}
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) {
		te.Code = re.ErrorCode
		if re.Response != nil {
			te.StatusCode = re.Response.StatusCode
		}
	}
	return te
}
