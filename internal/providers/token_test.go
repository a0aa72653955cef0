package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *ProviderConfig) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	return srv, &ProviderConfig{
		ID:           "deere",
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://farmlink.example.com/callback",
		Scopes:       []string{"org1", "ag1"},
	}
}

func writeToken(w http.ResponseWriter, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestOAuth2TokenEndpoint_Exchange(t *testing.T) {
	_, provider := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "code-123", r.PostForm.Get("code"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "https://farmlink.example.com/callback", r.PostForm.Get("redirect_uri"))

		writeToken(w, map[string]interface{}{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "org1 ag1 ag2",
		})
	})

	before := time.Now()
	set, err := NewOAuth2TokenEndpoint(nil).Exchange(context.Background(), provider, "code-123")
	require.NoError(t, err)

	assert.Equal(t, "access-1", set.AccessToken)
	assert.Equal(t, "refresh-1", set.RefreshToken)
	assert.Equal(t, []string{"ag1", "ag2", "org1"}, set.Scope)
	assert.WithinDuration(t, before.Add(time.Hour), set.ExpiresAt, 5*time.Second)
}

func TestOAuth2TokenEndpoint_ExchangeDefaultsScope(t *testing.T) {
	_, provider := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, map[string]interface{}{
			"access_token": "access-1",
			"token_type":   "Bearer",
		})
	})

	before := time.Now()
	set, err := NewOAuth2TokenEndpoint(nil).Exchange(context.Background(), provider, "code")
	require.NoError(t, err)

	assert.Equal(t, []string{"ag1", "org1"}, set.Scope)
	assert.Empty(t, set.RefreshToken)
	assert.WithinDuration(t, before.Add(DefaultTokenLifetime), set.ExpiresAt, 5*time.Second)
}

func TestOAuth2TokenEndpoint_Refresh(t *testing.T) {
	var calls int32
	_, provider := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-old", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))

		writeToken(w, map[string]interface{}{
			"access_token": "access-new",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	set, err := NewOAuth2TokenEndpoint(nil).Refresh(context.Background(), provider, "refresh-old")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "access-new", set.AccessToken)
	assert.Equal(t, "refresh-old", set.RefreshToken, "unrotated refresh token is kept")
	assert.Nil(t, set.Scope)
}

func TestOAuth2TokenEndpoint_RefreshRotates(t *testing.T) {
	_, provider := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, map[string]interface{}{
			"access_token":  "access-new",
			"refresh_token": "refresh-new",
			"token_type":    "Bearer",
			"expires_in":    60,
		})
	})

	set, err := NewOAuth2TokenEndpoint(nil).Refresh(context.Background(), provider, "refresh-old")
	require.NoError(t, err)
	assert.Equal(t, "refresh-new", set.RefreshToken)
}

func TestOAuth2TokenEndpoint_RefreshRejected(t *testing.T) {
	_, provider := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	})

	_, err := NewOAuth2TokenEndpoint(nil).Refresh(context.Background(), provider, "refresh-old")
	require.Error(t, err)

	var te *TokenError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "refresh", te.Grant)
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Equal(t, "invalid_grant", te.Code)
	assert.NotContains(t, err.Error(), "refresh-old")
}

func TestOAuth2TokenEndpoint_RefreshWithoutToken(t *testing.T) {
	var calls int32
	_, provider := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := NewOAuth2TokenEndpoint(nil).Refresh(context.Background(), provider, "")
	assert.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
}
