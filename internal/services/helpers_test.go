package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pratik-mahalle/farmlink/internal/domain/credential"
	"github.com/pratik-mahalle/farmlink/internal/providers"
	"github.com/pratik-mahalle/farmlink/internal/testutil"
)

const testUser = "user-1"

func newTestCatalog(t *testing.T, baseURL string) *providers.Catalog {
	t.Helper()
	if baseURL == "" {
		baseURL = "https://api.example.com"
	}
	catalog, err := providers.NewCatalog(&providers.ProviderConfig{
		ID:           "deere",
		Name:         "John Deere",
		BaseURL:      baseURL,
		TokenURL:     "https://auth.example.com/token",
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"ag1", "org1"},
		Classifier:   deereRules(),
		Endpoints: []providers.EndpointConfig{
			{Name: "fields", Path: "/fields", ItemsField: "values", RequiredScope: "ag1", Sample: `[{"id":"sample-field"}]`},
			{Name: "equipment", Path: "/equipment", ItemsField: "values", RequiredScope: "eq1"},
			{Name: "farms", Path: "/farms", ItemsField: "values"},
			{Name: "files", Path: "/files", ItemsField: "values"},
		},
	})
	require.NoError(t, err)
	return catalog
}

func seedCredential(repo *testutil.MockCredentialRepository, expiresIn time.Duration, refreshToken string) *credential.Credential {
	c := &credential.Credential{
		UserID:       testUser,
		ProviderID:   "deere",
		AccessToken:  "access-old",
		RefreshToken: refreshToken,
		Scope:        []string{"ag1", "org1"},
		ExpiresAt:    time.Now().Add(expiresIn),
		UpdatedAt:    time.Now(),
	}
	repo.Put(c)
	return c
}

func newTestRefresher(t *testing.T, repo *testutil.MockCredentialRepository, tokens *testutil.FakeTokenEndpoint) *TokenRefresher {
	t.Helper()
	return NewTokenRefresher(repo, newTestCatalog(t, ""), tokens, DefaultRefresherConfig(), testutil.NewTestLogger())
}

// staticTokens is a providers.TokenProvider returning a fixed token or error
type staticTokens struct {
	token string
	err   error
	calls int32
}

func (s *staticTokens) EnsureValid(ctx context.Context, userID, providerID string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.token, s.err
}

const termsURL = "https://deere.example.com/terms"

// farmAPI serves the four capability endpoints of the test catalog: fields
// holds 3 items, equipment 5, and farms and files require customer action.
func farmAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/fields":
			writeValues(w, 3)
		case "/equipment":
			writeValues(w, 5)
		case "/farms", "/files":
			w.Header().Set("X-Deere-Warning", "RequiredCustomerAction")
			w.Header().Set("X-Deere-Terms-Location", termsURL)
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"terms of use not accepted"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeValues(w http.ResponseWriter, n int) {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"id":"%d"}`, i)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"values":[` + strings.Join(items, ",") + `]}`))
}
