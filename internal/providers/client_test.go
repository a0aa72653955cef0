package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens struct {
	token string
	err   error
	calls int32
}

func (s *stubTokens) EnsureValid(ctx context.Context, userID, providerID string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.token, s.err
}

func newTestFactory(t *testing.T, handler http.HandlerFunc, tokens TokenProvider) (*ClientFactory, *ProviderConfig) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	catalog, err := NewCatalog(&ProviderConfig{
		ID:           "deere",
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/token",
		ClientID:     "client",
		ClientSecret: "secret",
		Accept:       "application/vnd.deere.axiom.v3+json",
		Endpoints: []EndpointConfig{
			{Name: "organizations", Path: "/organizations", ItemsField: "values"},
			{Name: "boundaries", Method: "POST", Path: "/boundaries", Body: `{"active":true}`},
		},
	})
	require.NoError(t, err)

	p, _ := catalog.Get("deere")
	return NewClientFactory(catalog, tokens, nil), p
}

func TestClient_Call(t *testing.T) {
	tokens := &stubTokens{token: "access-1"}
	factory, provider := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.deere.axiom.v3+json", r.Header.Get("Accept"))
		switch r.URL.Path {
		case "/organizations":
			_, _ = w.Write([]byte(`{"total":2,"values":[{"id":"1"},{"id":"2"}]}`))
		case "/boundaries":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			_, _ = w.Write([]byte(`[]`))
		}
	}, tokens)

	client, err := factory.ForConnection(context.Background(), "user-1", "deere")
	require.NoError(t, err)
	assert.Equal(t, provider, client.Provider())

	orgs, _ := provider.Endpoint("organizations")
	items, n, err := client.Call(context.Background(), orgs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.JSONEq(t, `[{"id":"1"},{"id":"2"}]`, string(items))

	boundaries, _ := provider.Endpoint("boundaries")
	_, n, err = client.Call(context.Background(), boundaries)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokens.calls), "token is looked up once per client")
}

func TestClient_CallHTTPError(t *testing.T) {
	factory, provider := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Deere-Warning", "RequiredCustomerAction")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"terms not accepted"}`))
	}, &stubTokens{token: "access-1"})

	client, err := factory.ForConnection(context.Background(), "user-1", "deere")
	require.NoError(t, err)

	orgs, _ := provider.Endpoint("organizations")
	_, _, err = client.Call(context.Background(), orgs)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Equal(t, "RequiredCustomerAction", httpErr.Header.Get("X-Deere-Warning"))
	assert.JSONEq(t, `{"message":"terms not accepted"}`, string(httpErr.Body))
}

func TestClient_TokenFailure(t *testing.T) {
	tokenErr := errors.New("auth expired")
	var hits int32
	factory, provider := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}, &stubTokens{err: tokenErr})

	client, err := factory.ForConnection(context.Background(), "user-1", "deere")
	require.NoError(t, err)

	assert.ErrorIs(t, client.Authorize(), tokenErr)

	orgs, _ := provider.Endpoint("organizations")
	_, _, err = client.Call(context.Background(), orgs)
	assert.ErrorIs(t, err, tokenErr)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestClientFactory_UnknownProvider(t *testing.T) {
	factory, _ := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {}, &stubTokens{})
	_, err := factory.ForConnection(context.Background(), "user-1", "fieldview")
	assert.Error(t, err)
}

func TestExtractItems(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		itemsField string
		wantCount  int
		wantErr    bool
	}{
		{"bare array", `[{"id":1},{"id":2},{"id":3}]`, "", 3, false},
		{"empty array", `[]`, "", 0, false},
		{"empty body", ``, "", 0, false},
		{"values envelope", `{"values":[{"id":1}]}`, "values", 1, false},
		{"missing field", `{"total":0}`, "values", 0, false},
		{"null field", `{"values":null}`, "values", 0, false},
		{"object without items field", `{"id":1}`, "", 0, true},
		{"field not array", `{"values":{"id":1}}`, "values", 0, true},
		{"not json", `<html>`, "values", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := ExtractItems([]byte(tt.body), tt.itemsField)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, n)
		})
	}
}

func TestProbeEndpoints(t *testing.T) {
	factory, provider := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"values":[{"id":"1"}]}`))
	}, &stubTokens{token: "t"})

	endpoints := ProbeEndpoints(provider)
	require.Len(t, endpoints, 2)
	assert.Equal(t, "organizations", endpoints[0].Name)
	assert.Equal(t, "boundaries", endpoints[1].Name)

	client, err := factory.ForConnection(context.Background(), "user-1", "deere")
	require.NoError(t, err)

	n, err := endpoints[0].Invoke(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
