package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-mahalle/farmlink/internal/domain/connection"
	apperrors "github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/providers"
	"github.com/pratik-mahalle/farmlink/internal/testutil"
)

func newTestProber(t *testing.T, catalog *providers.Catalog, tokens providers.TokenProvider, cfg ProberConfig) *CapabilityProber {
	t.Helper()
	factory := providers.NewClientFactory(catalog, tokens, nil)
	return NewCapabilityProber(factory, NewClassifiers(catalog), cfg, testutil.NewTestLogger())
}

func TestCapabilityProber_PartialAccessScenario(t *testing.T) {
	srv := farmAPI(t)
	catalog := newTestCatalog(t, srv.URL)
	provider, _ := catalog.Get("deere")

	prober := newTestProber(t, catalog, &staticTokens{token: "access"}, DefaultProberConfig())

	results, err := prober.Probe(context.Background(), testUser, "deere", providers.ProbeEndpoints(provider))
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "fields", results[0].Endpoint)
	assert.True(t, results[0].Success)
	assert.Equal(t, 3, results[0].ItemCount)
	assert.Nil(t, results[0].Category)

	assert.Equal(t, "equipment", results[1].Endpoint)
	assert.True(t, results[1].Success)
	assert.Equal(t, 5, results[1].ItemCount)

	for _, r := range results[2:] {
		assert.False(t, r.Success)
		require.NotNil(t, r.Category)
		assert.Equal(t, connection.RequiredCustomerAction(termsURL), *r.Category)
	}
	assert.Equal(t, "farms", results[2].Endpoint)
	assert.Equal(t, "files", results[3].Endpoint)
}

func TestCapabilityProber_AlwaysReturnsOneResultPerEndpoint(t *testing.T) {
	catalog := newTestCatalog(t, "")
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	endpoints := []providers.ProbeEndpoint{
		{Name: "hangs", Invoke: func(ctx context.Context, _ *providers.Client) (int, error) {
			<-release // ignores ctx
			return 0, nil
		}},
		{Name: "unavailable", Invoke: func(ctx context.Context, _ *providers.Client) (int, error) {
			return 0, &providers.HTTPError{StatusCode: http.StatusServiceUnavailable}
		}},
		{Name: "panics", Invoke: func(ctx context.Context, _ *providers.Client) (int, error) {
			panic("boom")
		}},
		{Name: "empty", Invoke: func(ctx context.Context, _ *providers.Client) (int, error) {
			return 0, nil
		}},
		{Name: "slow but polite", Invoke: func(ctx context.Context, _ *providers.Client) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}},
	}

	prober := newTestProber(t, catalog, &staticTokens{token: "access"}, ProberConfig{Timeout: 50 * time.Millisecond, Concurrency: 2})

	start := time.Now()
	results, err := prober.Probe(context.Background(), testUser, "deere", endpoints)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, results, len(endpoints))
	for i, ep := range endpoints {
		assert.Equal(t, ep.Name, results[i].Endpoint)
	}

	assert.Equal(t, connection.CategoryTransient, results[0].Category.Kind)
	assert.Equal(t, connection.CategoryTransient, results[1].Category.Kind)
	assert.Equal(t, connection.CategoryUnknown, results[2].Category.Kind)
	assert.True(t, results[3].Success, "an empty collection is a success")
	assert.Zero(t, results[3].ItemCount)
	assert.Equal(t, connection.CategoryTransient, results[4].Category.Kind)
}

func TestCapabilityProber_TokenFailureSkipsEndpoints(t *testing.T) {
	catalog := newTestCatalog(t, "")
	var invoked int32
	endpoints := []providers.ProbeEndpoint{
		{Name: "fields", Invoke: func(ctx context.Context, _ *providers.Client) (int, error) {
			atomic.AddInt32(&invoked, 1)
			return 1, nil
		}},
	}

	prober := newTestProber(t, catalog, &staticTokens{err: apperrors.AuthExpired("deere", nil)}, DefaultProberConfig())

	results, err := prober.Probe(context.Background(), testUser, "deere", endpoints)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAuthExpired))
	assert.Nil(t, results)
	assert.Zero(t, atomic.LoadInt32(&invoked))
}

func TestCapabilityProber_ExpiredContextMarksEverythingTransient(t *testing.T) {
	catalog := newTestCatalog(t, "")
	var invoked int32
	invoke := func(ctx context.Context, _ *providers.Client) (int, error) {
		atomic.AddInt32(&invoked, 1)
		return 1, nil
	}
	endpoints := []providers.ProbeEndpoint{{Name: "a", Invoke: invoke}, {Name: "b", Invoke: invoke}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := newTestProber(t, catalog, &staticTokens{token: "access"}, DefaultProberConfig())
	results, err := prober.Probe(ctx, testUser, "deere", endpoints)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, connection.CategoryTransient, r.Category.Kind)
	}
	assert.Zero(t, atomic.LoadInt32(&invoked))
}

func TestCapabilityProber_RespectsConcurrencyLimit(t *testing.T) {
	catalog := newTestCatalog(t, "")
	var inFlight, peak int32

	invoke := func(ctx context.Context, _ *providers.Client) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 1, nil
	}

	endpoints := make([]providers.ProbeEndpoint, 8)
	for i := range endpoints {
		endpoints[i] = providers.ProbeEndpoint{Name: string(rune('a' + i)), Invoke: invoke}
	}

	prober := newTestProber(t, catalog, &staticTokens{token: "access"}, ProberConfig{Timeout: time.Second, Concurrency: 3})
	results, err := prober.Probe(context.Background(), testUser, "deere", endpoints)
	require.NoError(t, err)
	assert.Len(t, results, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestCapabilityProber_FillsMissingScopeFromEndpoint(t *testing.T) {
	catalog := newTestCatalog(t, "")
	endpoints := []providers.ProbeEndpoint{
		{Name: "equipment", RequiredScope: "eq1", Invoke: func(ctx context.Context, _ *providers.Client) (int, error) {
			return 0, &providers.HTTPError{StatusCode: http.StatusForbidden, Body: []byte(`{"error":"insufficient_scope"}`)}
		}},
		{Name: "broken", Invoke: func(ctx context.Context, _ *providers.Client) (int, error) {
			return 0, errors.New("response is not a collection")
		}},
	}

	prober := newTestProber(t, catalog, &staticTokens{token: "access"}, DefaultProberConfig())
	results, err := prober.Probe(context.Background(), testUser, "deere", endpoints)
	require.NoError(t, err)

	assert.Equal(t, connection.InsufficientScope([]string{"eq1"}), *results[0].Category)
	assert.Equal(t, connection.Unknown("response is not a collection"), *results[1].Category)
}
