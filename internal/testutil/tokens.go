package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pratik-mahalle/farmlink/internal/providers"
)

// FakeTokenEndpoint is a scriptable providers.TokenEndpoint
type FakeTokenEndpoint struct {
	mu sync.Mutex

	// Lifetime of issued access tokens, one hour when zero
	Lifetime      time.Duration
	RotateTokens  bool
	Scope         []string
	RefreshError  error
	ExchangeError error
	// Gate, when set, blocks every refresh until it is closed
	Gate chan struct{}

	refreshCalls  int32
	exchangeCalls int32
	issued        int
}

func NewFakeTokenEndpoint() *FakeTokenEndpoint {
	return &FakeTokenEndpoint{}
}

// RefreshCalls returns how many refresh grants were made
func (f *FakeTokenEndpoint) RefreshCalls() int {
	return int(atomic.LoadInt32(&f.refreshCalls))
}

// ExchangeCalls returns how many code exchanges were made
func (f *FakeTokenEndpoint) ExchangeCalls() int {
	return int(atomic.LoadInt32(&f.exchangeCalls))
}

func (f *FakeTokenEndpoint) Exchange(ctx context.Context, provider *providers.ProviderConfig, code string) (*providers.TokenSet, error) {
	atomic.AddInt32(&f.exchangeCalls, 1)
	if f.ExchangeError != nil {
		return nil, f.ExchangeError
	}
	return f.issue("exchange-"+code, true), nil
}

func (f *FakeTokenEndpoint) Refresh(ctx context.Context, provider *providers.ProviderConfig, refreshToken string) (*providers.TokenSet, error) {
	atomic.AddInt32(&f.refreshCalls, 1)

	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.RefreshError != nil {
		return nil, f.RefreshError
	}
	return f.issue("refresh", f.RotateTokens), nil
}

func (f *FakeTokenEndpoint) issue(prefix string, withRefresh bool) *providers.TokenSet {
	f.mu.Lock()
	f.issued++
	n := f.issued
	f.mu.Unlock()

	lifetime := f.Lifetime
	if lifetime == 0 {
		lifetime = time.Hour
	}

	set := &providers.TokenSet{
		AccessToken: fmt.Sprintf("%s-access-%d", prefix, n),
		ExpiresAt:   time.Now().Add(lifetime),
		Scope:       f.Scope,
	}
	if withRefresh {
		set.RefreshToken = fmt.Sprintf("%s-refresh-%d", prefix, n)
	}
	return set
}
