package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pratik-mahalle/farmlink/internal/domain/credential"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
)

// MockCredentialRepository is an in-memory credential.Repository safe for concurrent use
type MockCredentialRepository struct {
	mu          sync.Mutex
	creds       map[credential.Key]credential.Credential
	GetError    error
	UpsertError error
	DeleteError error
	ListError   error
	GetCalls    int
	version     int64
	UpsertCalls int
	DeleteCalls int
}

func NewMockCredentialRepository() *MockCredentialRepository {
	return &MockCredentialRepository{
		creds: make(map[credential.Key]credential.Credential),
	}
}

// Put stores a credential without counting a call
func (m *MockCredentialRepository) Put(c *credential.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.Key()] = clone(c)
}

// Peek returns a stored credential without counting a call
func (m *MockCredentialRepository) Peek(userID, providerID string) (*credential.Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[credential.Key{UserID: userID, ProviderID: providerID}]
	if !ok {
		return nil, false
	}
	out := clone(&c)
	return &out, true
}

// Calls returns the get, upsert and delete call counts
func (m *MockCredentialRepository) Calls() (gets, upserts, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetCalls, m.UpsertCalls, m.DeleteCalls
}

func (m *MockCredentialRepository) Get(ctx context.Context, userID, providerID string) (*credential.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetError != nil {
		return nil, m.GetError
	}
	c, ok := m.creds[credential.Key{UserID: userID, ProviderID: providerID}]
	if !ok {
		return nil, errors.NotFound("Credential")
	}
	out := clone(&c)
	return &out, nil
}

func (m *MockCredentialRepository) Upsert(ctx context.Context, c *credential.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.version++
	c.Version = m.version
	m.creds[c.Key()] = clone(c)
	return nil
}

func (m *MockCredentialRepository) UpdateIfVersion(ctx context.Context, c *credential.Credential) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertError != nil {
		return false, m.UpsertError
	}
	current, ok := m.creds[c.Key()]
	if !ok || current.Version != c.Version {
		return false, nil
	}
	m.version++
	c.Version = m.version
	m.creds[c.Key()] = clone(c)
	return true, nil
}

func (m *MockCredentialRepository) DeleteIfVersion(ctx context.Context, userID, providerID string, version int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	key := credential.Key{UserID: userID, ProviderID: providerID}
	current, ok := m.creds[key]
	if !ok || current.Version != version {
		return false, nil
	}
	delete(m.creds, key)
	return true, nil
}

func (m *MockCredentialRepository) Delete(ctx context.Context, userID, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteError != nil {
		return m.DeleteError
	}
	delete(m.creds, credential.Key{UserID: userID, ProviderID: providerID})
	return nil
}

func (m *MockCredentialRepository) ListByUser(ctx context.Context, userID string) ([]*credential.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	var out []*credential.Credential
	for k, c := range m.creds {
		if k.UserID == userID {
			cp := clone(&c)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out, nil
}

func (m *MockCredentialRepository) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*credential.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*credential.Credential
	for _, c := range m.creds {
		if c.ExpiresAt.Before(before) && c.RefreshToken != "" {
			cp := clone(&c)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(c *credential.Credential) credential.Credential {
	out := *c
	out.Scope = append([]string(nil), c.Scope...)
	return out
}
