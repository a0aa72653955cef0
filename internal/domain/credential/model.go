package credential

import (
	"sort"
	"strings"
	"time"
)

// Credential is the OAuth grant a user holds for one provider.
type Credential struct {
	UserID       string    `json:"user_id"`
	ProviderID   string    `json:"provider_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Scope        []string  `json:"scope"`
	ExpiresAt    time.Time `json:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	// Version changes on every write; conditional writes compare against it
	Version int64 `json:"-"`
}

// Key identifies a credential row
type Key struct {
	UserID     string
	ProviderID string
}

// String renders the key as used for in-flight refresh deduplication
func (k Key) String() string {
	return k.UserID + "|" + k.ProviderID
}

// Key returns the credential's key
func (c *Credential) Key() Key {
	return Key{UserID: c.UserID, ProviderID: c.ProviderID}
}

// ValidFor reports whether the access token is still usable at now+skew.
func (c *Credential) ValidFor(now time.Time, skew time.Duration) bool {
	return c.AccessToken != "" && now.Add(skew).Before(c.ExpiresAt)
}

// CanRefresh reports whether a refresh grant is possible.
func (c *Credential) CanRefresh() bool {
	return c.RefreshToken != ""
}

// HasScope reports whether the grant includes scope s.
func (c *Credential) HasScope(s string) bool {
	for _, granted := range c.Scope {
		if granted == s {
			return true
		}
	}
	return false
}

// ParseScope splits a space or comma separated scope string into a
// sorted set without duplicates.
func ParseScope(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
	return NormalizeScope(fields)
}

// NormalizeScope deduplicates and sorts scopes.
func NormalizeScope(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FormatScope joins scopes for storage and token requests.
func FormatScope(scopes []string) string {
	return strings.Join(NormalizeScope(scopes), " ")
}
