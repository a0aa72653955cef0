package credential

import (
	"context"
	"time"
)

// Repository defines the interface for credential persistence
type Repository interface {
	// Get returns the credential or a NOT_FOUND AppError
	Get(ctx context.Context, userID, providerID string) (*Credential, error)

	// Upsert atomically creates or replaces a credential (last write wins).
	// Every write stores a new Version.
	Upsert(ctx context.Context, c *Credential) error

	// Delete removes a credential; deleting a missing credential is not an error
	Delete(ctx context.Context, userID, providerID string) error

	// UpdateIfVersion replaces the stored tokens only while the row still has
	// c.Version. It reports false when the row was replaced or removed since
	// it was read; on success c.Version holds the new version.
	UpdateIfVersion(ctx context.Context, c *Credential) (bool, error)

	// DeleteIfVersion removes the row only while it still has the given version
	DeleteIfVersion(ctx context.Context, userID, providerID string, version int64) (bool, error)

	// ListByUser returns every credential a user holds
	ListByUser(ctx context.Context, userID string) ([]*Credential, error)

	// ListExpiring returns credentials whose access token expires before the given time
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]*Credential, error)
}
