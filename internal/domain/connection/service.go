package connection

import "context"

// Service defines the connection lifecycle operations
type Service interface {
	// CheckStatus probes the provider and returns the authoritative status
	CheckStatus(ctx context.Context, userID, providerID string) (*StatusReport, error)

	// Connect exchanges an authorization code and returns the first status check
	Connect(ctx context.Context, userID, providerID, authCode string) (*StatusReport, error)

	// Disconnect forgets the user's credential for a provider
	Disconnect(ctx context.Context, userID, providerID string) error

	// ListStatuses checks every configured provider for the user
	ListStatuses(ctx context.Context, userID string) ([]*StatusReport, error)

	// Fetch calls one capability endpoint on behalf of the tool layer
	Fetch(ctx context.Context, userID, providerID, endpoint string) (*FetchResult, error)
}
