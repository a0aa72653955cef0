package services

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pratik-mahalle/farmlink/internal/domain/credential"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/pkg/metrics"
	"github.com/pratik-mahalle/farmlink/internal/providers"
)

// RefresherConfig tunes the token refresher
type RefresherConfig struct {
	// Skew treats tokens expiring within this window as already expired
	Skew time.Duration
	// Timeout bounds a single call to the provider token endpoint
	Timeout time.Duration
}

// DefaultRefresherConfig returns the production defaults
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{Skew: 5 * time.Minute, Timeout: 15 * time.Second}
}

// TokenRefresher hands out valid access tokens, refreshing at most once at a
// time per (user, provider) no matter how many callers ask concurrently.
type TokenRefresher struct {
	repo     credential.Repository
	catalog  *providers.Catalog
	endpoint providers.TokenEndpoint
	cfg      RefresherConfig
	logger   *logger.Logger
	now      func() time.Time

	flights singleflight.Group
}

// NewTokenRefresher creates a new token refresher
func NewTokenRefresher(
	repo credential.Repository,
	catalog *providers.Catalog,
	endpoint providers.TokenEndpoint,
	cfg RefresherConfig,
	log *logger.Logger,
) *TokenRefresher {
	return &TokenRefresher{
		repo:     repo,
		catalog:  catalog,
		endpoint: endpoint,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
}

// EnsureValid returns an access token for the connection that is valid for at
// least the configured skew. A missing or unrefreshable credential yields an
// AUTH_EXPIRED error; a failed refresh also deletes the credential.
func (r *TokenRefresher) EnsureValid(ctx context.Context, userID, providerID string) (string, error) {
	return r.EnsureValidFor(ctx, userID, providerID, r.cfg.Skew)
}

// EnsureValidFor is EnsureValid with a caller chosen expiry margin.
func (r *TokenRefresher) EnsureValidFor(ctx context.Context, userID, providerID string, margin time.Duration) (string, error) {
	cred, err := r.load(ctx, userID, providerID)
	if err != nil {
		return "", err
	}

	if cred.ValidFor(r.now(), margin) {
		metrics.RecordTokenCacheHit(providerID)
		return cred.AccessToken, nil
	}

	// The refresh runs detached from this caller so that its cancellation
	// does not fail the other callers sharing the flight.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.flights.DoChan(cred.Key().String(), func() (interface{}, error) {
		return r.refresh(flightCtx, userID, providerID, margin)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordTokenRefreshShared(providerID)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *TokenRefresher) load(ctx context.Context, userID, providerID string) (*credential.Credential, error) {
	cred, err := r.repo.Get(ctx, userID, providerID)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, errors.AuthExpired(providerID, nil)
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// refresh runs inside the flight. The credential is read again so a caller
// arriving right after a finished flight reuses its token.
func (r *TokenRefresher) refresh(ctx context.Context, userID, providerID string, margin time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	log := r.logger.WithConnection(userID, providerID)

	cred, err := r.load(ctx, userID, providerID)
	if err != nil {
		return "", err
	}
	if cred.ValidFor(r.now(), margin) {
		return cred.AccessToken, nil
	}

	provider, ok := r.catalog.Get(providerID)
	if !ok {
		return "", errors.UnsupportedProvider(providerID)
	}

	if !cred.CanRefresh() {
		log.Info("Access token expired and no refresh token is stored")
		metrics.RecordTokenRefresh(providerID, "no_refresh_token", 0)
		if !r.invalidate(ctx, cred, log) {
			return r.current(ctx, userID, providerID, margin)
		}
		return "", errors.AuthExpired(providerID, nil)
	}

	start := time.Now()
	tokens, err := r.endpoint.Refresh(ctx, provider, cred.RefreshToken)
	if err != nil {
		metrics.RecordTokenRefresh(providerID, "failure", time.Since(start))
		log.WarnWithErr(err, "Token refresh failed, credential removed")
		if !r.invalidate(ctx, cred, log) {
			return r.current(ctx, userID, providerID, margin)
		}
		return "", errors.AuthExpired(providerID, err)
	}
	metrics.RecordTokenRefresh(providerID, "success", time.Since(start))

	cred.AccessToken = tokens.AccessToken
	cred.ExpiresAt = tokens.ExpiresAt
	if tokens.RefreshToken != "" {
		cred.RefreshToken = tokens.RefreshToken
	}
	if tokens.Scope != nil {
		cred.Scope = tokens.Scope
	}
	cred.UpdatedAt = r.now()

	stored, err := r.repo.UpdateIfVersion(ctx, cred)
	if err != nil {
		log.ErrorWithErr(err, "Failed to store refreshed credential")
		return "", err
	}
	if !stored {
		// disconnected or reconnected while the refresh was in flight
		log.Info("Credential changed during refresh, refreshed token discarded")
		metrics.RecordTokenRefresh(providerID, "discarded", 0)
		return r.current(ctx, userID, providerID, margin)
	}

	log.Debugf("Access token refreshed, expires at %s", cred.ExpiresAt.Format(time.RFC3339))
	return cred.AccessToken, nil
}

// invalidate deletes the credential that failed to refresh. It reports false
// when the row was replaced after it was read, leaving the new row in place.
func (r *TokenRefresher) invalidate(ctx context.Context, cred *credential.Credential, log *logger.Logger) bool {
	deleted, err := r.repo.DeleteIfVersion(ctx, cred.UserID, cred.ProviderID, cred.Version)
	if err != nil {
		log.ErrorWithErr(err, "Failed to delete unusable credential")
		return true
	}
	return deleted
}

// current returns the token of whatever credential is stored now, without
// refreshing again. A missing or still expired credential is AUTH_EXPIRED.
func (r *TokenRefresher) current(ctx context.Context, userID, providerID string, margin time.Duration) (string, error) {
	cred, err := r.load(ctx, userID, providerID)
	if err != nil {
		return "", err
	}
	if !cred.ValidFor(r.now(), margin) {
		return "", errors.AuthExpired(providerID, nil)
	}
	return cred.AccessToken, nil
}
