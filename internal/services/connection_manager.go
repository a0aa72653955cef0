package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pratik-mahalle/farmlink/internal/domain/connection"
	"github.com/pratik-mahalle/farmlink/internal/domain/credential"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/pkg/metrics"
	"github.com/pratik-mahalle/farmlink/internal/providers"
)

// ManagerConfig tunes the connection manager
type ManagerConfig struct {
	// StatusTimeout bounds a whole status check including token refresh
	StatusTimeout time.Duration
	// ExchangeTimeout bounds the authorization code exchange in Connect
	ExchangeTimeout time.Duration
}

// DefaultManagerConfig returns the production defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{StatusTimeout: 30 * time.Second, ExchangeTimeout: 30 * time.Second}
}

// ManagerDeps are the collaborators of a ConnectionManager
type ManagerDeps struct {
	Catalog     *providers.Catalog
	Credentials credential.Repository
	Tokens      providers.TokenProvider
	Exchanger   providers.TokenEndpoint
	Prober      *CapabilityProber
	Clients     ClientFactory
	Classifiers *Classifiers
	Fallback    providers.FallbackPolicy
}

// ConnectionManager implements connection.Service
type ConnectionManager struct {
	catalog     *providers.Catalog
	repo        credential.Repository
	tokens      providers.TokenProvider
	exchanger   providers.TokenEndpoint
	prober      *CapabilityProber
	clients     ClientFactory
	classifiers *Classifiers
	fallback    providers.FallbackPolicy
	cfg         ManagerConfig
	logger      *logger.Logger
	now         func() time.Time
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(deps ManagerDeps, cfg ManagerConfig, log *logger.Logger) connection.Service {
	return newConnectionManager(deps, cfg, log)
}

func newConnectionManager(deps ManagerDeps, cfg ManagerConfig, log *logger.Logger) *ConnectionManager {
	fallback := deps.Fallback
	if fallback == nil {
		fallback = providers.NoFallback{}
	}
	return &ConnectionManager{
		catalog:     deps.Catalog,
		repo:        deps.Credentials,
		tokens:      deps.Tokens,
		exchanger:   deps.Exchanger,
		prober:      deps.Prober,
		clients:     deps.Clients,
		classifiers: deps.Classifiers,
		fallback:    fallback,
		cfg:         cfg,
		logger:      log,
		now:         time.Now,
	}
}

// CheckStatus probes the provider and returns the authoritative status
func (m *ConnectionManager) CheckStatus(ctx context.Context, userID, providerID string) (*connection.StatusReport, error) {
	provider, ok := m.catalog.Get(providerID)
	if !ok {
		return nil, errors.UnsupportedProvider(providerID)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StatusTimeout)
	defer cancel()

	report, err := m.check(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	metrics.RecordStatusCheck(providerID, string(report.Status), time.Since(start))
	return report, nil
}

func (m *ConnectionManager) check(ctx context.Context, userID string, provider *providers.ProviderConfig) (*connection.StatusReport, error) {
	if _, err := m.repo.Get(ctx, userID, provider.ID); err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return m.report(provider, connection.StatusDisconnected, nil), nil
		}
		return nil, err
	}

	if _, err := m.tokens.EnsureValid(ctx, userID, provider.ID); err != nil {
		return m.tokenFailure(ctx, userID, provider, err)
	}

	results, err := m.prober.Probe(ctx, userID, provider.ID, providers.ProbeEndpoints(provider))
	if err != nil {
		return m.tokenFailure(ctx, userID, provider, err)
	}

	return m.report(provider, EvaluateConnection(true, results), results), nil
}

// tokenFailure turns an EnsureValid error into a report or an error
func (m *ConnectionManager) tokenFailure(ctx context.Context, userID string, provider *providers.ProviderConfig, err error) (*connection.StatusReport, error) {
	if errors.HasCode(err, errors.ErrCodeAuthExpired) {
		m.logger.WithConnection(userID, provider.ID).Info("Connection needs to be re-authorized")
		return m.report(provider, connection.StatusAuthRequired, nil), nil
	}
	if ctx.Err() != nil || stderrors.Is(err, context.DeadlineExceeded) {
		return nil, errors.Transient(provider.ID, err)
	}
	return nil, err
}

// unavailable stands in for the report of a check that did not complete
func (m *ConnectionManager) unavailable(provider *providers.ProviderConfig, err error) *connection.StatusReport {
	report := m.report(provider, connection.StatusConnectionRequired, nil)
	if errors.HasCode(err, errors.ErrCodeTransient) {
		report.Message = fmt.Sprintf("%s is temporarily unavailable. Try again shortly.", provider.Name)
	} else {
		report.Message = fmt.Sprintf("The %s connection could not be checked. Try again shortly.", provider.Name)
	}
	return report
}

func (m *ConnectionManager) report(provider *providers.ProviderConfig, status connection.Status, results []connection.ProbeResult) *connection.StatusReport {
	if results == nil {
		results = []connection.ProbeResult{}
	}
	links := RemediationLinks(results)
	return &connection.StatusReport{
		Provider:         provider.ID,
		Status:           status,
		ProbeResults:     results,
		RemediationLinks: links,
		Message:          statusMessage(provider.Name, status, results, links),
		CheckedAt:        m.now(),
	}
}

// Connect exchanges an authorization code, stores the credential and returns the first status check
func (m *ConnectionManager) Connect(ctx context.Context, userID, providerID, authCode string) (*connection.StatusReport, error) {
	provider, ok := m.catalog.Get(providerID)
	if !ok {
		return nil, errors.UnsupportedProvider(providerID)
	}

	authCode = strings.TrimSpace(authCode)
	if authCode == "" {
		return nil, errors.BadRequest("Authorization code is required")
	}

	log := m.logger.WithConnection(userID, providerID)

	exchangeCtx, cancel := context.WithTimeout(ctx, m.cfg.ExchangeTimeout)
	defer cancel()

	tokens, err := m.exchanger.Exchange(exchangeCtx, provider, authCode)
	if err != nil {
		log.WarnWithErr(err, "Authorization code exchange failed")
		return nil, errors.TokenExchange(providerID, err)
	}

	cred := &credential.Credential{
		UserID:       userID,
		ProviderID:   providerID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Scope:        credential.NormalizeScope(tokens.Scope),
		ExpiresAt:    tokens.ExpiresAt,
		UpdatedAt:    m.now(),
	}
	if err := m.repo.Upsert(ctx, cred); err != nil {
		log.ErrorWithErr(err, "Failed to store credential")
		return nil, err
	}

	log.Info("Provider connected")
	return m.CheckStatus(ctx, userID, providerID)
}

// Disconnect forgets the user's credential; disconnecting twice is not an error
func (m *ConnectionManager) Disconnect(ctx context.Context, userID, providerID string) error {
	if _, ok := m.catalog.Get(providerID); !ok {
		return errors.UnsupportedProvider(providerID)
	}

	if err := m.repo.Delete(ctx, userID, providerID); err != nil {
		m.logger.WithConnection(userID, providerID).ErrorWithErr(err, "Failed to disconnect provider")
		return err
	}

	m.logger.WithConnection(userID, providerID).Info("Provider disconnected")
	return nil
}

// ListStatuses checks every catalogued provider concurrently. Providers the
// user holds no credential for are reported disconnected without a lookup.
// Provider side failures end up in the reports; only storage errors fail the listing.
func (m *ConnectionManager) ListStatuses(ctx context.Context, userID string) ([]*connection.StatusReport, error) {
	held, err := m.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	connected := make(map[string]bool, len(held))
	for _, c := range held {
		connected[c.ProviderID] = true
	}

	ids := m.catalog.IDs()
	reports := make([]*connection.StatusReport, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		if !connected[id] {
			provider, _ := m.catalog.Get(id)
			reports[i] = m.report(provider, connection.StatusDisconnected, nil)
			continue
		}
		g.Go(func() error {
			report, err := m.CheckStatus(ctx, userID, id)
			if errors.HasCode(err, errors.ErrCodeDatabase) {
				return fmt.Errorf("check %s: %w", id, err)
			}
			if err != nil {
				m.logger.WithConnection(userID, id).WarnWithErr(err, "Status check did not complete")
				provider, _ := m.catalog.Get(id)
				report = m.unavailable(provider, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Fetch calls one capability endpoint for the tool layer. Failures are
// returned as categorized errors unless the fallback policy substitutes data.
func (m *ConnectionManager) Fetch(ctx context.Context, userID, providerID, endpointName string) (*connection.FetchResult, error) {
	provider, ok := m.catalog.Get(providerID)
	if !ok {
		return nil, errors.UnsupportedProvider(providerID)
	}
	endpoint, ok := provider.Endpoint(endpointName)
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("Endpoint %q", endpointName))
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.StatusTimeout)
	defer cancel()

	client, err := m.clients.ForConnection(ctx, userID, providerID)
	if err != nil {
		return nil, err
	}

	items, count, err := client.Call(ctx, endpoint)
	if err == nil {
		return &connection.FetchResult{
			Provider:  providerID,
			Endpoint:  endpointName,
			Items:     items,
			ItemCount: count,
		}, nil
	}

	appErr := m.toolError(userID, provider, endpoint, err)

	if sample, ok := m.fallback.Fallback(provider, endpoint, appErr); ok {
		_, n, _ := providers.ExtractItems(sample, "")
		metrics.RecordFallback(providerID, endpointName)
		m.logger.WithConnection(userID, providerID).Infof("Serving sample data for %s after %s", endpointName, appErr.Code)
		return &connection.FetchResult{
			Provider:     providerID,
			Endpoint:     endpointName,
			Items:        sample,
			ItemCount:    n,
			FromFallback: true,
		}, nil
	}

	return nil, appErr
}

func (m *ConnectionManager) toolError(userID string, provider *providers.ProviderConfig, endpoint *providers.EndpointConfig, err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.Code == errors.ErrCodeAuthExpired {
		return appErr
	}

	category := m.classifiers.For(provider.ID).ClassifyError(err)
	if category.Kind == connection.CategoryUnknown {
		fields := map[string]interface{}{
			"endpoint": endpoint.Name,
			"message":  category.Message,
		}
		var httpErr *providers.HTTPError
		if stderrors.As(err, &httpErr) {
			fields["status"] = httpErr.StatusCode
		}
		m.logger.WithConnection(userID, provider.ID).WithFields(fields).WarnWithErr(err, "Unclassified provider error")
	}
	if category.Kind == connection.CategoryInsufficientScope && len(category.Missing) == 0 && endpoint.RequiredScope != "" {
		category.Missing = []string{endpoint.RequiredScope}
	}
	return category.AsError(provider.ID)
}

// statusMessage builds the user facing explanation of a status
func statusMessage(providerName string, status connection.Status, results []connection.ProbeResult, links []string) string {
	switch status {
	case connection.StatusDisconnected:
		return fmt.Sprintf("Connect your %s account to share farm data.", providerName)
	case connection.StatusAuthRequired:
		return fmt.Sprintf("Your %s authorization has expired. Reconnect to continue.", providerName)
	case connection.StatusConnected:
		return fmt.Sprintf("Connected to %s.", providerName)
	}

	kinds := make(map[connection.CategoryKind]bool)
	failedCount := 0
	for _, r := range results {
		if r.Category != nil {
			kinds[r.Category.Kind] = true
			failedCount++
		}
	}

	var hint string
	switch {
	case len(links) > 0:
		hint = fmt.Sprintf("Complete the required steps in %s to share all data.", providerName)
	case kinds[connection.CategoryConnectionNotEstablished]:
		hint = fmt.Sprintf("Link your organization in %s to share data.", providerName)
	case kinds[connection.CategoryInsufficientScope]:
		hint = fmt.Sprintf("Reconnect %s and grant the requested permissions.", providerName)
	case kinds[connection.CategoryUnauthorized]:
		hint = fmt.Sprintf("Reconnect %s to refresh its permissions.", providerName)
	case len(kinds) == 1 && kinds[connection.CategoryTransient]:
		hint = fmt.Sprintf("%s is temporarily unavailable. Try again shortly.", providerName)
	default:
		hint = fmt.Sprintf("%s returned an unexpected error.", providerName)
	}

	if status == connection.StatusPartiallyConnected {
		return fmt.Sprintf("Connected to %s, but %d of %d data sources are unavailable. %s",
			providerName, failedCount, len(results), hint)
	}
	return fmt.Sprintf("%s is connected but no data could be accessed. %s", providerName, hint)
}
