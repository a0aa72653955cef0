package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pratik-mahalle/farmlink/internal/domain/connection"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/pkg/metrics"
	"github.com/pratik-mahalle/farmlink/internal/providers"
)

// ClientFactory builds an authenticated provider client for one connection
type ClientFactory interface {
	ForConnection(ctx context.Context, userID, providerID string) (*providers.Client, error)
}

// ProberConfig tunes capability probing
type ProberConfig struct {
	// Timeout bounds each endpoint call
	Timeout time.Duration
	// Concurrency bounds parallel endpoint calls within one probe
	Concurrency int
}

// DefaultProberConfig returns the production defaults
func DefaultProberConfig() ProberConfig {
	return ProberConfig{Timeout: 10 * time.Second, Concurrency: 8}
}

// CapabilityProber calls every capability endpoint of a provider in parallel
// and turns each outcome into a ProbeResult. One failing or hanging endpoint
// never affects the others.
type CapabilityProber struct {
	clients     ClientFactory
	classifiers *Classifiers
	cfg         ProberConfig
	logger      *logger.Logger
}

// NewCapabilityProber creates a new capability prober
func NewCapabilityProber(clients ClientFactory, classifiers *Classifiers, cfg ProberConfig, log *logger.Logger) *CapabilityProber {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &CapabilityProber{
		clients:     clients,
		classifiers: classifiers,
		cfg:         cfg,
		logger:      log,
	}
}

// Probe returns exactly one result per endpoint, in endpoint order. The only
// error is failing to obtain a valid token before any endpoint is called.
func (p *CapabilityProber) Probe(ctx context.Context, userID, providerID string, endpoints []providers.ProbeEndpoint) ([]connection.ProbeResult, error) {
	client, err := p.clients.ForConnection(ctx, userID, providerID)
	if err != nil {
		return nil, err
	}
	if err := client.Authorize(); err != nil {
		return nil, err
	}

	classifier := p.classifiers.For(providerID)
	log := p.logger.WithConnection(userID, providerID)
	results := make([]connection.ProbeResult, len(endpoints))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = p.probeOne(ctx, client, providerID, ep, classifier, log)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

type invokeOutcome struct {
	count int
	err   error
}

func (p *CapabilityProber) probeOne(
	ctx context.Context,
	client *providers.Client,
	providerID string,
	ep providers.ProbeEndpoint,
	classifier *ErrorClassifier,
	log *logger.Logger,
) connection.ProbeResult {
	start := time.Now()
	result := connection.ProbeResult{Endpoint: ep.Name}

	var outcome invokeOutcome
	if ctx.Err() != nil {
		outcome.err = ctx.Err()
	} else {
		outcome = p.invoke(ctx, client, ep)
	}

	result.Duration = time.Since(start)

	if outcome.err == nil {
		result.Success = true
		result.ItemCount = outcome.count
		metrics.RecordProbe(providerID, ep.Name, "success", result.Duration)
		return result
	}

	category := classifier.ClassifyError(outcome.err)
	if category.Kind == connection.CategoryInsufficientScope && len(category.Missing) == 0 && ep.RequiredScope != "" {
		category.Missing = []string{ep.RequiredScope}
	}
	result.Category = &category
	metrics.RecordProbe(providerID, ep.Name, string(category.Kind), result.Duration)

	if category.Kind == connection.CategoryUnknown {
		log.WithFields(map[string]interface{}{
			"endpoint": ep.Name,
			"message":  category.Message,
		}).WarnWithErr(outcome.err, "Unclassified provider error")
	} else {
		log.Debugf("Probe %s failed: %s", ep.Name, category.Kind)
	}

	return result
}

// invoke runs the endpoint under its own timeout and stops waiting when the
// timeout fires even if the call ignores its context.
func (p *CapabilityProber) invoke(ctx context.Context, client *providers.Client, ep providers.ProbeEndpoint) invokeOutcome {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	done := make(chan invokeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeOutcome{err: fmt.Errorf("probe %s panicked: %v", ep.Name, r)}
			}
		}()
		n, err := ep.Invoke(callCtx, client)
		done <- invokeOutcome{count: n, err: err}
	}()

	select {
	case out := <-done:
		return out
	case <-callCtx.Done():
		return invokeOutcome{err: callCtx.Err()}
	}
}
