package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pratik-mahalle/farmlink/internal/domain/credential"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/pkg/metrics"
)

// Refresher renews a credential so it stays valid for at least margin
type Refresher interface {
	EnsureValidFor(ctx context.Context, userID, providerID string, margin time.Duration) (string, error)
}

// KeeperConfig tunes the background token keeper
type KeeperConfig struct {
	// Schedule is a standard cron spec or descriptor such as "@every 10m"
	Schedule string
	// Window is how far ahead of expiry credentials are renewed
	Window time.Duration
	// Batch caps how many credentials one sweep renews
	Batch int
}

// SweepStats summarizes one sweep
type SweepStats struct {
	Checked   int
	Refreshed int
	Expired   int
	Failed    int
}

// TokenKeeper periodically renews credentials that are about to expire so
// interactive status checks rarely pay for a refresh.
type TokenKeeper struct {
	repo      credential.Repository
	refresher Refresher
	cfg       KeeperConfig
	logger    *logger.Logger
	now       func() time.Time

	scheduler    *cron.Cron
	runningMutex sync.Mutex
}

// NewTokenKeeper creates a new token keeper worker
func NewTokenKeeper(repo credential.Repository, refresher Refresher, cfg KeeperConfig, log *logger.Logger) (*TokenKeeper, error) {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid keeper schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Batch < 1 {
		cfg.Batch = 100
	}
	return &TokenKeeper{
		repo:      repo,
		refresher: refresher,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
	}, nil
}

// Start schedules sweeps until ctx is cancelled or Stop is called.
// A sweep still running when the next one is due is skipped.
func (k *TokenKeeper) Start(ctx context.Context) error {
	k.runningMutex.Lock()
	defer k.runningMutex.Unlock()

	if k.scheduler != nil {
		return fmt.Errorf("token keeper is already running")
	}

	cl := cronLogger{log: k.logger}
	k.scheduler = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := k.scheduler.AddFunc(k.cfg.Schedule, func() { k.Sweep(ctx) }); err != nil {
		k.scheduler = nil
		return fmt.Errorf("failed to schedule token keeper: %w", err)
	}
	k.scheduler.Start()

	k.logger.WithFields(map[string]interface{}{
		"schedule": k.cfg.Schedule,
		"window":   k.cfg.Window.String(),
	}).Info("Token keeper started")

	go func() {
		<-ctx.Done()
		k.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish
func (k *TokenKeeper) Stop() {
	k.runningMutex.Lock()
	scheduler := k.scheduler
	k.scheduler = nil
	k.runningMutex.Unlock()

	if scheduler == nil {
		return
	}
	<-scheduler.Stop().Done()
	k.logger.Info("Token keeper stopped")
}

// Sweep renews every credential expiring within the window
func (k *TokenKeeper) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats

	creds, err := k.repo.ListExpiring(ctx, k.now().Add(k.cfg.Window), k.cfg.Batch)
	if err != nil {
		k.logger.ErrorWithErr(err, "Failed to list expiring credentials")
		return stats
	}

	for _, c := range creds {
		if ctx.Err() != nil {
			break
		}
		stats.Checked++

		_, err := k.refresher.EnsureValidFor(ctx, c.UserID, c.ProviderID, k.cfg.Window)
		switch {
		case err == nil:
			stats.Refreshed++
			metrics.RecordKeeperRefresh("refreshed")
		case errors.HasCode(err, errors.ErrCodeAuthExpired):
			stats.Expired++
			metrics.RecordKeeperRefresh("expired")
			k.logger.WithConnection(c.UserID, c.ProviderID).Info("Credential could not be renewed and was removed")
		default:
			stats.Failed++
			metrics.RecordKeeperRefresh("error")
			k.logger.WithConnection(c.UserID, c.ProviderID).WarnWithErr(err, "Failed to renew credential")
		}
	}

	if stats.Checked > 0 {
		k.logger.WithFields(map[string]interface{}{
			"checked":   stats.Checked,
			"refreshed": stats.Refreshed,
			"expired":   stats.Expired,
			"failed":    stats.Failed,
		}).Info("Completed token keeper sweep")
	}
	return stats
}

// cronLogger routes scheduler logs through the application logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(pairs(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(pairs(keysAndValues)).ErrorWithErr(err, msg)
}

func pairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
