// Command api serves the farmlink connection lifecycle API.
//
// @title farmlink API
// @version 1.0
// @description Connection lifecycle for OAuth farm-data providers.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pratik-mahalle/farmlink/internal/api/handlers"
	"github.com/pratik-mahalle/farmlink/internal/api/router"
	"github.com/pratik-mahalle/farmlink/internal/config"
	"github.com/pratik-mahalle/farmlink/internal/pkg/crypto"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/pkg/validator"
	"github.com/pratik-mahalle/farmlink/internal/providers"
	"github.com/pratik-mahalle/farmlink/internal/repository/postgres"
	"github.com/pratik-mahalle/farmlink/internal/services"
	"github.com/pratik-mahalle/farmlink/internal/worker"
	"github.com/pratik-mahalle/farmlink/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.ErrorWithErr(err, "Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	applied, err := postgres.RunMigrations(ctx, db, migrations.GetFS())
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Infof("Database ready (%s), %d migrations applied", cfg.Database.Driver, applied)

	cipher, err := crypto.NewTokenCipher(cfg.Connection.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("token encryption: %w", err)
	}
	if !cipher.Enabled() {
		log.Warn("TOKEN_ENCRYPTION_KEY is not set, provider tokens are stored in plain text")
	}

	catalog, err := providers.LoadCatalog(cfg.Providers.CatalogPath)
	if err != nil {
		return fmt.Errorf("load provider catalog: %w", err)
	}
	log.Infof("Loaded %d providers from %s", len(catalog.IDs()), cfg.Providers.CatalogPath)

	fallback, err := providers.NewFallbackPolicy(cfg.Connection.Fallback)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.Connection.StatusTimeout}
	tokenEndpoint := providers.NewOAuth2TokenEndpoint(httpClient)
	credRepo := postgres.NewCredentialRepository(db, cfg.Database.Driver, cipher)

	refresher := services.NewTokenRefresher(credRepo, catalog, tokenEndpoint, services.RefresherConfig{
		Skew:    cfg.Connection.TokenSkew,
		Timeout: cfg.Connection.RefreshTimeout,
	}, log)
	clients := providers.NewClientFactory(catalog, refresher, httpClient)
	classifiers := services.NewClassifiers(catalog)
	prober := services.NewCapabilityProber(clients, classifiers, services.ProberConfig{
		Timeout:     cfg.Connection.ProbeTimeout,
		Concurrency: cfg.Connection.ProbeConcurrency,
	}, log)

	connectionService := services.NewConnectionManager(services.ManagerDeps{
		Catalog:     catalog,
		Credentials: credRepo,
		Tokens:      refresher,
		Exchanger:   tokenEndpoint,
		Prober:      prober,
		Clients:     clients,
		Classifiers: classifiers,
		Fallback:    fallback,
	}, services.ManagerConfig{
		StatusTimeout:   cfg.Connection.StatusTimeout,
		ExchangeTimeout: cfg.Connection.ExchangeTimeout,
	}, log)

	if cfg.Connection.KeeperEnabled {
		keeper, err := worker.NewTokenKeeper(credRepo, refresher, worker.KeeperConfig{
			Schedule: cfg.Connection.KeeperSchedule,
			Window:   cfg.Connection.KeeperWindow,
			Batch:    cfg.Connection.KeeperBatch,
		}, log)
		if err != nil {
			return err
		}
		if err := keeper.Start(ctx); err != nil {
			return err
		}
		defer keeper.Stop()
	}

	h := &router.Handlers{
		Health:     handlers.NewHealthHandler(db, len(catalog.IDs()), log),
		Connection: handlers.NewConnectionHandler(connectionService, catalog, log, validator.New()),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.New(cfg, log, h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s (%s)", srv.Addr, cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
