// Package main provides the entry point for the idbroker refresh worker.
// The worker re-fetches stored OIDC key sets on a cron schedule and serves
// health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janovincze/idbroker/internal/api/repositories"
	"github.com/janovincze/idbroker/internal/config"
	"github.com/janovincze/idbroker/internal/crypto"
	"github.com/janovincze/idbroker/internal/database"
	"github.com/janovincze/idbroker/internal/health"
	"github.com/janovincze/idbroker/internal/metrics"
	"github.com/janovincze/idbroker/internal/oidc"
	"github.com/janovincze/idbroker/internal/refresh"
	"github.com/janovincze/idbroker/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting idbroker refresh worker",
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	secrets, err := vault.NewSecretProvider(ctx, &cfg.Vault, logger)
	if err != nil {
		return fmt.Errorf("create secret provider: %w", err)
	}
	defer secrets.Close() //nolint:errcheck
	cfg.ApplySecrets(ctx, secrets, logger)

	// The worker never reads consumer secrets, but the repository seals them
	// on write and requires an encryptor.
	encryptor, err := crypto.NewEncryptorFromConfig(cfg.Encryption.Key, cfg.Encryption.Passphrase)
	if err != nil {
		return fmt.Errorf("create encryptor: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	fetcher := oidc.NewFetcher(nil, oidc.FetcherConfig{
		Timeout:         cfg.Discovery.Timeout,
		MaxResponseSize: cfg.Discovery.MaxResponseSize,
		UserAgent:       cfg.Discovery.UserAgent,
	}, logger)

	refresher, err := refresh.NewRefresher(
		repositories.NewOAuthSourceRepository(db, encryptor),
		fetcher,
		cfg.Refresh,
		logger,
	)
	if err != nil {
		return err
	}

	healthManager := health.NewManager(health.DefaultManagerConfig(), logger)
	healthManager.Register(health.NewDatabaseChecker("database", db.PingContext))
	healthManager.Register(health.NewVaultChecker("secrets", secrets.HealthCheck))
	healthManager.Register(health.NewComponentChecker("refresher", func(context.Context) (health.Status, string, error) {
		if !refresher.IsRunning() {
			return health.StatusUnhealthy, "refresh schedule not running", nil
		}
		return health.StatusHealthy, "refresh scheduled", nil
	}))

	healthHandler := health.Handler(healthManager, logger)
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler)
	mux.Handle("/health/", healthHandler)
	if cfg.Metrics.Enabled {
		metrics.Register()
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:              cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("worker endpoints listening", "addr", cfg.Metrics.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if err := refresher.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		refresher.Stop()
		return fmt.Errorf("worker endpoints: %w", err)
	}

	refresher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown worker endpoints: %w", err)
	}

	logger.Info("refresh worker stopped gracefully")
	return nil
}
