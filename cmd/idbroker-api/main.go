// Package main provides the entry point for the idbroker management API.
// The API serves CRUD and discovery endpoints for OAuth/OIDC sources.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/janovincze/idbroker/internal/api"
	"github.com/janovincze/idbroker/internal/api/middleware"
	"github.com/janovincze/idbroker/internal/api/repositories"
	"github.com/janovincze/idbroker/internal/api/services"
	"github.com/janovincze/idbroker/internal/config"
	"github.com/janovincze/idbroker/internal/crypto"
	"github.com/janovincze/idbroker/internal/database"
	"github.com/janovincze/idbroker/internal/health"
	"github.com/janovincze/idbroker/internal/oidc"
	"github.com/janovincze/idbroker/internal/oidc/providers"
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
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting idbroker API",
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	secrets, err := vault.NewSecretProvider(ctx, &cfg.Vault, logger)
	if err != nil {
		return fmt.Errorf("create secret provider: %w", err)
	}
	defer secrets.Close() //nolint:errcheck
	cfg.ApplySecrets(ctx, secrets, logger)

	encryptor, err := crypto.NewEncryptorFromConfig(cfg.Encryption.Key, cfg.Encryption.Passphrase)
	if err != nil {
		return fmt.Errorf("create encryptor: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	registry := providers.NewRegistry()
	fetcher := oidc.NewFetcher(nil, oidc.FetcherConfig{
		Timeout:         cfg.Discovery.Timeout,
		MaxResponseSize: cfg.Discovery.MaxResponseSize,
		UserAgent:       cfg.Discovery.UserAgent,
	}, logger)
	validator := services.NewSourceConfigValidator(registry, fetcher, logger)
	sourceService := services.NewOAuthSourceService(
		repositories.NewOAuthSourceRepository(db, encryptor),
		registry,
		validator,
		cfg.API.BaseURL,
		logger,
	)

	var verifier middleware.TokenVerifier
	if cfg.Auth.Enabled {
		tokens, err := services.NewTokenService(cfg.Auth)
		if err != nil {
			return fmt.Errorf("create token service: %w", err)
		}
		verifier = tokens
	} else {
		logger.Warn("admin API authentication is disabled")
	}

	healthManager := health.NewManager(health.DefaultManagerConfig(), logger)
	healthManager.Register(health.NewDatabaseChecker("database", db.PingContext))
	healthManager.Register(health.NewVaultChecker("secrets", secrets.HealthCheck))

	server, err := api.NewServer(ctx, api.ServerConfig{
		Config:        cfg,
		Logger:        logger,
		HealthManager: healthManager,
		SourceService: sourceService,
		TokenVerifier: verifier,
	})
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api server: %w", err)
		}
		logger.Info("idbroker API stopped gracefully")
		return nil
	case err := <-errCh:
		return err
	}
}
