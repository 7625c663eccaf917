package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// EncryptionMaterial is the key material for consumer secret encryption.
// Key is base64; Passphrase is used only when Key is empty.
type EncryptionMaterial struct {
	Key        string
	Passphrase string
}

// Empty reports whether no material was found.
func (m EncryptionMaterial) Empty() bool {
	return m.Key == "" && m.Passphrase == ""
}

// SecretProvider resolves the secrets idbroker needs at startup.
type SecretProvider interface {
	// GetDatabasePassword returns the source store password
	GetDatabasePassword(ctx context.Context) (string, error)

	// GetEncryptionMaterial returns the consumer secret key material
	GetEncryptionMaterial(ctx context.Context) (EncryptionMaterial, error)

	// HealthCheck reports whether the backing secret store is usable
	HealthCheck(ctx context.Context) error

	// Refresh refreshes all cached secrets
	Refresh(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

type cachedSecret struct {
	data      map[string]interface{}
	fetchedAt time.Time
}

// VaultSecretProvider reads secrets from Vault and caches each path for the
// refresh interval.
type VaultSecretProvider struct {
	client          *Client
	paths           SecretPaths
	refreshInterval time.Duration
	logger          *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedSecret

	stopOnce sync.Once
	stop     chan struct{}
}

// NewVaultSecretProvider creates a new VaultSecretProvider.
func NewVaultSecretProvider(client *Client, paths SecretPaths, refreshInterval time.Duration, logger *slog.Logger) *VaultSecretProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultSecretProvider{
		client:          client,
		paths:           paths,
		refreshInterval: refreshInterval,
		logger:          logger.With("component", "vault-secrets"),
		cache:           make(map[string]cachedSecret),
		stop:            make(chan struct{}),
	}
}

func (p *VaultSecretProvider) read(ctx context.Context, path string) (map[string]interface{}, error) {
	p.mu.RLock()
	entry, ok := p.cache[path]
	p.mu.RUnlock()

	if ok && time.Since(entry.fetchedAt) <= p.refreshInterval {
		return entry.data, nil
	}

	data, err := p.client.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[path] = cachedSecret{data: data, fetchedAt: time.Now()}
	p.mu.Unlock()

	return data, nil
}

// GetDatabasePassword returns the source store password.
func (p *VaultSecretProvider) GetDatabasePassword(ctx context.Context) (string, error) {
	data, err := p.read(ctx, p.paths.Database)
	if err != nil {
		return "", fmt.Errorf("failed to get database password: %w", err)
	}

	password, _ := data[SecretKeyPassword].(string)
	if password == "" {
		return "", fmt.Errorf("%s not found in database secret", SecretKeyPassword)
	}
	return password, nil
}

// GetEncryptionMaterial returns the consumer secret key material.
func (p *VaultSecretProvider) GetEncryptionMaterial(ctx context.Context) (EncryptionMaterial, error) {
	data, err := p.read(ctx, p.paths.Encryption)
	if err != nil {
		return EncryptionMaterial{}, fmt.Errorf("failed to get encryption key: %w", err)
	}

	m := EncryptionMaterial{}
	m.Key, _ = data[SecretKeyEncryptionKey].(string)
	m.Passphrase, _ = data[SecretKeyPassphrase].(string)
	if m.Empty() {
		return EncryptionMaterial{}, fmt.Errorf("neither %s nor %s found in encryption secret",
			SecretKeyEncryptionKey, SecretKeyPassphrase)
	}
	return m, nil
}

// HealthCheck delegates to the Vault client.
func (p *VaultSecretProvider) HealthCheck(ctx context.Context) error {
	return p.client.HealthCheck(ctx)
}

// Refresh re-reads every configured path, keeping stale entries on failure.
func (p *VaultSecretProvider) Refresh(ctx context.Context) error {
	var errs []error
	for _, path := range []string{p.paths.Database, p.paths.Encryption} {
		if path == "" {
			continue
		}
		data, err := p.client.GetSecret(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		p.mu.Lock()
		p.cache[path] = cachedSecret{data: data, fetchedAt: time.Now()}
		p.mu.Unlock()
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to refresh some secrets: %w", errors.Join(errs...))
	}

	p.logger.Debug("secrets refreshed")
	return nil
}

// StartRefreshLoop refreshes secrets in the background until Close.
func (p *VaultSecretProvider) StartRefreshLoop() {
	if p.refreshInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(p.refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				if err := p.Refresh(context.Background()); err != nil {
					p.logger.Warn("failed to refresh secrets", "error", err)
				}
			}
		}
	}()

	p.logger.Info("started secret refresh loop", "interval", p.refreshInterval)
}

// Close stops the refresh loop and the client's token renewal.
func (p *VaultSecretProvider) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return p.client.Close()
}

// EnvSecretProvider reads secrets from environment variables. It is used
// when Vault is disabled or unavailable.
type EnvSecretProvider struct {
	logger *slog.Logger
}

// NewEnvSecretProvider creates a new EnvSecretProvider.
func NewEnvSecretProvider(logger *slog.Logger) *EnvSecretProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvSecretProvider{logger: logger.With("component", "env-secrets")}
}

// GetDatabasePassword returns the database password from the environment.
func (p *EnvSecretProvider) GetDatabasePassword(_ context.Context) (string, error) {
	password := os.Getenv(EnvDatabasePassword)
	if password == "" {
		return "", fmt.Errorf("%s not set", EnvDatabasePassword)
	}
	return password, nil
}

// GetEncryptionMaterial returns the key material from the environment.
func (p *EnvSecretProvider) GetEncryptionMaterial(_ context.Context) (EncryptionMaterial, error) {
	m := EncryptionMaterial{
		Key:        os.Getenv(EnvEncryptionKey),
		Passphrase: os.Getenv(EnvEncryptionPassphrase),
	}
	if m.Empty() {
		return EncryptionMaterial{}, fmt.Errorf("%s or %s must be set", EnvEncryptionKey, EnvEncryptionPassphrase)
	}
	return m, nil
}

// HealthCheck always succeeds.
func (p *EnvSecretProvider) HealthCheck(_ context.Context) error {
	return nil
}

// Refresh is a no-op.
func (p *EnvSecretProvider) Refresh(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (p *EnvSecretProvider) Close() error {
	return nil
}

// NewSecretProvider returns a VaultSecretProvider when Vault is enabled and
// reachable, and an EnvSecretProvider otherwise if FallbackToEnv allows it.
func NewSecretProvider(ctx context.Context, cfg *Config, logger *slog.Logger) (SecretProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vault config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Enabled {
		logger.Info("vault disabled, using environment secrets")
		return NewEnvSecretProvider(logger), nil
	}

	fallback := func(stage string, err error) (SecretProvider, error) {
		if cfg.FallbackToEnv {
			logger.Warn("vault unavailable, falling back to environment", "stage", stage, "error", err)
			return NewEnvSecretProvider(logger), nil
		}
		return nil, fmt.Errorf("vault %s: %w", stage, err)
	}

	client, err := NewClient(cfg, logger)
	if err != nil {
		return fallback("client", err)
	}

	if err := client.Authenticate(ctx); err != nil {
		client.Close() //nolint:errcheck
		return fallback("authentication", err)
	}

	provider := NewVaultSecretProvider(client, cfg.SecretPaths, cfg.SecretRefreshInterval, logger)
	if err := provider.Refresh(ctx); err != nil {
		provider.Close() //nolint:errcheck
		return fallback("initial fetch", err)
	}

	client.StartTokenRenewal()
	provider.StartRefreshLoop()

	logger.Info("using vault secret provider", "address", cfg.Address)
	return provider, nil
}
