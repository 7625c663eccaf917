package vault

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
)

// ErrSecretNotFound is returned when a KV path holds no data.
var ErrSecretNotFound = errors.New("secret not found")

// Client wraps the Vault API client with login and token renewal.
type Client struct {
	config *Config
	api    *api.Client
	logger *slog.Logger

	mu       sync.RWMutex
	token    string
	tokenExp time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewClient creates a new Vault client with the given configuration.
func NewClient(cfg *Config, logger *slog.Logger) (*Client, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("vault config is required")
	case !cfg.Enabled:
		return nil, fmt.Errorf("vault is not enabled")
	case cfg.Address == "":
		return nil, fmt.Errorf("vault address is required")
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address

	if cfg.TLSSkipVerify {
		apiCfg.HttpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // explicitly requested
		}
	}

	if cfg.CACert != "" {
		if err := apiCfg.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	apiClient, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if cfg.Namespace != "" {
		apiClient.SetNamespace(cfg.Namespace)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: cfg,
		api:    apiClient,
		logger: logger.With("component", "vault-client"),
		stop:   make(chan struct{}),
	}, nil
}

// Authenticate logs in to Vault using the configured method.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.login(ctx)
}

// login must be called with the write lock held.
func (c *Client) login(ctx context.Context) error {
	switch c.config.AuthMethod {
	case AuthMethodToken:
		if c.config.Token == "" {
			return fmt.Errorf("vault token is required for token auth method")
		}
		c.setToken(c.config.Token, 0)

	case AuthMethodKubernetes:
		jwt, err := os.ReadFile(c.config.TokenPath)
		if err != nil {
			return fmt.Errorf("failed to read service account token: %w", err)
		}

		resp, err := c.api.Logical().WriteWithContext(ctx, "auth/kubernetes/login", map[string]interface{}{
			"role": c.config.Role,
			"jwt":  string(jwt),
		})
		if err != nil {
			return fmt.Errorf("failed to authenticate with kubernetes: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("no auth response from vault")
		}
		c.setToken(resp.Auth.ClientToken, resp.Auth.LeaseDuration)

	default:
		return fmt.Errorf("unsupported auth method: %s", c.config.AuthMethod)
	}

	c.logger.Info("authenticated to vault", "auth_method", c.config.AuthMethod)
	return nil
}

func (c *Client) setToken(token string, leaseSeconds int) {
	c.token = token
	c.api.SetToken(token)

	c.tokenExp = time.Time{}
	if leaseSeconds > 0 {
		c.tokenExp = time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	}
}

// expiring reports whether the token is missing or close to expiry. Caller
// must hold at least the read lock.
func (c *Client) expiring() bool {
	if c.token == "" {
		return true
	}
	if c.config.AuthMethod == AuthMethodToken || c.tokenExp.IsZero() {
		return false
	}
	return time.Now().Add(c.config.TokenRenewalInterval / 10).After(c.tokenExp)
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	expiring := c.expiring()
	c.mu.RUnlock()
	if !expiring {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.expiring() {
		return nil
	}
	if err := c.login(ctx); err != nil {
		return fmt.Errorf("failed to re-authenticate: %w", err)
	}
	return nil
}

// GetSecret reads the data map of a KV v2 secret.
func (c *Client) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	fullPath := fmt.Sprintf("%s/data/%s", c.config.SecretMountPath, path)

	secret, err := c.api.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w at %s", ErrSecretNotFound, fullPath)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", fullPath)
	}

	c.logger.Debug("fetched secret", "path", fullPath, "keys", len(data))
	return data, nil
}

// StartTokenRenewal renews a leased token in the background until Close.
func (c *Client) StartTokenRenewal() {
	if c.config.AuthMethod == AuthMethodToken || c.config.TokenRenewalInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(c.config.TokenRenewalInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				if err := c.renew(); err != nil {
					c.logger.Warn("token renewal failed, re-authenticating", "error", err)
					if err := c.Authenticate(context.Background()); err != nil {
						c.logger.Error("failed to re-authenticate", "error", err)
					}
				}
			}
		}
	}()
}

func (c *Client) renew() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.api.Auth().Token().RenewSelf(0)
	if err != nil {
		return fmt.Errorf("failed to renew token: %w", err)
	}
	if resp.Auth != nil && resp.Auth.LeaseDuration > 0 {
		c.tokenExp = time.Now().Add(time.Duration(resp.Auth.LeaseDuration) * time.Second)
	}
	return nil
}

// HealthCheck checks that Vault is reachable, initialized and unsealed.
func (c *Client) HealthCheck(ctx context.Context) error {
	health, err := c.api.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized {
		return fmt.Errorf("vault is not initialized")
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// Close stops token renewal.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}
