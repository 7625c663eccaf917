// Package config provides configuration loading and management for idbroker services.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/janovincze/idbroker/internal/vault"
)

// Config holds all configuration for idbroker services.
type Config struct {
	// Version is the application version
	Version string

	// Environment is the deployment environment (development, staging, production)
	Environment string

	// LogLevel is the minimum slog level (debug, info, warn, error)
	LogLevel string

	// API configuration
	API APIConfig

	// Database configuration for the source store
	Database DatabaseConfig

	// Discovery configuration for remote well-known and JWKS fetches
	Discovery DiscoveryConfig

	// Auth configuration for the admin API
	Auth AuthConfig

	// Encryption configuration for stored consumer secrets
	Encryption EncryptionConfig

	// Vault configuration
	Vault vault.Config

	// Metrics configuration
	Metrics MetricsConfig

	// Refresh configuration for the JWKS refresh worker
	Refresh RefreshConfig
}

// APIConfig holds API server configuration.
type APIConfig struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// BaseURL is the external base URL, used to build OAuth callback URLs
	BaseURL string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// CORSOrigins is a list of allowed CORS origins (use "*" for all)
	CORSOrigins []string

	// RateLimitRPS is the per-client rate limit on routes that trigger
	// discovery fetches
	RateLimitRPS float64

	// RateLimitBurst is the maximum burst size for rate limiting
	RateLimitBurst int

	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers are
	// honored for the client IP. Empty trusts none.
	TrustedProxies []string
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the database host
	Host string

	// Port is the database port
	Port int

	// Name is the database name
	Name string

	// User is the database user
	User string

	// Password is the database password
	Password string

	// SSLMode is the SSL mode (disable, require, verify-ca, verify-full)
	SSLMode string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// MigrateOnStart applies pending schema migrations at startup
	MigrateOnStart bool
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// URL returns the database connection URL.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// DiscoveryConfig holds settings for fetching remote provider documents.
type DiscoveryConfig struct {
	// Timeout bounds each well-known or JWKS fetch
	Timeout time.Duration

	// MaxResponseSize is the largest accepted document, in bytes
	MaxResponseSize int64

	// UserAgent is sent with every fetch
	UserAgent string
}

// AuthConfig holds admin API authentication configuration.
type AuthConfig struct {
	// Enabled requires a bearer token on /api/v1/sources routes
	Enabled bool

	// JWTSecret is the HMAC secret used to sign and verify admin tokens
	JWTSecret string

	// Issuer is the expected token issuer
	Issuer string

	// TokenTTL is the lifetime of tokens minted by the CLI
	TokenTTL time.Duration
}

// EncryptionConfig holds consumer secret encryption configuration.
type EncryptionConfig struct {
	// Key is a base64-encoded 32-byte AES key
	Key string

	// Passphrase derives a key with HKDF when Key is empty
	Passphrase string
}

// MetricsConfig holds metrics/observability configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection
	Enabled bool

	// ListenAddr is the address for the worker metrics endpoint
	ListenAddr string
}

// RefreshConfig holds JWKS refresh worker configuration.
type RefreshConfig struct {
	// Schedule is a cron expression for refresh runs
	Schedule string

	// RunOnStart triggers a refresh immediately when the worker starts
	RunOnStart bool

	// Concurrency is the number of sources refreshed in parallel
	Concurrency int
}

// Load loads configuration from environment variables, after applying any
// .env file found in the working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("IDBROKER_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	vaultDefaults := vault.DefaultConfig()

	cfg := &Config{
		Version:     getEnv("IDBROKER_VERSION", "0.1.0"),
		Environment: getEnv("IDBROKER_ENV", "development"),
		LogLevel:    getEnv("IDBROKER_LOG_LEVEL", "info"),

		API: APIConfig{
			ListenAddr:     getEnv("IDBROKER_API_LISTEN_ADDR", ":8080"),
			BaseURL:        getEnv("IDBROKER_API_BASE_URL", "http://localhost:8080"),
			ReadTimeout:    getDurationEnv("IDBROKER_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("IDBROKER_API_WRITE_TIMEOUT", 30*time.Second),
			CORSOrigins:    getSliceEnv("IDBROKER_API_CORS_ORIGINS", []string{"*"}),
			RateLimitRPS:   getFloatEnv("IDBROKER_API_RATE_LIMIT_RPS", 10),
			RateLimitBurst: getIntEnv("IDBROKER_API_RATE_LIMIT_BURST", 20),
			TrustedProxies: getSliceEnv("IDBROKER_API_TRUSTED_PROXIES", nil),
		},

		Database: DatabaseConfig{
			Host:           getEnv("IDBROKER_DB_HOST", "localhost"),
			Port:           getIntEnv("IDBROKER_DB_PORT", 5432),
			Name:           getEnv("IDBROKER_DB_NAME", "idbroker"),
			User:           getEnv("IDBROKER_DB_USER", "idbroker"),
			Password:       getEnv("IDBROKER_DB_PASSWORD", "idbroker"),
			SSLMode:        getEnv("IDBROKER_DB_SSLMODE", "disable"),
			MaxOpenConns:   getIntEnv("IDBROKER_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getIntEnv("IDBROKER_DB_MAX_IDLE_CONNS", 5),
			MigrateOnStart: getBoolEnv("IDBROKER_DB_MIGRATE_ON_START", true),
		},

		Discovery: DiscoveryConfig{
			Timeout:         getDurationEnv("IDBROKER_DISCOVERY_TIMEOUT", 10*time.Second),
			MaxResponseSize: int64(getIntEnv("IDBROKER_DISCOVERY_MAX_RESPONSE_BYTES", 1<<20)),
			UserAgent:       getEnv("IDBROKER_DISCOVERY_USER_AGENT", "idbroker-discovery"),
		},

		Auth: AuthConfig{
			Enabled:   getBoolEnv("IDBROKER_AUTH_ENABLED", false),
			JWTSecret: getEnv("IDBROKER_AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("IDBROKER_AUTH_ISSUER", "idbroker"),
			TokenTTL:  getDurationEnv("IDBROKER_AUTH_TOKEN_TTL", time.Hour),
		},

		Encryption: EncryptionConfig{
			Key:        getEnv("IDBROKER_ENCRYPTION_KEY", ""),
			Passphrase: getEnv("IDBROKER_ENCRYPTION_PASSPHRASE", ""),
		},

		Vault: vault.Config{
			Enabled:               getBoolEnv("IDBROKER_VAULT_ENABLED", vaultDefaults.Enabled),
			Address:               getEnv("IDBROKER_VAULT_ADDR", vaultDefaults.Address),
			Namespace:             getEnv("IDBROKER_VAULT_NAMESPACE", vaultDefaults.Namespace),
			AuthMethod:            getEnv("IDBROKER_VAULT_AUTH_METHOD", vaultDefaults.AuthMethod),
			Role:                  getEnv("IDBROKER_VAULT_ROLE", vaultDefaults.Role),
			TokenPath:             getEnv("IDBROKER_VAULT_TOKEN_PATH", vaultDefaults.TokenPath),
			Token:                 getEnv("IDBROKER_VAULT_TOKEN", vaultDefaults.Token),
			TLSSkipVerify:         getBoolEnv("IDBROKER_VAULT_TLS_SKIP_VERIFY", vaultDefaults.TLSSkipVerify),
			CACert:                getEnv("IDBROKER_VAULT_CA_CERT", vaultDefaults.CACert),
			SecretMountPath:       getEnv("IDBROKER_VAULT_MOUNT_PATH", vaultDefaults.SecretMountPath),
			TokenRenewalInterval:  getDurationEnv("IDBROKER_VAULT_TOKEN_RENEWAL_INTERVAL", vaultDefaults.TokenRenewalInterval),
			SecretRefreshInterval: getDurationEnv("IDBROKER_VAULT_SECRET_REFRESH_INTERVAL", vaultDefaults.SecretRefreshInterval),
			FallbackToEnv:         getBoolEnv("IDBROKER_VAULT_FALLBACK_TO_ENV", vaultDefaults.FallbackToEnv),
			SecretPaths: vault.SecretPaths{
				Database:   getEnv("IDBROKER_VAULT_SECRET_PATH_DATABASE", vaultDefaults.SecretPaths.Database),
				Encryption: getEnv("IDBROKER_VAULT_SECRET_PATH_ENCRYPTION", vaultDefaults.SecretPaths.Encryption),
			},
		},

		Metrics: MetricsConfig{
			Enabled:    getBoolEnv("IDBROKER_METRICS_ENABLED", true),
			ListenAddr: getEnv("IDBROKER_METRICS_LISTEN_ADDR", ":9090"),
		},

		Refresh: RefreshConfig{
			Schedule:    getEnv("IDBROKER_REFRESH_SCHEDULE", "@every 1h"),
			RunOnStart:  getBoolEnv("IDBROKER_REFRESH_RUN_ON_START", true),
			Concurrency: getIntEnv("IDBROKER_REFRESH_CONCURRENCY", 4),
		},
	}

	return cfg, nil
}

// loadDotEnv applies a .env file without overriding variables already set in
// the process environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range splitAndTrim(value, ",") {
			if v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
