// Package vault resolves idbroker secrets from HashiCorp Vault, with an
// environment fallback.
package vault

import "time"

// Config holds Vault client configuration.
type Config struct {
	// Enabled enables Vault integration
	Enabled bool

	// Address is the Vault server URL
	Address string

	// Namespace is the Vault namespace (Enterprise feature)
	Namespace string

	// AuthMethod is the authentication method ("kubernetes" or "token")
	AuthMethod string

	// Role is the Vault role for Kubernetes authentication
	Role string

	// TokenPath is the path to the Kubernetes service account token
	TokenPath string

	// Token is a static Vault token (for development/testing)
	Token string

	// TLSSkipVerify skips TLS certificate verification
	TLSSkipVerify bool

	// CACert is the path to a CA certificate file
	CACert string

	// SecretMountPath is the mount path for the KV v2 secrets engine
	SecretMountPath string

	// TokenRenewalInterval is how often to renew the Vault token
	TokenRenewalInterval time.Duration

	// SecretRefreshInterval is how long cached secrets stay valid
	SecretRefreshInterval time.Duration

	// FallbackToEnv enables fallback to environment variables if Vault is unavailable
	FallbackToEnv bool

	// SecretPaths contains the Vault paths for each secret
	SecretPaths SecretPaths
}

// SecretPaths defines the KV paths idbroker reads.
type SecretPaths struct {
	// Database holds the source store credentials (key "password")
	Database string

	// Encryption holds the consumer secret key material (keys "key" or "passphrase")
	Encryption string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AuthMethod:            AuthMethodKubernetes,
		Role:                  "idbroker",
		TokenPath:             DefaultTokenPath,
		SecretMountPath:       "secret",
		TokenRenewalInterval:  time.Hour,
		SecretRefreshInterval: 5 * time.Minute,
		FallbackToEnv:         true,
		SecretPaths: SecretPaths{
			Database:   "idbroker/database",
			Encryption: "idbroker/encryption",
		},
	}
}

// Authentication method constants.
const (
	// AuthMethodKubernetes uses Kubernetes service account authentication
	AuthMethodKubernetes = "kubernetes"

	// AuthMethodToken uses a static Vault token
	AuthMethodToken = "token"
)

// DefaultTokenPath is the default path to the Kubernetes service account token.
const DefaultTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// Keys read from Vault KV secrets.
const (
	SecretKeyPassword      = "password"
	SecretKeyEncryptionKey = "key"
	SecretKeyPassphrase    = "passphrase"
)

// Environment variables consulted by EnvSecretProvider.
const (
	EnvDatabasePassword     = "IDBROKER_DB_PASSWORD"
	EnvEncryptionKey        = "IDBROKER_ENCRYPTION_KEY"
	EnvEncryptionPassphrase = "IDBROKER_ENCRYPTION_PASSPHRASE"
)
