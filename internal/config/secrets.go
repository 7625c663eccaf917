package config

import (
	"context"
	"log/slog"
	"strings"

	"github.com/janovincze/idbroker/internal/vault"
)

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ApplySecrets overlays the database password and encryption material from
// the secret provider. Values the provider cannot supply keep their
// environment or default value.
func (c *Config) ApplySecrets(ctx context.Context, provider vault.SecretProvider, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if password, err := provider.GetDatabasePassword(ctx); err == nil {
		c.Database.Password = password
	} else {
		logger.Debug("database password not provided by secret store", "error", err)
	}

	material, err := provider.GetEncryptionMaterial(ctx)
	if err != nil {
		logger.Debug("encryption material not provided by secret store", "error", err)
		return
	}
	if material.Key != "" {
		c.Encryption.Key = material.Key
	}
	if material.Passphrase != "" {
		c.Encryption.Passphrase = material.Passphrase
	}
}
