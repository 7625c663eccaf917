// Package database opens the idbroker source store and applies its schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/janovincze/idbroker/internal/config"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

// Open connects to PostgreSQL, configures the pool and verifies the
// connection. When cfg.MigrateOnStart is set, pending migrations are applied.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "database")

	db, err := sql.Open(DriverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping database %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}

	logger.Info("connected to database", "host", cfg.Host, "port", cfg.Port, "database", cfg.Name)

	if cfg.MigrateOnStart {
		version, err := Migrate(db)
		if err != nil {
			db.Close() //nolint:errcheck
			return nil, err
		}
		logger.Info("database schema up to date", "version", version)
	}

	return db, nil
}
