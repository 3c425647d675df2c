// Package storage persists the tracked network state. PostgreSQL holds
// the mutable tables (controllers, flights, occupancy, summaries);
// ClickHouse holds the append-only history archived off completed
// flights. The write batcher is the only caller on the hot path.
package storage

import (
	"context"
	"fmt"
)

// Config holds database connection settings for both stores.
type Config struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig

	// ArchiveEnabled gates the ClickHouse connection entirely.
	ArchiveEnabled bool
}

// DefaultConfig returns local development settings.
func DefaultConfig() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "vatwatch",
			User:     "vatwatch",
			Password: "vatwatch",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "vatwatch_archive",
			User:     "default",
			Password: "",
		},
		ArchiveEnabled: false,
	}
}

// DB wraps the PostgreSQL state store and the optional ClickHouse archive.
type DB struct {
	PG *PostgresDB
	CH *ClickHouseDB // nil when archiving is disabled
}

// Open opens the configured database connections.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	pg, err := OpenPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	db := &DB{PG: pg}
	if cfg.ArchiveEnabled {
		ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			pg.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		db.CH = ch
	}
	return db, nil
}

// Close closes all database connections.
func (d *DB) Close() error {
	var errs []error
	if d.CH != nil {
		if err := d.CH.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if d.PG != nil {
		d.PG.Close()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// CreateSchemas creates the schemas in all connected databases.
func (d *DB) CreateSchemas(ctx context.Context) error {
	if err := d.PG.CreateSchema(ctx); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	if d.CH != nil {
		if err := d.CH.CreateSchema(ctx); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return nil
}
