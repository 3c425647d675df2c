package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"vatwatch/internal/store"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for the long-term archive.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// CreateSchema creates the archive tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transceiver_history (
			callsign        LowCardinality(String),
			transceiver_id  Int32,
			timestamp       DateTime,
			frequency       Int64,
			latitude        Float64,
			longitude       Float64,
			height_msl      Float64,
			height_agl      Float64,
			entity_type     LowCardinality(String),
			archived_at     DateTime DEFAULT now()
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (entity_type, callsign, timestamp)`,

		`CREATE TABLE IF NOT EXISTS completed_flights (
			callsign            LowCardinality(String),
			cid                 Int32,
			departure           LowCardinality(String),
			arrival             LowCardinality(String),
			aircraft_short      LowCardinality(String),
			route               String,
			disconnect_method   LowCardinality(String),
			logon_time          DateTime,
			landed_at           DateTime,
			completed_at        DateTime,
			archived_at         DateTime DEFAULT now()
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(completed_at)
		ORDER BY (callsign, completed_at)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// ArchiveTransceivers bulk-appends transceiver samples to the archive.
func (d *ClickHouseDB) ArchiveTransceivers(ctx context.Context, samples []store.TransceiverSample) error {
	if len(samples) == 0 {
		return nil
	}
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO transceiver_history (callsign, transceiver_id, timestamp, frequency,
			latitude, longitude, height_msl, height_agl, entity_type)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i := range samples {
		s := &samples[i]
		err := batch.Append(s.Callsign, int32(s.TransceiverID), s.Timestamp.UTC().Truncate(time.Second),
			s.FrequencyHz, s.Latitude, s.Longitude, s.HeightMSL, s.HeightAGL, string(s.EntityType))
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ArchiveFlight records one completed flight in the archive.
func (d *ClickHouseDB) ArchiveFlight(ctx context.Context, f *store.Flight, completedAt time.Time) error {
	err := d.conn.Exec(ctx, `
		INSERT INTO completed_flights (callsign, cid, departure, arrival, aircraft_short,
			route, disconnect_method, logon_time, landed_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Callsign, int32(f.CID), f.Departure, f.Arrival, f.AircraftShort,
		f.Route, string(f.DisconnectMethod),
		f.LogonTime.UTC().Truncate(time.Second),
		f.LandedAt.UTC().Truncate(time.Second),
		completedAt.UTC().Truncate(time.Second))
	if err != nil {
		return fmt.Errorf("archive flight: %w", err)
	}
	return nil
}
