package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vatwatch/internal/store"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// StatementTimeout applies to bulk operations. Zero means 30s.
	StatementTimeout time.Duration
}

// PostgresDB wraps a PostgreSQL connection pool for state storage.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	stmtTimeout := cfg.StatementTimeout
	if stmtTimeout <= 0 {
		stmtTimeout = 30 * time.Second
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&statement_timeout=%d",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, stmtTimeout.Milliseconds())

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// Pool returns the underlying connection pool for advanced operations.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateSchema creates the PostgreSQL tables and indexes idempotently.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS controllers (
		callsign        TEXT PRIMARY KEY,
		cid             INTEGER NOT NULL,
		name            TEXT,
		rating          INTEGER NOT NULL DEFAULT 0 CHECK (rating BETWEEN -1 AND 12),
		facility        INTEGER NOT NULL DEFAULT 0 CHECK (facility BETWEEN 0 AND 6),
		visual_range    INTEGER,
		text_atis       TEXT,
		atis_code       TEXT,
		frequency       TEXT,
		server          TEXT,
		logon_time      TIMESTAMPTZ,
		last_updated    TIMESTAMPTZ,
		first_seen      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_controllers_last_updated ON controllers(callsign, last_updated);

	CREATE TABLE IF NOT EXISTS controllers_archive (
		id              BIGSERIAL PRIMARY KEY,
		callsign        TEXT NOT NULL,
		cid             INTEGER NOT NULL,
		name            TEXT,
		rating          INTEGER,
		facility        INTEGER,
		frequency       TEXT,
		server          TEXT,
		logon_time      TIMESTAMPTZ,
		first_seen      TIMESTAMPTZ,
		last_seen       TIMESTAMPTZ,
		archived_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_controllers_archive_callsign ON controllers_archive(callsign);

	CREATE TABLE IF NOT EXISTS flights (
		callsign            TEXT PRIMARY KEY,
		cid                 INTEGER NOT NULL,
		name                TEXT,
		server              TEXT,
		pilot_rating        INTEGER CHECK (pilot_rating BETWEEN 0 AND 63),
		military_rating     INTEGER,
		latitude            DOUBLE PRECISION CHECK (latitude BETWEEN -90 AND 90),
		longitude           DOUBLE PRECISION CHECK (longitude BETWEEN -180 AND 180),
		altitude            INTEGER CHECK (altitude BETWEEN -1000 AND 100000),
		groundspeed         INTEGER CHECK (groundspeed >= 0),
		heading             INTEGER CHECK (heading BETWEEN 0 AND 360),
		transponder         TEXT,
		qnh_i_hg            DOUBLE PRECISION,
		qnh_mb              INTEGER,
		flight_rules        TEXT,
		aircraft            TEXT,
		aircraft_short      TEXT,
		aircraft_faa        TEXT,
		departure           TEXT,
		arrival             TEXT,
		alternate           TEXT,
		route               TEXT,
		planned_altitude    TEXT,
		cruise_tas          TEXT,
		deptime             TEXT,
		enroute_time        TEXT,
		fuel_time           TEXT,
		remarks             TEXT,
		revision_id         INTEGER,
		assigned_transponder TEXT,
		logon_time          TIMESTAMPTZ,
		last_updated        TIMESTAMPTZ,
		last_updated_local  TIMESTAMPTZ,
		status              TEXT NOT NULL DEFAULT 'active'
			CHECK (status IN ('active', 'stale', 'landed', 'completed', 'cancelled', 'unknown')),
		uncertain           BOOLEAN NOT NULL DEFAULT FALSE,
		landed_at           TIMESTAMPTZ,
		disconnected_at     TIMESTAMPTZ,
		disconnect_method   TEXT,
		first_seen          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_flights_last_updated ON flights(callsign, last_updated);
	CREATE INDEX IF NOT EXISTS idx_flights_status ON flights(status);

	CREATE TABLE IF NOT EXISTS flights_archive (
		id                  BIGSERIAL PRIMARY KEY,
		callsign            TEXT NOT NULL,
		cid                 INTEGER,
		departure           TEXT,
		arrival             TEXT,
		aircraft_short      TEXT,
		route               TEXT,
		status              TEXT,
		logon_time          TIMESTAMPTZ,
		landed_at           TIMESTAMPTZ,
		disconnected_at     TIMESTAMPTZ,
		disconnect_method   TEXT,
		first_seen          TIMESTAMPTZ,
		last_seen           TIMESTAMPTZ,
		archived_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_flights_archive_callsign ON flights_archive(callsign);

	CREATE TABLE IF NOT EXISTS transceivers (
		callsign        TEXT NOT NULL,
		transceiver_id  INTEGER NOT NULL,
		timestamp       TIMESTAMPTZ NOT NULL,
		frequency       BIGINT NOT NULL CHECK (frequency >= 0),
		latitude        DOUBLE PRECISION,
		longitude       DOUBLE PRECISION,
		height_msl      DOUBLE PRECISION,
		height_agl      DOUBLE PRECISION,
		entity_type     TEXT NOT NULL CHECK (entity_type IN ('flight', 'atc')),
		PRIMARY KEY (callsign, transceiver_id, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_transceivers_correlation
		ON transceivers(entity_type, callsign, timestamp, frequency, latitude, longitude);

	CREATE TABLE IF NOT EXISTS flight_sector_occupancy (
		id                  BIGSERIAL PRIMARY KEY,
		callsign            TEXT NOT NULL,
		sector_name         TEXT NOT NULL,
		entry_timestamp     TIMESTAMPTZ NOT NULL,
		exit_timestamp      TIMESTAMPTZ,
		entry_latitude      DOUBLE PRECISION,
		entry_longitude     DOUBLE PRECISION,
		entry_altitude      INTEGER,
		exit_latitude       DOUBLE PRECISION,
		exit_longitude      DOUBLE PRECISION,
		exit_altitude       INTEGER,
		duration_seconds    INTEGER CHECK (duration_seconds >= 0),
		UNIQUE (callsign, sector_name, entry_timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_occupancy_callsign_sector
		ON flight_sector_occupancy(callsign, sector_name);

	CREATE TABLE IF NOT EXISTS flight_summaries (
		id                          BIGSERIAL PRIMARY KEY,
		callsign                    TEXT NOT NULL,
		cid                         INTEGER,
		departure                   TEXT,
		arrival                     TEXT,
		alternate                   TEXT,
		aircraft_short              TEXT,
		flight_rules                TEXT,
		route                       TEXT,
		planned_altitude            TEXT,
		controller_callsigns        TEXT[],
		controller_time_percentage  INTEGER,
		controller_class_counts     JSONB,
		time_online_minutes         INTEGER,
		primary_enroute_sector      TEXT,
		total_enroute_sectors       INTEGER,
		total_enroute_time_minutes  INTEGER,
		sector_breakdown            JSONB,
		disconnect_method           TEXT,
		completed_at                TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_callsign ON flight_summaries(callsign);
	CREATE INDEX IF NOT EXISTS idx_summaries_completed_at ON flight_summaries(completed_at);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Partial indexes created separately, as in older Postgres the inline
	// IF NOT EXISTS form inside a multi-statement string is fragile.
	partials := []string{
		`CREATE INDEX IF NOT EXISTS idx_flights_landed ON flights(callsign) WHERE status = 'landed'`,
		`CREATE INDEX IF NOT EXISTS idx_occupancy_open ON flight_sector_occupancy(callsign) WHERE exit_timestamp IS NULL`,
	}
	for _, q := range partials {
		if _, err := d.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}

// ts truncates to whole seconds UTC, the storage precision for all
// timestamps. Zero times map to NULL.
func ts(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Truncate(time.Second)
}

const upsertFlightSQL = `
	INSERT INTO flights (
		callsign, cid, name, server, pilot_rating, military_rating,
		latitude, longitude, altitude, groundspeed, heading, transponder,
		qnh_i_hg, qnh_mb, flight_rules, aircraft, aircraft_short, aircraft_faa,
		departure, arrival, alternate, route, planned_altitude, cruise_tas,
		deptime, enroute_time, fuel_time, remarks, revision_id, assigned_transponder,
		logon_time, last_updated, last_updated_local, status, uncertain,
		landed_at, disconnected_at, disconnect_method, first_seen, last_seen
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
		$31, $32, $33, $34, $35, $36, $37, $38, $39, $40
	)
	ON CONFLICT (callsign) DO UPDATE SET
		cid = EXCLUDED.cid,
		name = EXCLUDED.name,
		server = EXCLUDED.server,
		pilot_rating = EXCLUDED.pilot_rating,
		military_rating = EXCLUDED.military_rating,
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		altitude = EXCLUDED.altitude,
		groundspeed = EXCLUDED.groundspeed,
		heading = EXCLUDED.heading,
		transponder = EXCLUDED.transponder,
		qnh_i_hg = EXCLUDED.qnh_i_hg,
		qnh_mb = EXCLUDED.qnh_mb,
		flight_rules = EXCLUDED.flight_rules,
		aircraft = EXCLUDED.aircraft,
		aircraft_short = EXCLUDED.aircraft_short,
		aircraft_faa = EXCLUDED.aircraft_faa,
		departure = EXCLUDED.departure,
		arrival = EXCLUDED.arrival,
		alternate = EXCLUDED.alternate,
		route = EXCLUDED.route,
		planned_altitude = EXCLUDED.planned_altitude,
		cruise_tas = EXCLUDED.cruise_tas,
		deptime = EXCLUDED.deptime,
		enroute_time = EXCLUDED.enroute_time,
		fuel_time = EXCLUDED.fuel_time,
		remarks = EXCLUDED.remarks,
		revision_id = EXCLUDED.revision_id,
		assigned_transponder = EXCLUDED.assigned_transponder,
		logon_time = EXCLUDED.logon_time,
		last_updated = EXCLUDED.last_updated,
		last_updated_local = EXCLUDED.last_updated_local,
		status = EXCLUDED.status,
		uncertain = EXCLUDED.uncertain,
		landed_at = EXCLUDED.landed_at,
		disconnected_at = EXCLUDED.disconnected_at,
		disconnect_method = EXCLUDED.disconnect_method,
		last_seen = EXCLUDED.last_seen`

// BulkUpsertFlights writes a batch of flight snapshots in one transaction.
func (d *PostgresDB) BulkUpsertFlights(ctx context.Context, flights []store.Flight) error {
	if len(flights) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range flights {
		f := &flights[i]
		batch.Queue(upsertFlightSQL,
			f.Callsign, f.CID, f.Name, f.Server, f.PilotRating, f.MilitaryRating,
			f.Latitude, f.Longitude, f.Altitude, f.Groundspeed, f.Heading, f.Transponder,
			f.QNHInHg, f.QNHMb, f.FlightRules, f.Aircraft, f.AircraftShort, f.AircraftFAA,
			f.Departure, f.Arrival, f.Alternate, f.Route, f.PlannedAltitude, f.CruiseTAS,
			f.Deptime, f.EnrouteTime, f.FuelTime, f.Remarks, f.RevisionID, f.AssignedTransponder,
			ts(f.LogonTime), ts(f.LastUpdated), ts(f.LastUpdatedLocal), string(f.Status), f.Uncertain,
			ts(f.LandedAt), ts(f.DisconnectedAt), nullStr(string(f.DisconnectMethod)),
			ts(f.FirstSeen), ts(f.LastSeen),
		)
	}
	return d.sendBatch(ctx, batch)
}

const upsertControllerSQL = `
	INSERT INTO controllers (
		callsign, cid, name, rating, facility, visual_range, text_atis,
		atis_code, frequency, server, logon_time, last_updated, first_seen, last_seen
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (callsign) DO UPDATE SET
		cid = EXCLUDED.cid,
		name = EXCLUDED.name,
		rating = EXCLUDED.rating,
		facility = EXCLUDED.facility,
		visual_range = EXCLUDED.visual_range,
		text_atis = EXCLUDED.text_atis,
		atis_code = EXCLUDED.atis_code,
		frequency = EXCLUDED.frequency,
		server = EXCLUDED.server,
		logon_time = EXCLUDED.logon_time,
		last_updated = EXCLUDED.last_updated,
		last_seen = EXCLUDED.last_seen`

// BulkUpsertControllers writes a batch of controller snapshots in one
// transaction.
func (d *PostgresDB) BulkUpsertControllers(ctx context.Context, ctrls []store.Controller) error {
	if len(ctrls) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range ctrls {
		c := &ctrls[i]
		batch.Queue(upsertControllerSQL,
			c.Callsign, c.CID, c.Name, c.Rating, c.Facility, c.VisualRange, c.TextAtis,
			c.AtisCode, c.Frequency, c.Server, ts(c.LogonTime), ts(c.LastUpdated),
			ts(c.FirstSeen), ts(c.LastSeen),
		)
	}
	return d.sendBatch(ctx, batch)
}

func (d *PostgresDB) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("batch row %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return tx.Commit(ctx)
}

// InsertTransceivers bulk-appends transceiver samples. Duplicate keys
// (same callsign, transceiver and second) are ignored.
func (d *PostgresDB) InsertTransceivers(ctx context.Context, samples []store.TransceiverSample) error {
	if len(samples) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range samples {
		s := &samples[i]
		batch.Queue(`
			INSERT INTO transceivers (callsign, transceiver_id, timestamp, frequency,
				latitude, longitude, height_msl, height_agl, entity_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (callsign, transceiver_id, timestamp) DO NOTHING`,
			s.Callsign, s.TransceiverID, ts(s.Timestamp), s.FrequencyHz,
			s.Latitude, s.Longitude, s.HeightMSL, s.HeightAGL, string(s.EntityType),
		)
	}
	return d.sendBatch(ctx, batch)
}

// OccupancyRow is one continuous traversal of one sector by one flight.
// Identity for upserts is (callsign, sector_name, entry_timestamp).
type OccupancyRow struct {
	ID             int64
	Callsign       string
	SectorName     string
	EntryTimestamp time.Time
	ExitTimestamp  time.Time // zero while the row is open
	EntryLatitude  float64
	EntryLongitude float64
	EntryAltitude  int
	ExitLatitude   float64
	ExitLongitude  float64
	ExitAltitude   int
}

// DurationSeconds returns the closed-row duration, or 0 while open.
func (r *OccupancyRow) DurationSeconds() int {
	if r.ExitTimestamp.IsZero() {
		return 0
	}
	return int(r.ExitTimestamp.Sub(r.EntryTimestamp) / time.Second)
}

// BulkUpsertOccupancy writes occupancy rows in one transaction. Rows are
// upserted on their natural key so that an open and its matching close
// inside one flush window collapse to a single database row.
func (d *PostgresDB) BulkUpsertOccupancy(ctx context.Context, rows []OccupancyRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range rows {
		r := &rows[i]
		var exitTS, exitLat, exitLon, exitAlt, dur interface{}
		if !r.ExitTimestamp.IsZero() {
			exitTS = r.ExitTimestamp.UTC().Truncate(time.Second)
			exitLat = r.ExitLatitude
			exitLon = r.ExitLongitude
			exitAlt = r.ExitAltitude
			dur = r.DurationSeconds()
		}
		batch.Queue(`
			INSERT INTO flight_sector_occupancy (callsign, sector_name, entry_timestamp,
				exit_timestamp, entry_latitude, entry_longitude, entry_altitude,
				exit_latitude, exit_longitude, exit_altitude, duration_seconds)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (callsign, sector_name, entry_timestamp) DO UPDATE SET
				exit_timestamp = EXCLUDED.exit_timestamp,
				exit_latitude = EXCLUDED.exit_latitude,
				exit_longitude = EXCLUDED.exit_longitude,
				exit_altitude = EXCLUDED.exit_altitude,
				duration_seconds = EXCLUDED.duration_seconds`,
			r.Callsign, r.SectorName, ts(r.EntryTimestamp), exitTS,
			r.EntryLatitude, r.EntryLongitude, r.EntryAltitude,
			exitLat, exitLon, exitAlt, dur,
		)
	}
	return d.sendBatch(ctx, batch)
}

// OpenOccupancyRows returns the open rows for a callsign, oldest first.
func (d *PostgresDB) OpenOccupancyRows(ctx context.Context, callsign string) ([]OccupancyRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, callsign, sector_name, entry_timestamp,
		       entry_latitude, entry_longitude, entry_altitude
		FROM flight_sector_occupancy
		WHERE callsign = $1 AND exit_timestamp IS NULL
		ORDER BY entry_timestamp`, callsign)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OccupancyRow
	for rows.Next() {
		var r OccupancyRow
		if err := rows.Scan(&r.ID, &r.Callsign, &r.SectorName, &r.EntryTimestamp,
			&r.EntryLatitude, &r.EntryLongitude, &r.EntryAltitude); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllOpenOccupancyRows returns every open row, used to rebuild the
// in-memory occupancy state after a restart.
func (d *PostgresDB) AllOpenOccupancyRows(ctx context.Context) ([]OccupancyRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, callsign, sector_name, entry_timestamp,
		       entry_latitude, entry_longitude, entry_altitude
		FROM flight_sector_occupancy
		WHERE exit_timestamp IS NULL
		ORDER BY callsign, entry_timestamp`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OccupancyRow
	for rows.Next() {
		var r OccupancyRow
		if err := rows.Scan(&r.ID, &r.Callsign, &r.SectorName, &r.EntryTimestamp,
			&r.EntryLatitude, &r.EntryLongitude, &r.EntryAltitude); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FlightSummary is the rollup written once when a flight completes.
type FlightSummary struct {
	Callsign        string
	CID             int
	Departure       string
	Arrival         string
	Alternate       string
	AircraftShort   string
	FlightRules     string
	Route           string
	PlannedAltitude string

	ControllerCallsigns      []string
	ControllerTimePercentage int
	ControllerClassCounts    map[string]int // position class -> distinct controllers
	TimeOnlineMinutes        int

	PrimaryEnrouteSector    string
	TotalEnrouteSectors     int
	TotalEnrouteTimeMinutes int
	SectorBreakdown         map[string]int // sector name -> seconds

	DisconnectMethod string
	CompletedAt      time.Time
}

// InsertFlightSummary writes the completion rollup row.
func (d *PostgresDB) InsertFlightSummary(ctx context.Context, s FlightSummary) error {
	breakdown, err := json.Marshal(s.SectorBreakdown)
	if err != nil {
		return fmt.Errorf("marshal sector breakdown: %w", err)
	}
	classCounts, err := json.Marshal(s.ControllerClassCounts)
	if err != nil {
		return fmt.Errorf("marshal class counts: %w", err)
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO flight_summaries (callsign, cid, departure, arrival, alternate,
			aircraft_short, flight_rules, route, planned_altitude,
			controller_callsigns, controller_time_percentage, controller_class_counts,
			time_online_minutes,
			primary_enroute_sector, total_enroute_sectors, total_enroute_time_minutes,
			sector_breakdown, disconnect_method, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		s.Callsign, s.CID, s.Departure, s.Arrival, s.Alternate,
		s.AircraftShort, s.FlightRules, s.Route, s.PlannedAltitude,
		s.ControllerCallsigns, s.ControllerTimePercentage, classCounts,
		s.TimeOnlineMinutes,
		s.PrimaryEnrouteSector, s.TotalEnrouteSectors, s.TotalEnrouteTimeMinutes,
		breakdown, nullStr(s.DisconnectMethod), ts(s.CompletedAt),
	)
	return err
}

// HasSummary reports whether a completion rollup exists for a callsign
// completed at or after the given time.
func (d *PostgresDB) HasSummary(ctx context.Context, callsign string, since time.Time) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM flight_summaries WHERE callsign = $1 AND completed_at >= $2)`,
		callsign, ts(since)).Scan(&exists)
	return exists, err
}

// FlightSamples returns a flight's transceiver samples in [t0, t1],
// ordered by time. Used by the coverage correlator.
func (d *PostgresDB) FlightSamples(ctx context.Context, callsign string, t0, t1 time.Time) ([]store.TransceiverSample, error) {
	return d.samples(ctx, `
		SELECT callsign, transceiver_id, timestamp, frequency, latitude, longitude,
		       height_msl, height_agl, entity_type
		FROM transceivers
		WHERE entity_type = 'flight' AND callsign = $1 AND timestamp BETWEEN $2 AND $3
		ORDER BY timestamp`, callsign, ts(t0), ts(t1))
}

// ATCSamples returns all controller transceiver samples in [t0, t1].
func (d *PostgresDB) ATCSamples(ctx context.Context, t0, t1 time.Time) ([]store.TransceiverSample, error) {
	return d.samples(ctx, `
		SELECT callsign, transceiver_id, timestamp, frequency, latitude, longitude,
		       height_msl, height_agl, entity_type
		FROM transceivers
		WHERE entity_type = 'atc' AND timestamp BETWEEN $1 AND $2
		ORDER BY timestamp`, ts(t0), ts(t1))
}

func (d *PostgresDB) samples(ctx context.Context, query string, args ...interface{}) ([]store.TransceiverSample, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TransceiverSample
	for rows.Next() {
		var s store.TransceiverSample
		var et string
		if err := rows.Scan(&s.Callsign, &s.TransceiverID, &s.Timestamp, &s.FrequencyHz,
			&s.Latitude, &s.Longitude, &s.HeightMSL, &s.HeightAGL, &et); err != nil {
			return nil, err
		}
		s.EntityType = store.EntityType(et)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ControllerFacilities returns the facility type per known controller
// callsign, used to exclude observers from coverage.
func (d *PostgresDB) ControllerFacilities(ctx context.Context) (map[string]int, error) {
	rows, err := d.pool.Query(ctx, `SELECT callsign, facility FROM controllers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var cs string
		var fac int
		if err := rows.Scan(&cs, &fac); err != nil {
			return nil, err
		}
		out[cs] = fac
	}
	return out, rows.Err()
}

// ArchiveControllers moves controllers not seen since the cutoff into
// controllers_archive, returning the number moved.
func (d *PostgresDB) ArchiveControllers(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO controllers_archive (callsign, cid, name, rating, facility,
			frequency, server, logon_time, first_seen, last_seen)
		SELECT callsign, cid, name, rating, facility, frequency, server,
			logon_time, first_seen, last_seen
		FROM controllers WHERE last_seen < $1`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("copy to archive: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM controllers WHERE last_seen < $1`, ts(cutoff)); err != nil {
		return 0, fmt.Errorf("delete archived: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ArchiveFlights moves completed or cancelled flights not seen since the
// cutoff into flights_archive, returning the number moved.
func (d *PostgresDB) ArchiveFlights(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO flights_archive (callsign, cid, departure, arrival, aircraft_short,
			route, status, logon_time, landed_at, disconnected_at, disconnect_method,
			first_seen, last_seen)
		SELECT callsign, cid, departure, arrival, aircraft_short, route, status,
			logon_time, landed_at, disconnected_at, disconnect_method, first_seen, last_seen
		FROM flights
		WHERE status IN ('completed', 'cancelled') AND last_seen < $1`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("copy to archive: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM flights WHERE status IN ('completed', 'cancelled') AND last_seen < $1`,
		ts(cutoff)); err != nil {
		return 0, fmt.Errorf("delete archived: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// OldTransceivers returns samples older than the cutoff, for archival.
func (d *PostgresDB) OldTransceivers(ctx context.Context, cutoff time.Time, limit int) ([]store.TransceiverSample, error) {
	return d.samples(ctx, `
		SELECT callsign, transceiver_id, timestamp, frequency, latitude, longitude,
		       height_msl, height_agl, entity_type
		FROM transceivers WHERE timestamp < $1
		ORDER BY timestamp LIMIT $2`, ts(cutoff), limit)
}

// DeleteTransceiversBefore removes samples older than the cutoff after
// they have been archived.
func (d *PostgresDB) DeleteTransceiversBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM transceivers WHERE timestamp < $1`, ts(cutoff))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
