package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"vatwatch/internal/storage"
	"vatwatch/internal/store"
)

// Journal is the local resume journal. Record calls are best-effort by
// design: a failed journal write never blocks the tick path.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at dbPath. An empty path or
// ":memory:" uses an in-memory database.
func Open(dbPath string) (*Journal, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordFlight upserts a flight's lifecycle fields.
func (j *Journal) RecordFlight(f *store.Flight) {
	_, _ = j.db.Exec(`
		INSERT INTO flight_journal (callsign, status, departure, arrival,
			landed_at, disconnect_method, first_seen, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(callsign) DO UPDATE SET
			status = excluded.status,
			departure = excluded.departure,
			arrival = excluded.arrival,
			landed_at = excluded.landed_at,
			disconnect_method = excluded.disconnect_method,
			last_seen = excluded.last_seen,
			updated_at = CURRENT_TIMESTAMP`,
		f.Callsign, string(f.Status), f.Departure, f.Arrival,
		nullTime(f.LandedAt), nullString(string(f.DisconnectMethod)),
		f.FirstSeen.UTC(), f.LastSeen.UTC())
}

// RecordOccupancy upserts the open sector row for a callsign; a nil row
// clears it.
func (j *Journal) RecordOccupancy(callsign string, open *storage.OccupancyRow) {
	if open == nil {
		_, _ = j.db.Exec(`DELETE FROM occupancy_journal WHERE callsign = ?`, callsign)
		return
	}
	_, _ = j.db.Exec(`
		INSERT INTO occupancy_journal (callsign, sector_name, entry_timestamp,
			entry_latitude, entry_longitude, entry_altitude)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(callsign) DO UPDATE SET
			sector_name = excluded.sector_name,
			entry_timestamp = excluded.entry_timestamp,
			entry_latitude = excluded.entry_latitude,
			entry_longitude = excluded.entry_longitude,
			entry_altitude = excluded.entry_altitude`,
		callsign, open.SectorName, open.EntryTimestamp.UTC(),
		open.EntryLatitude, open.EntryLongitude, open.EntryAltitude)
}

// RemoveFlight drops a terminated flight from both tables.
func (j *Journal) RemoveFlight(callsign string) {
	_, _ = j.db.Exec(`DELETE FROM flight_journal WHERE callsign = ?`, callsign)
	_, _ = j.db.Exec(`DELETE FROM occupancy_journal WHERE callsign = ?`, callsign)
}

// RestoreFlights returns journaled lifecycle state updated within
// maxAge, for reseeding the in-memory store after a restart.
func (j *Journal) RestoreFlights(maxAge time.Duration) ([]store.Flight, error) {
	rows, err := j.db.Query(`
		SELECT callsign, status, departure, arrival, landed_at,
		       disconnect_method, first_seen, last_seen
		FROM flight_journal
		WHERE updated_at > datetime('now', ?)`,
		ageModifier(maxAge))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []store.Flight
	for rows.Next() {
		var f store.Flight
		var status string
		var dep, arr, method sql.NullString
		var landedAt sql.NullTime
		if err := rows.Scan(&f.Callsign, &status, &dep, &arr, &landedAt,
			&method, &f.FirstSeen, &f.LastSeen); err != nil {
			return nil, err
		}
		f.Status = store.Status(status)
		f.Departure = dep.String
		f.Arrival = arr.String
		f.DisconnectMethod = store.DisconnectMethod(method.String)
		if landedAt.Valid {
			f.LandedAt = landedAt.Time
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RestoreOccupancy returns the journaled open sector rows.
func (j *Journal) RestoreOccupancy() ([]storage.OccupancyRow, error) {
	rows, err := j.db.Query(`
		SELECT callsign, sector_name, entry_timestamp,
		       entry_latitude, entry_longitude, entry_altitude
		FROM occupancy_journal`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []storage.OccupancyRow
	for rows.Next() {
		var r storage.OccupancyRow
		if err := rows.Scan(&r.Callsign, &r.SectorName, &r.EntryTimestamp,
			&r.EntryLatitude, &r.EntryLongitude, &r.EntryAltitude); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune removes journal rows not updated within maxAge.
func (j *Journal) Prune(maxAge time.Duration) {
	_, _ = j.db.Exec(`DELETE FROM flight_journal WHERE updated_at <= datetime('now', ?)`,
		ageModifier(maxAge))
}

// ageModifier renders a duration as an SQLite datetime modifier.
func ageModifier(d time.Duration) string {
	return fmt.Sprintf("-%d seconds", int(d.Seconds()))
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
