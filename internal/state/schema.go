// Package state keeps a small local journal of lifecycle progress so a
// restart can resume landed flights and open sector rows instead of
// losing them.
package state

// schema contains the SQLite table definitions for the journal.
const schema = `
-- One row per tracked flight; lifecycle fields only.
CREATE TABLE IF NOT EXISTS flight_journal (
	callsign          TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	departure         TEXT,
	arrival           TEXT,
	landed_at         DATETIME,
	disconnect_method TEXT,
	first_seen        DATETIME,
	last_seen         DATETIME,
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_flight_journal_updated ON flight_journal(updated_at);

-- The at-most-one open sector row per flight.
CREATE TABLE IF NOT EXISTS occupancy_journal (
	callsign        TEXT PRIMARY KEY,
	sector_name     TEXT NOT NULL,
	entry_timestamp DATETIME NOT NULL,
	entry_latitude  REAL,
	entry_longitude REAL,
	entry_altitude  INTEGER
);
`
