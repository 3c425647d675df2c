package lifecycle

import (
	"time"

	"vatwatch/internal/storage"
	"vatwatch/internal/store"
)

// sectorTrack is the per-flight occupancy state: at most one open row,
// plus the closed rows accumulated over the flight's lifetime. Closed
// rows feed the completion summary's sector breakdown.
type sectorTrack struct {
	open   *storage.OccupancyRow
	closed []storage.OccupancyRow
}

// trackSector advances a flight's sector occupancy for one tick. A
// flight holds at most one open row at a time; crossing into a new
// sector closes the old row in the same tick.
func (e *Engine) trackSector(f *store.Flight, now time.Time) {
	if !validPosition(f.Latitude, f.Longitude) {
		return
	}

	sector := e.ref.SectorContaining(f.Latitude, f.Longitude)
	tr := e.sectors[f.Callsign]
	if tr == nil {
		tr = &sectorTrack{}
		e.sectors[f.Callsign] = tr
	}

	if tr.open != nil {
		if tr.open.SectorName == sector {
			return
		}
		e.closeOpenRow(tr, f, now)
	}

	if sector == "" {
		return
	}

	row := storage.OccupancyRow{
		Callsign:       f.Callsign,
		SectorName:     sector,
		EntryTimestamp: now.UTC().Truncate(time.Second),
		EntryLatitude:  f.Latitude,
		EntryLongitude: f.Longitude,
		EntryAltitude:  f.Altitude,
	}
	tr.open = &row
	e.sink.QueueOccupancy(row)
	if e.journal != nil {
		e.journal.RecordOccupancy(f.Callsign, tr.open)
	}
}

// closeOpenRow finalises the open row with the flight's last known
// position and queues the closed form. The batcher coalesces this with
// the matching open when both fall inside one flush window.
func (e *Engine) closeOpenRow(tr *sectorTrack, f *store.Flight, now time.Time) {
	row := *tr.open
	row.ExitTimestamp = now.UTC().Truncate(time.Second)
	row.ExitLatitude = f.Latitude
	row.ExitLongitude = f.Longitude
	row.ExitAltitude = f.Altitude
	tr.open = nil
	tr.closed = append(tr.closed, row)
	e.sink.QueueOccupancy(row)
	if e.journal != nil {
		e.journal.RecordOccupancy(f.Callsign, nil)
	}
}

// closeAllSectors closes any open occupancy row for a terminating
// flight so no open row outlives its flight.
func (e *Engine) closeAllSectors(callsign string, f *store.Flight, now time.Time) {
	tr := e.sectors[callsign]
	if tr == nil || tr.open == nil {
		return
	}
	e.closeOpenRow(tr, f, now)
}

// RestoreOccupancy seeds the open-row state after a restart, from the
// database or the local journal.
func (e *Engine) RestoreOccupancy(rows []storage.OccupancyRow) {
	e.lock()
	defer e.unlock()

	for i := range rows {
		row := rows[i]
		tr := e.sectors[row.Callsign]
		if tr == nil {
			tr = &sectorTrack{}
			e.sectors[row.Callsign] = tr
		}
		tr.open = &row
	}
}

func validPosition(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
