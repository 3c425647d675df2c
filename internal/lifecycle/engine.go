// Package lifecycle drives the flight state machine: active, stale,
// landed, completed, cancelled. The poll tick owns active/stale/landed
// transitions; the disconnect and timeout checks own landed to completed.
// All status writes go through the store's per-flight write lock.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"vatwatch/internal/airspace"
	"vatwatch/internal/storage"
	"vatwatch/internal/store"
	"vatwatch/internal/vatsim"
)

// Config holds the lifecycle tuning knobs.
type Config struct {
	PollInterval    time.Duration
	StaleMultiplier float64

	LandingRadiusNM  float64
	LandingAltFt     int
	LandingSpeedKts  int
	LandingDupWindow time.Duration

	// LandedTimeout completes a landed flight when no disconnect was
	// ever observed.
	LandedTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:     30 * time.Second,
		StaleMultiplier:  2.5,
		LandingRadiusNM:  15.0,
		LandingAltFt:     1000,
		LandingSpeedKts:  20,
		LandingDupWindow: 5 * time.Minute,
		LandedTimeout:    time.Hour,
	}
}

// Sink receives queued writes; implemented by the write batcher.
type Sink interface {
	QueueFlight(store.Flight)
	QueueController(store.Controller)
	QueueTransceivers([]store.TransceiverSample)
	QueueOccupancy(storage.OccupancyRow)
	Flush(context.Context) error
}

// SummaryStore is the synchronous persistence needed at completion.
type SummaryStore interface {
	FlightSamples(ctx context.Context, callsign string, t0, t1 time.Time) ([]store.TransceiverSample, error)
	ATCSamples(ctx context.Context, t0, t1 time.Time) ([]store.TransceiverSample, error)
	ControllerFacilities(ctx context.Context) (map[string]int, error)
	InsertFlightSummary(ctx context.Context, s storage.FlightSummary) error
	HasSummary(ctx context.Context, callsign string, since time.Time) (bool, error)
}

// Archiver moves a completed flight's history to the long-term archive.
// Optional; a nil archiver skips the step.
type Archiver interface {
	ArchiveFlight(ctx context.Context, f *store.Flight, completedAt time.Time) error
	ArchiveTransceivers(ctx context.Context, samples []store.TransceiverSample) error
}

// Events notifies downstream consumers of movements. Optional.
type Events interface {
	FlightLanded(f *store.Flight, at time.Time)
	FlightCompleted(f *store.Flight, summary *storage.FlightSummary)
}

// Journal persists resumable lifecycle state locally. Optional.
// Implementations are best-effort; the engine never blocks on them.
type Journal interface {
	RecordFlight(f *store.Flight)
	RecordOccupancy(callsign string, open *storage.OccupancyRow)
	RemoveFlight(callsign string)
}

// PilotUpdate is one filtered pilot record with its filter decision.
type PilotUpdate struct {
	Pilot     vatsim.Pilot
	Uncertain bool
}

// Engine computes status transitions and sector occupancy per tick.
type Engine struct {
	cfg     Config
	store   *store.Store
	ref     *airspace.Reference
	sink    Sink
	summary SummaryStore
	log     *zap.Logger

	archiver Archiver // optional
	events   Events   // optional
	journal  Journal  // optional

	// Engine-private tracking, only touched from engine methods. The
	// poll, disconnect and timeout entry points serialise on mu.
	mu            chan struct{} // acts as a mutex usable with context
	sectors       map[string]*sectorTrack
	landings      map[string]time.Time // callsign|arrival -> fired at
	presentFlight map[string]struct{}  // callsigns in the latest tick
	ticked        bool                 // at least one snapshot processed

	completions uint64
	landingsCnt uint64
}

// New creates a lifecycle engine.
func New(cfg Config, st *store.Store, ref *airspace.Reference, sink Sink, summary SummaryStore, log *zap.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.StaleMultiplier <= 0 {
		cfg.StaleMultiplier = 2.5
	}
	e := &Engine{
		cfg:           cfg,
		store:         st,
		ref:           ref,
		sink:          sink,
		summary:       summary,
		log:           log,
		mu:            make(chan struct{}, 1),
		sectors:       make(map[string]*sectorTrack),
		landings:      make(map[string]time.Time),
		presentFlight: make(map[string]struct{}),
	}
	return e
}

// SetArchiver attaches the optional long-term archiver.
func (e *Engine) SetArchiver(a Archiver) { e.archiver = a }

// SetEvents attaches the optional movement event publisher.
func (e *Engine) SetEvents(ev Events) { e.events = ev }

// SetJournal attaches the optional local state journal.
func (e *Engine) SetJournal(j Journal) { e.journal = j }

func (e *Engine) lock()   { e.mu <- struct{}{} }
func (e *Engine) unlock() { <-e.mu }

// Tick processes one filtered snapshot: snapshot upserts, stale
// transitions, the landing detector and sector occupancy.
func (e *Engine) Tick(ctx context.Context, pilots []PilotUpdate, controllers []store.Controller, samples []store.TransceiverSample, now time.Time) error {
	e.lock()
	defer e.unlock()

	present := make(map[string]struct{}, len(pilots))

	for i := range pilots {
		pu := &pilots[i]
		present[pu.Pilot.Callsign] = struct{}{}

		f := flightFromPilot(&pu.Pilot)
		f.Uncertain = pu.Uncertain

		tracked, isNew := e.store.UpsertFlight(f, now)
		if isNew {
			e.log.Info("flight first seen",
				zap.String("callsign", tracked.Callsign),
				zap.String("departure", tracked.Departure),
				zap.String("arrival", tracked.Arrival))
		}

		// Reappearance clears staleness. Landed flights stay landed
		// even if they move again (go-around is not a transition).
		e.store.WithFlight(tracked.Callsign, func(f *store.Flight) {
			if f.Status == store.StatusStale {
				f.Status = store.StatusActive
			}
		})
	}
	e.presentFlight = present
	e.ticked = true

	for i := range controllers {
		c := controllers[i]
		_, isNew := e.store.UpsertController(c, now)
		if isNew {
			e.log.Info("controller online",
				zap.String("callsign", c.Callsign),
				zap.String("frequency", c.Frequency))
		}
		e.sink.QueueController(*e.store.Controller(c.Callsign))
	}

	// Transceiver samples: keep those belonging to tracked entities.
	kept := samples[:0]
	for _, s := range samples {
		switch {
		case e.store.Flight(s.Callsign) != nil:
			s.EntityType = store.EntityFlight
		case e.store.Controller(s.Callsign) != nil:
			s.EntityType = store.EntityATC
		default:
			continue
		}
		e.store.AppendSamples(s.Callsign, []store.TransceiverSample{s}, now)
		kept = append(kept, s)
	}
	if len(kept) > 0 {
		e.sink.QueueTransceivers(kept)
	}

	// Stale pass over everything tracked, then detectors.
	staleCutoff := now.Add(-time.Duration(float64(e.cfg.PollInterval) * e.cfg.StaleMultiplier))
	for _, cs := range e.store.FlightKeys() {
		if _, ok := present[cs]; !ok {
			e.store.WithFlight(cs, func(f *store.Flight) {
				if f.Status == store.StatusActive && f.LastSeen.Before(staleCutoff) {
					f.Status = store.StatusStale
				}
			})
		}

		f := e.store.Flight(cs)
		if f == nil {
			continue
		}

		if f.Status == store.StatusActive || f.Status == store.StatusStale {
			e.detectLanding(f, now)
			e.trackSector(f, now)
		}

		// One queued upsert per tracked flight per tick; the batcher
		// coalesces these down to one row write per flush window.
		e.sink.QueueFlight(*e.store.Flight(cs))
		if e.journal != nil {
			e.journal.RecordFlight(e.store.Flight(cs))
		}
	}

	return ctx.Err()
}

// detectLanding applies the landing detector to one active/stale flight.
func (e *Engine) detectLanding(f *store.Flight, now time.Time) {
	if f.Arrival == "" {
		return
	}
	airport := e.ref.Airport(f.Arrival)
	if airport == nil {
		return
	}

	dist := airspace.HaversineNM(f.Latitude, f.Longitude, airport.Latitude, airport.Longitude)
	if dist > e.cfg.LandingRadiusNM {
		return
	}

	// Elevation defaults to zero when the airport is known but its
	// elevation is not.
	elevation := 0.0
	if airport.ElevationKnown {
		elevation = airport.ElevationFt
	}
	if float64(f.Altitude)-elevation > float64(e.cfg.LandingAltFt) {
		return
	}
	if f.Groundspeed > e.cfg.LandingSpeedKts {
		return
	}

	dupKey := f.Callsign + "|" + f.Arrival
	if fired, ok := e.landings[dupKey]; ok && now.Sub(fired) < e.cfg.LandingDupWindow {
		return
	}
	e.landings[dupKey] = now

	e.store.WithFlight(f.Callsign, func(f *store.Flight) {
		f.Status = store.StatusLanded
		f.LandedAt = now.UTC().Truncate(time.Second)
	})
	e.landingsCnt++

	landed := e.store.Flight(f.Callsign)
	e.log.Info("flight landed",
		zap.String("callsign", f.Callsign),
		zap.String("arrival", f.Arrival),
		zap.Float64("distance_nm", dist))
	if e.events != nil {
		e.events.FlightLanded(landed, landed.LandedAt)
	}
}

// DisconnectCheck completes landed flights whose callsign is absent from
// the latest filtered snapshot. Runs on its own cadence.
func (e *Engine) DisconnectCheck(ctx context.Context, now time.Time) error {
	e.lock()
	defer e.unlock()

	// Until a snapshot has been processed the present set is empty and
	// absence cannot be judged. Restored flights wait for the first tick.
	if !e.ticked {
		return nil
	}

	for _, cs := range e.store.FlightKeys() {
		f := e.store.Flight(cs)
		if f == nil || f.Status != store.StatusLanded {
			continue
		}
		if _, online := e.presentFlight[cs]; online {
			continue
		}
		if err := e.complete(ctx, cs, store.DisconnectDetected, now); err != nil {
			return err
		}
	}
	return nil
}

// TimeoutCheck completes flights that have been landed for at least the
// configured timeout without an observed disconnect.
func (e *Engine) TimeoutCheck(ctx context.Context, now time.Time) error {
	e.lock()
	defer e.unlock()

	for _, cs := range e.store.FlightKeys() {
		f := e.store.Flight(cs)
		if f == nil || f.Status != store.StatusLanded {
			continue
		}
		if f.LandedAt.IsZero() || now.Sub(f.LandedAt) < e.cfg.LandedTimeout {
			continue
		}
		if err := e.complete(ctx, cs, store.DisconnectTimeout, now); err != nil {
			return err
		}
	}
	return nil
}

// Reap drops flights and controllers not seen within maxAge, clearing
// the engine-side tracking alongside the store entries. An open
// occupancy row is closed at the flight's last seen position so a later
// reappearance of the same callsign starts fresh instead of closing a
// days-old row. The landing duplicate window is pruned on the same pass.
func (e *Engine) Reap(maxAge time.Duration, now time.Time) (flights, controllers []string) {
	e.lock()
	defer e.unlock()

	cutoff := now.Add(-maxAge)
	for _, cs := range e.store.FlightKeys() {
		f := e.store.Flight(cs)
		if f == nil || !f.LastSeen.Before(cutoff) {
			continue
		}
		e.closeAllSectors(cs, f, f.LastSeen)
		delete(e.sectors, cs)
		if e.journal != nil {
			e.journal.RemoveFlight(cs)
		}
	}

	for key, fired := range e.landings {
		if now.Sub(fired) >= e.cfg.LandingDupWindow {
			delete(e.landings, key)
		}
	}

	return e.store.ReapStale(maxAge, now)
}

// Cancel force-terminates a non-terminal flight without a summary. Open
// occupancy rows are closed so the schema invariant holds.
func (e *Engine) Cancel(ctx context.Context, callsign string, now time.Time) bool {
	e.lock()
	defer e.unlock()

	f := e.store.Flight(callsign)
	if f == nil || f.Status == store.StatusCompleted || f.Status == store.StatusCancelled {
		return false
	}

	e.closeAllSectors(callsign, f, now)
	e.store.WithFlight(callsign, func(f *store.Flight) {
		f.Status = store.StatusCancelled
		f.DisconnectedAt = now.UTC().Truncate(time.Second)
	})
	e.sink.QueueFlight(*e.store.Flight(callsign))
	e.store.RemoveFlight(callsign)
	delete(e.sectors, callsign)
	if e.journal != nil {
		e.journal.RemoveFlight(callsign)
	}
	e.log.Info("flight cancelled", zap.String("callsign", callsign))
	return true
}

// RestoreFlights reseeds lifecycle state from the journal after a
// restart. Terminal rows are skipped.
func (e *Engine) RestoreFlights(flights []store.Flight, now time.Time) {
	e.lock()
	defer e.unlock()

	for i := range flights {
		f := flights[i]
		if f.Status == store.StatusCompleted || f.Status == store.StatusCancelled {
			continue
		}
		e.store.UpsertFlight(f, now)
		e.store.WithFlight(f.Callsign, func(t *store.Flight) {
			t.Status = f.Status
			t.LandedAt = f.LandedAt
			t.DisconnectMethod = f.DisconnectMethod
			t.FirstSeen = f.FirstSeen
			t.LastSeen = f.LastSeen
		})
	}
}

// Stats reports engine counters for the health snapshot.
func (e *Engine) Stats() (landings, completions uint64) {
	e.lock()
	defer e.unlock()
	return e.landingsCnt, e.completions
}

func flightFromPilot(p *vatsim.Pilot) store.Flight {
	f := store.Flight{
		Callsign:       p.Callsign,
		CID:            p.CID,
		Name:           p.Name,
		Server:         p.Server,
		PilotRating:    p.PilotRating,
		MilitaryRating: p.MilitaryRating,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		Altitude:       p.Altitude,
		Groundspeed:    p.Groundspeed,
		Heading:        p.Heading,
		Transponder:    p.Transponder,
		QNHInHg:        p.QNHInHg,
		QNHMb:          p.QNHMb,
		LogonTime:      p.LogonTime,
		LastUpdated:    p.LastUpdated,
	}
	if fp := p.FlightPlan; fp != nil {
		f.FlightRules = fp.FlightRules
		f.Aircraft = fp.Aircraft
		f.AircraftShort = fp.AircraftShort
		f.AircraftFAA = fp.AircraftFAA
		f.Departure = fp.Departure
		f.Arrival = fp.Arrival
		f.Alternate = fp.Alternate
		f.Route = fp.Route
		f.PlannedAltitude = fp.Altitude
		f.CruiseTAS = fp.CruiseTAS
		f.Deptime = fp.Deptime
		f.EnrouteTime = fp.EnrouteTime
		f.FuelTime = fp.FuelTime
		f.Remarks = fp.Remarks
		f.RevisionID = fp.RevisionID
		f.AssignedTransponder = fp.AssignedTransponder
	}
	return f
}

// ControllerFromFeed converts a feed controller record to the tracked
// form. ATIS text lines are joined with newlines.
func ControllerFromFeed(c *vatsim.Controller) store.Controller {
	return store.Controller{
		Callsign:    c.Callsign,
		CID:         c.CID,
		Name:        c.Name,
		Rating:      c.Rating,
		Facility:    c.Facility,
		VisualRange: c.VisualRange,
		TextAtis:    strings.Join(c.TextAtis, "\n"),
		AtisCode:    c.AtisCode,
		Frequency:   c.Frequency,
		Server:      c.Server,
		LogonTime:   c.LogonTime,
		LastUpdated: c.LastUpdated,
	}
}
