package store

import (
	"sync"
	"time"
)

// Store holds the mutable in-memory maps shared between the tick workers.
// One RWMutex guards each map; writers serialise, readers copy the key set
// and release the lock before doing any real work.
type Store struct {
	flightsMu sync.RWMutex
	flights   map[string]*Flight

	controllersMu sync.RWMutex
	controllers   map[string]*Controller

	samplesMu sync.RWMutex
	samples   map[string][]TransceiverSample

	// sampleWindow bounds how long transceiver samples stay in memory.
	sampleWindow time.Duration
}

// New creates an empty store. Window bounds the per-callsign transceiver
// history kept in memory.
func New(sampleWindow time.Duration) *Store {
	if sampleWindow <= 0 {
		sampleWindow = time.Hour
	}
	return &Store{
		flights:      make(map[string]*Flight),
		controllers:  make(map[string]*Controller),
		samples:      make(map[string][]TransceiverSample),
		sampleWindow: sampleWindow,
	}
}

// UpsertFlight merges a snapshot update for a callsign. Status and
// lifecycle fields are never touched here; they belong to the lifecycle
// engine. Returns a copy of the merged flight and whether it is new.
func (s *Store) UpsertFlight(update Flight, now time.Time) (*Flight, bool) {
	s.flightsMu.Lock()
	defer s.flightsMu.Unlock()

	f, ok := s.flights[update.Callsign]
	if !ok {
		f = &Flight{
			Callsign:  update.Callsign,
			Status:    StatusActive,
			FirstSeen: now,
		}
		s.flights[update.Callsign] = f
	}

	status, landedAt := f.Status, f.LandedAt
	discAt, discMethod := f.DisconnectedAt, f.DisconnectMethod
	firstSeen := f.FirstSeen
	uncertain := f.Uncertain || update.Uncertain

	*f = update
	f.Status = status
	f.LandedAt = landedAt
	f.DisconnectedAt = discAt
	f.DisconnectMethod = discMethod
	f.FirstSeen = firstSeen
	f.Uncertain = uncertain
	f.LastSeen = now
	f.LastUpdatedLocal = now

	cp := *f
	return &cp, !ok
}

// UpsertController merges a snapshot update for a controller callsign.
func (s *Store) UpsertController(update Controller, now time.Time) (*Controller, bool) {
	s.controllersMu.Lock()
	defer s.controllersMu.Unlock()

	c, ok := s.controllers[update.Callsign]
	if !ok {
		c = &Controller{
			Callsign:  update.Callsign,
			FirstSeen: now,
		}
		s.controllers[update.Callsign] = c
	}

	firstSeen := c.FirstSeen
	*c = update
	c.FirstSeen = firstSeen
	c.LastSeen = now

	cp := *c
	return &cp, !ok
}

// AppendSamples adds transceiver samples for a callsign, pruning anything
// older than the sample window.
func (s *Store) AppendSamples(callsign string, samples []TransceiverSample, now time.Time) {
	if len(samples) == 0 {
		return
	}
	s.samplesMu.Lock()
	defer s.samplesMu.Unlock()

	window := append(s.samples[callsign], samples...)
	cutoff := now.Add(-s.sampleWindow)
	for len(window) > 0 && window[0].Timestamp.Before(cutoff) {
		window = window[1:]
	}
	s.samples[callsign] = window
}

// Samples returns a copy of the in-memory samples for a callsign.
func (s *Store) Samples(callsign string) []TransceiverSample {
	s.samplesMu.RLock()
	defer s.samplesMu.RUnlock()

	window := s.samples[callsign]
	out := make([]TransceiverSample, len(window))
	copy(out, window)
	return out
}

// Flight returns a copy of the tracked flight for a callsign, or nil.
// Mutations go through UpsertFlight or WithFlight; handing out interior
// pointers would let callers write outside the lock.
func (s *Store) Flight(callsign string) *Flight {
	s.flightsMu.RLock()
	defer s.flightsMu.RUnlock()

	f, ok := s.flights[callsign]
	if !ok {
		return nil
	}
	cp := *f
	return &cp
}

// Controller returns a copy of the tracked controller for a callsign,
// or nil.
func (s *Store) Controller(callsign string) *Controller {
	s.controllersMu.RLock()
	defer s.controllersMu.RUnlock()

	c, ok := s.controllers[callsign]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// FlightKeys returns a point-in-time copy of the flight callsigns.
func (s *Store) FlightKeys() []string {
	s.flightsMu.RLock()
	defer s.flightsMu.RUnlock()

	keys := make([]string, 0, len(s.flights))
	for k := range s.flights {
		keys = append(keys, k)
	}
	return keys
}

// ControllerKeys returns a point-in-time copy of the controller callsigns.
func (s *Store) ControllerKeys() []string {
	s.controllersMu.RLock()
	defer s.controllersMu.RUnlock()

	keys := make([]string, 0, len(s.controllers))
	for k := range s.controllers {
		keys = append(keys, k)
	}
	return keys
}

// WithFlight runs fn with the flight for callsign held under the write
// lock. Status transitions go through here so that no two workers decide
// a transition for the same flight concurrently. fn is not called when
// the callsign is unknown.
func (s *Store) WithFlight(callsign string, fn func(*Flight)) bool {
	s.flightsMu.Lock()
	defer s.flightsMu.Unlock()

	f, ok := s.flights[callsign]
	if !ok {
		return false
	}
	fn(f)
	return true
}

// RemoveFlight drops a flight and its transceiver window from memory.
func (s *Store) RemoveFlight(callsign string) {
	s.flightsMu.Lock()
	delete(s.flights, callsign)
	s.flightsMu.Unlock()

	s.samplesMu.Lock()
	delete(s.samples, callsign)
	s.samplesMu.Unlock()
}

// RemoveController drops a controller from memory.
func (s *Store) RemoveController(callsign string) {
	s.controllersMu.Lock()
	delete(s.controllers, callsign)
	s.controllersMu.Unlock()
}

// ReapStale removes entries not seen for longer than maxAge, returning
// the removed callsigns. Completed and cancelled flights are reaped by
// the completion pipeline instead, but a terminal flight that somehow
// lingered is removed here too.
func (s *Store) ReapStale(maxAge time.Duration, now time.Time) (flights, controllers []string) {
	cutoff := now.Add(-maxAge)

	s.flightsMu.Lock()
	for cs, f := range s.flights {
		if f.LastSeen.Before(cutoff) {
			delete(s.flights, cs)
			flights = append(flights, cs)
		}
	}
	s.flightsMu.Unlock()

	s.samplesMu.Lock()
	for _, cs := range flights {
		delete(s.samples, cs)
	}
	s.samplesMu.Unlock()

	s.controllersMu.Lock()
	for cs, c := range s.controllers {
		if c.LastSeen.Before(cutoff) {
			delete(s.controllers, cs)
			controllers = append(controllers, cs)
		}
	}
	s.controllersMu.Unlock()

	return flights, controllers
}

// Counts returns the current map sizes for the health snapshot.
func (s *Store) Counts() (flights, controllers, sampleCallsigns int) {
	s.flightsMu.RLock()
	flights = len(s.flights)
	s.flightsMu.RUnlock()

	s.controllersMu.RLock()
	controllers = len(s.controllers)
	s.controllersMu.RUnlock()

	s.samplesMu.RLock()
	sampleCallsigns = len(s.samples)
	s.samplesMu.RUnlock()

	return flights, controllers, sampleCallsigns
}
