// Package filter decides which feed entities belong to the region of
// interest. Controllers pass by callsign-set membership; flights pass by
// airport prefix, then geographic boundary, with a conservative include
// when neither test can resolve.
package filter

import (
	"strings"

	"vatwatch/internal/airspace"
	"vatwatch/internal/vatsim"
)

// Decision classifies one flight filter outcome.
type Decision int

const (
	// Excluded means the flight is outside the region and is dropped.
	Excluded Decision = iota
	// Included means a test positively placed the flight in the region.
	Included
	// Uncertain means no test could resolve; the flight is kept so that
	// in-transit flights with incomplete data are not dropped silently.
	Uncertain
)

// Counts accumulates filter statistics for one snapshot.
type Counts struct {
	TotalProcessed int
	Included       int
	Excluded       int
	Uncertain      int
}

// Config controls filter behaviour.
type Config struct {
	// ControllerFilterEnabled gates the callsign-set test. When false
	// every controller passes.
	ControllerFilterEnabled bool
}

// DefaultConfig enables all filters.
func DefaultConfig() Config {
	return Config{ControllerFilterEnabled: true}
}

// Pipeline applies the regional filters using the airspace reference.
type Pipeline struct {
	cfg Config
	ref *airspace.Reference
}

// New builds a filter pipeline over the given reference data.
func New(ref *airspace.Reference, cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, ref: ref}
}

// Controller reports whether the controller should be kept.
func (p *Pipeline) Controller(c *vatsim.Controller) bool {
	if !p.cfg.ControllerFilterEnabled {
		return true
	}
	return p.ref.IsValidController(c.Callsign)
}

// Controllers filters a controller list in place, returning kept records
// and the number excluded.
func (p *Pipeline) Controllers(ctrls []vatsim.Controller) (kept []vatsim.Controller, excluded int) {
	kept = ctrls[:0]
	for i := range ctrls {
		if p.Controller(&ctrls[i]) {
			kept = append(kept, ctrls[i])
		} else {
			excluded++
		}
	}
	return kept, excluded
}

// ATIS reports whether an ATIS station should be kept. ATIS callsigns
// are airport-derived (YSSY_ATIS) rather than position-derived, so the
// airport token decides instead of the callsign set.
func (p *Pipeline) ATIS(c *vatsim.Controller) bool {
	station := c.Callsign
	if i := strings.Index(station, "_"); i > 0 {
		station = station[:i]
	}
	return p.ref.IsRegionalAirport(station)
}

// Flight classifies one pilot record. The tests run in order and the
// first resolving test wins:
//
//  1. airport prefix on departure or arrival ICAO,
//  2. position inside the region boundary,
//  3. conservative include when both were unresolvable.
//
// All tests are pure; malformed coordinates count as missing.
func (p *Pipeline) Flight(pilot *vatsim.Pilot) Decision {
	dep, arr := "", ""
	if pilot.FlightPlan != nil {
		dep = pilot.FlightPlan.Departure
		arr = pilot.FlightPlan.Arrival
	}

	if dep != "" || arr != "" {
		if p.ref.IsRegionalAirport(dep) || p.ref.IsRegionalAirport(arr) {
			return Included
		}
		return Excluded
	}

	if validCoordinates(pilot.Latitude, pilot.Longitude) {
		if p.ref.PointInBoundary(pilot.Latitude, pilot.Longitude) {
			return Included
		}
		return Excluded
	}

	// Both airport fields missing and no usable position.
	return Uncertain
}

// Flights filters a pilot list, returning kept records (included plus
// uncertain) and the counts for the snapshot.
func (p *Pipeline) Flights(pilots []vatsim.Pilot) ([]vatsim.Pilot, Counts) {
	var counts Counts
	kept := pilots[:0]
	for i := range pilots {
		counts.TotalProcessed++
		switch p.Flight(&pilots[i]) {
		case Included:
			counts.Included++
			kept = append(kept, pilots[i])
		case Uncertain:
			counts.Uncertain++
			kept = append(kept, pilots[i])
		default:
			counts.Excluded++
		}
	}
	return kept, counts
}

// validCoordinates rejects out-of-range and the (0,0) null-island default
// the feed emits for prefiles without a position.
func validCoordinates(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
