// Package coverage computes how much of a flight's lifetime was spent
// inside ATC coverage, by correlating the flight's transceiver samples
// against controller transceiver samples.
package coverage

import (
	"math"
	"sort"
	"strings"
	"time"

	"vatwatch/internal/store"
	"vatwatch/internal/vatsim"
)

// Options tunes the correlation.
type Options struct {
	// MaxTimeDelta is the largest sample time difference that still
	// counts as concurrent.
	MaxTimeDelta time.Duration

	// MaxDistance is the largest planar distance between samples, in
	// raw coordinate-degree units. This is deliberately not nautical
	// miles: the upstream data uses the same proxy and the threshold is
	// calibrated against it.
	MaxDistance float64
}

// DefaultOptions returns the calibrated defaults.
func DefaultOptions() Options {
	return Options{
		MaxTimeDelta: 180 * time.Second,
		MaxDistance:  300,
	}
}

// Result is the outcome of one coverage computation.
type Result struct {
	TotalSamples   int
	CoveredSamples int

	// Percentage is covered/total as an integer percent, rounded
	// half-even. Zero when there are no samples.
	Percentage int

	// ControllerCallsigns is the sorted set of distinct controllers
	// observed covering the flight.
	ControllerCallsigns []string

	// ByClass counts covering controllers per position class.
	ByClass map[Class]int
}

// Compute correlates flight samples against controller samples.
// Controllers whose facility is observer are ignored. facilities maps
// controller callsign to facility type; unknown callsigns are assumed
// non-observer.
func Compute(flightSamples, atcSamples []store.TransceiverSample, facilities map[string]int, opts Options) Result {
	res := Result{
		TotalSamples: len(flightSamples),
		ByClass:      make(map[Class]int),
	}
	if len(flightSamples) == 0 {
		return res
	}

	// Controller samples grouped by frequency for cheap candidate lookup.
	byFreq := make(map[int64][]store.TransceiverSample)
	for _, s := range atcSamples {
		if fac, ok := facilities[s.Callsign]; ok && fac == vatsim.FacilityObserver {
			continue
		}
		byFreq[s.FrequencyHz] = append(byFreq[s.FrequencyHz], s)
	}

	seen := make(map[string]struct{})
	for _, fs := range flightSamples {
		covered := false
		for _, cs := range byFreq[fs.FrequencyHz] {
			dt := fs.Timestamp.Sub(cs.Timestamp)
			if dt < 0 {
				dt = -dt
			}
			if dt > opts.MaxTimeDelta {
				continue
			}
			if coordDistance(fs.Latitude, fs.Longitude, cs.Latitude, cs.Longitude) > opts.MaxDistance {
				continue
			}
			covered = true
			if _, ok := seen[cs.Callsign]; !ok {
				seen[cs.Callsign] = struct{}{}
				res.ByClass[ClassifyCallsign(cs.Callsign)]++
			}
		}
		if covered {
			res.CoveredSamples++
		}
	}

	res.Percentage = int(math.RoundToEven(float64(res.CoveredSamples) / float64(res.TotalSamples) * 100))

	res.ControllerCallsigns = make([]string, 0, len(seen))
	for cs := range seen {
		res.ControllerCallsigns = append(res.ControllerCallsigns, cs)
	}
	sort.Strings(res.ControllerCallsigns)

	return res
}

func coordDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := lat2 - lat1
	dlon := lon2 - lon1
	return math.Sqrt(dlat*dlat + dlon*dlon)
}

// Class is a controller position class derived from the callsign suffix.
type Class string

const (
	ClassFSS   Class = "FSS"
	ClassCTR   Class = "CTR"
	ClassAPP   Class = "APP"
	ClassTWR   Class = "TWR"
	ClassGND   Class = "GND"
	ClassDEL   Class = "DEL"
	ClassOther Class = "OTHER"
)

// ClassifyCallsign maps a controller callsign to its position class by
// its suffix (the token after the last underscore).
func ClassifyCallsign(callsign string) Class {
	idx := strings.LastIndex(callsign, "_")
	if idx < 0 || idx == len(callsign)-1 {
		return ClassOther
	}
	switch strings.ToUpper(callsign[idx+1:]) {
	case "FSS":
		return ClassFSS
	case "CTR":
		return ClassCTR
	case "APP", "DEP":
		return ClassAPP
	case "TWR":
		return ClassTWR
	case "GND":
		return ClassGND
	case "DEL":
		return ClassDEL
	default:
		return ClassOther
	}
}
