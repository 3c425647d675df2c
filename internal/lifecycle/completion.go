package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vatwatch/internal/coverage"
	"vatwatch/internal/storage"
	"vatwatch/internal/store"
)

// complete runs the completion pipeline for one landed flight: close
// occupancy, flush pending writes, correlate coverage, write the
// summary, then flip the status and drop the flight from memory.
//
// The status write happens last. If any earlier step fails the flight
// stays landed and the next disconnect or timeout pass retries. Caller
// holds the engine lock.
func (e *Engine) complete(ctx context.Context, callsign string, method store.DisconnectMethod, now time.Time) error {
	f := e.store.Flight(callsign)
	if f == nil {
		return nil
	}

	e.closeAllSectors(callsign, f, now)
	if err := e.sink.Flush(ctx); err != nil {
		return fmt.Errorf("flush before completion: %w", err)
	}

	t0 := f.LogonTime
	if t0.IsZero() {
		t0 = f.FirstSeen
	}
	t1 := now.UTC().Truncate(time.Second)

	summary, err := e.buildSummary(ctx, f, method, t0, t1)
	if err != nil {
		return fmt.Errorf("build summary for %s: %w", callsign, err)
	}

	// A retried completion must not write the rollup twice.
	exists, err := e.summary.HasSummary(ctx, callsign, t0)
	if err != nil {
		return fmt.Errorf("check summary for %s: %w", callsign, err)
	}
	if !exists {
		if err := e.summary.InsertFlightSummary(ctx, *summary); err != nil {
			return fmt.Errorf("insert summary for %s: %w", callsign, err)
		}
	}

	e.store.WithFlight(callsign, func(f *store.Flight) {
		f.Status = store.StatusCompleted
		f.DisconnectedAt = t1
		f.DisconnectMethod = method
	})
	done := e.store.Flight(callsign)
	e.sink.QueueFlight(*done)

	// Push the terminal row out straight away; left to the interval
	// flush, a crash in the window leaves the stored row landed while
	// its summary already exists. The row stays queued on failure.
	if err := e.sink.Flush(ctx); err != nil {
		e.log.Warn("post-completion flush failed",
			zap.String("callsign", callsign), zap.Error(err))
	}

	if e.archiver != nil {
		if err := e.archiver.ArchiveFlight(ctx, done, t1); err != nil {
			e.log.Warn("flight archive failed", zap.String("callsign", callsign), zap.Error(err))
		}
		if samples := e.store.Samples(callsign); len(samples) > 0 {
			if err := e.archiver.ArchiveTransceivers(ctx, samples); err != nil {
				e.log.Warn("transceiver archive failed", zap.String("callsign", callsign), zap.Error(err))
			}
		}
	}
	if e.events != nil {
		e.events.FlightCompleted(done, summary)
	}

	e.store.RemoveFlight(callsign)
	delete(e.sectors, callsign)
	if e.journal != nil {
		e.journal.RemoveFlight(callsign)
	}
	e.completions++

	e.log.Info("flight completed",
		zap.String("callsign", callsign),
		zap.String("method", string(method)),
		zap.Int("coverage_pct", summary.ControllerTimePercentage),
		zap.Int("enroute_sectors", summary.TotalEnrouteSectors))
	return nil
}

// buildSummary correlates ATC coverage over the flight's lifetime and
// rolls up its sector history into the completion summary.
func (e *Engine) buildSummary(ctx context.Context, f *store.Flight, method store.DisconnectMethod, t0, t1 time.Time) (*storage.FlightSummary, error) {
	flightSamples, err := e.summary.FlightSamples(ctx, f.Callsign, t0, t1)
	if err != nil {
		return nil, fmt.Errorf("flight samples: %w", err)
	}
	atcSamples, err := e.summary.ATCSamples(ctx, t0, t1)
	if err != nil {
		return nil, fmt.Errorf("atc samples: %w", err)
	}
	facilities, err := e.summary.ControllerFacilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("controller facilities: %w", err)
	}

	cov := coverage.Compute(flightSamples, atcSamples, facilities, coverage.DefaultOptions())

	classCounts := make(map[string]int, len(cov.ByClass))
	for class, n := range cov.ByClass {
		classCounts[string(class)] = n
	}

	breakdown := make(map[string]int)
	primary, primarySeconds, totalSeconds := "", 0, 0
	if tr := e.sectors[f.Callsign]; tr != nil {
		for i := range tr.closed {
			row := &tr.closed[i]
			secs := row.DurationSeconds()
			breakdown[row.SectorName] += secs
			totalSeconds += secs
		}
		for name, secs := range breakdown {
			if secs > primarySeconds || (secs == primarySeconds && primary != "" && name < primary) {
				primary, primarySeconds = name, secs
			}
		}
	}

	return &storage.FlightSummary{
		Callsign:        f.Callsign,
		CID:             f.CID,
		Departure:       f.Departure,
		Arrival:         f.Arrival,
		Alternate:       f.Alternate,
		AircraftShort:   f.AircraftShort,
		FlightRules:     f.FlightRules,
		Route:           f.Route,
		PlannedAltitude: f.PlannedAltitude,

		ControllerCallsigns:      cov.ControllerCallsigns,
		ControllerTimePercentage: cov.Percentage,
		ControllerClassCounts:    classCounts,
		TimeOnlineMinutes:        int(t1.Sub(t0) / time.Minute),

		PrimaryEnrouteSector:    primary,
		TotalEnrouteSectors:     len(breakdown),
		TotalEnrouteTimeMinutes: totalSeconds / 60,
		SectorBreakdown:         breakdown,

		DisconnectMethod: string(method),
		CompletedAt:      t1,
	}, nil
}
