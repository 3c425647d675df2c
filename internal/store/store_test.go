package store

import (
	"testing"
	"time"
)

func TestUpsertFlightPreservesLifecycleFields(t *testing.T) {
	s := New(time.Hour)
	now := time.Date(2026, 8, 24, 2, 0, 0, 0, time.UTC)

	f, isNew := s.UpsertFlight(Flight{Callsign: "QFA123", Altitude: 35000}, now)
	if !isNew {
		t.Fatal("first upsert should be new")
	}
	if f.Status != StatusActive {
		t.Fatalf("status = %q, want active", f.Status)
	}
	if !f.FirstSeen.Equal(now) {
		t.Errorf("FirstSeen = %v, want %v", f.FirstSeen, now)
	}

	// Simulate the lifecycle engine marking the flight landed.
	landedAt := now.Add(30 * time.Minute)
	s.WithFlight("QFA123", func(f *Flight) {
		f.Status = StatusLanded
		f.LandedAt = landedAt
	})

	// A later snapshot update must not disturb status or landed time.
	later := now.Add(31 * time.Minute)
	f, isNew = s.UpsertFlight(Flight{Callsign: "QFA123", Altitude: 3000, Groundspeed: 180}, later)
	if isNew {
		t.Fatal("second upsert should not be new")
	}
	if f.Status != StatusLanded {
		t.Errorf("status = %q, want landed after snapshot update", f.Status)
	}
	if !f.LandedAt.Equal(landedAt) {
		t.Errorf("LandedAt = %v, want %v", f.LandedAt, landedAt)
	}
	if f.Altitude != 3000 {
		t.Errorf("altitude = %d, want 3000 (last write wins)", f.Altitude)
	}
	if !f.FirstSeen.Equal(now) {
		t.Errorf("FirstSeen changed on update")
	}
	if !f.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", f.LastSeen, later)
	}
}

func TestUpsertFlightUncertainSticky(t *testing.T) {
	s := New(time.Hour)
	now := time.Now().UTC()

	s.UpsertFlight(Flight{Callsign: "QFA789", Uncertain: true}, now)
	f, _ := s.UpsertFlight(Flight{Callsign: "QFA789"}, now.Add(time.Minute))
	if !f.Uncertain {
		t.Error("uncertain flag should stick across updates")
	}
}

func TestUpsertController(t *testing.T) {
	s := New(time.Hour)
	now := time.Now().UTC()

	c, isNew := s.UpsertController(Controller{Callsign: "SY_APP", Frequency: "124.400"}, now)
	if !isNew || c.Frequency != "124.400" {
		t.Fatalf("unexpected controller %+v new=%v", c, isNew)
	}

	c, isNew = s.UpsertController(Controller{Callsign: "SY_APP", Frequency: "124.400", Rating: 5}, now.Add(time.Minute))
	if isNew {
		t.Error("second upsert should not be new")
	}
	if c.Rating != 5 {
		t.Errorf("rating = %d, want 5", c.Rating)
	}
	if !c.FirstSeen.Equal(now) {
		t.Error("FirstSeen changed on controller update")
	}
}

func TestAppendSamplesWindow(t *testing.T) {
	s := New(10 * time.Minute)
	now := time.Now().UTC()

	old := TransceiverSample{Callsign: "QFA123", Timestamp: now.Add(-20 * time.Minute)}
	recent := TransceiverSample{Callsign: "QFA123", TransceiverID: 1, Timestamp: now.Add(-time.Minute)}
	s.AppendSamples("QFA123", []TransceiverSample{old}, now.Add(-15*time.Minute))
	s.AppendSamples("QFA123", []TransceiverSample{recent}, now)

	got := s.Samples("QFA123")
	if len(got) != 1 {
		t.Fatalf("samples = %d, want 1 (old pruned)", len(got))
	}
	if got[0].TransceiverID != 1 {
		t.Errorf("wrong sample kept: %+v", got[0])
	}
}

func TestKeysAreCopies(t *testing.T) {
	s := New(time.Hour)
	now := time.Now().UTC()
	s.UpsertFlight(Flight{Callsign: "A"}, now)
	s.UpsertFlight(Flight{Callsign: "B"}, now)

	keys := s.FlightKeys()
	if len(keys) != 2 {
		t.Fatalf("keys = %d, want 2", len(keys))
	}
	s.RemoveFlight("A")
	if len(keys) != 2 {
		t.Error("key snapshot must not shrink after removal")
	}
	if s.Flight("A") != nil {
		t.Error("flight A should be removed")
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	s := New(time.Hour)
	now := time.Now().UTC()

	s.UpsertFlight(Flight{Callsign: "QFA123", Altitude: 35000}, now)
	f := s.Flight("QFA123")
	f.Altitude = 0
	f.Status = StatusLanded
	if got := s.Flight("QFA123"); got.Altitude != 35000 || got.Status != StatusActive {
		t.Errorf("stored flight mutated through the returned copy: %+v", got)
	}

	s.UpsertController(Controller{Callsign: "SY_APP", Rating: 5}, now)
	c := s.Controller("SY_APP")
	c.Rating = 0
	if got := s.Controller("SY_APP"); got.Rating != 5 {
		t.Errorf("stored controller mutated through the returned copy: %+v", got)
	}

	// The upsert return is a copy as well.
	merged, _ := s.UpsertFlight(Flight{Callsign: "QFA123", Altitude: 31000}, now.Add(time.Minute))
	merged.Altitude = 0
	if got := s.Flight("QFA123"); got.Altitude != 31000 {
		t.Errorf("stored flight mutated through the upsert return: %+v", got)
	}
}

func TestReapStale(t *testing.T) {
	s := New(time.Hour)
	base := time.Now().UTC().Add(-2 * time.Hour)

	s.UpsertFlight(Flight{Callsign: "OLD"}, base)
	s.UpsertFlight(Flight{Callsign: "NEW"}, time.Now().UTC())
	s.UpsertController(Controller{Callsign: "OLD_CTR"}, base)

	flights, controllers := s.ReapStale(time.Hour, time.Now().UTC())
	if len(flights) != 1 || flights[0] != "OLD" {
		t.Errorf("reaped flights = %v, want [OLD]", flights)
	}
	if len(controllers) != 1 || controllers[0] != "OLD_CTR" {
		t.Errorf("reaped controllers = %v, want [OLD_CTR]", controllers)
	}
	if s.Flight("NEW") == nil {
		t.Error("NEW should survive the reap")
	}
}
