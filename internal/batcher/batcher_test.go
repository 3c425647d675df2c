package batcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"vatwatch/internal/storage"
	"vatwatch/internal/store"
)

type mockWriter struct {
	flights     [][]store.Flight
	controllers [][]store.Controller
	samples     [][]store.TransceiverSample
	occupancy   [][]storage.OccupancyRow

	failFlights int // fail this many flight writes, then succeed
}

func (m *mockWriter) BulkUpsertFlights(_ context.Context, rows []store.Flight) error {
	if m.failFlights > 0 {
		m.failFlights--
		return errors.New("connection reset")
	}
	m.flights = append(m.flights, rows)
	return nil
}

func (m *mockWriter) BulkUpsertControllers(_ context.Context, rows []store.Controller) error {
	m.controllers = append(m.controllers, rows)
	return nil
}

func (m *mockWriter) InsertTransceivers(_ context.Context, rows []store.TransceiverSample) error {
	m.samples = append(m.samples, rows)
	return nil
}

func (m *mockWriter) BulkUpsertOccupancy(_ context.Context, rows []storage.OccupancyRow) error {
	m.occupancy = append(m.occupancy, rows)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBase = time.Millisecond
	return cfg
}

func TestFlightUpsertsCoalesce(t *testing.T) {
	w := &mockWriter{}
	b := New(testConfig(), w, zap.NewNop())

	for i := 0; i < 10; i++ {
		b.QueueFlight(store.Flight{Callsign: "QFA123", Altitude: 30000 + i*100})
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if len(w.flights) != 1 || len(w.flights[0]) != 1 {
		t.Fatalf("writes = %v, want one batch of one row", w.flights)
	}
	if w.flights[0][0].Altitude != 30900 {
		t.Errorf("altitude = %d, want the last queued value 30900", w.flights[0][0].Altitude)
	}
}

func TestSamplesNeverCoalesce(t *testing.T) {
	w := &mockWriter{}
	b := New(testConfig(), w, zap.NewNop())

	now := time.Now()
	for i := 0; i < 3; i++ {
		b.QueueTransceivers([]store.TransceiverSample{
			{Callsign: "QFA123", Timestamp: now.Add(time.Duration(i) * time.Minute)},
		})
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(w.samples) != 1 || len(w.samples[0]) != 3 {
		t.Fatalf("samples = %v, want one batch of three rows", w.samples)
	}
}

func TestOccupancyOpenCloseCoalesce(t *testing.T) {
	w := &mockWriter{}
	b := New(testConfig(), w, zap.NewNop())

	entry := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	open := storage.OccupancyRow{
		Callsign: "QFA123", SectorName: "ARL", EntryTimestamp: entry,
	}
	closed := open
	closed.ExitTimestamp = entry.Add(20 * time.Minute)

	b.QueueOccupancy(open)
	b.QueueOccupancy(closed)
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if len(w.occupancy) != 1 || len(w.occupancy[0]) != 1 {
		t.Fatalf("occupancy writes = %v, want one batch of one row", w.occupancy)
	}
	if w.occupancy[0][0].ExitTimestamp.IsZero() {
		t.Error("closed form must win over the open form")
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	w := &mockWriter{}
	b := New(testConfig(), w, zap.NewNop())
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(w.flights)+len(w.controllers)+len(w.samples)+len(w.occupancy) != 0 {
		t.Error("empty flush must not write")
	}
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	w := &mockWriter{failFlights: 2}
	b := New(testConfig(), w, zap.NewNop())

	b.QueueFlight(store.Flight{Callsign: "QFA123"})
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush should succeed on the third attempt: %v", err)
	}
	if len(w.flights) != 1 {
		t.Errorf("flight writes = %d, want 1", len(w.flights))
	}
}

func TestFailedBatchIsRetained(t *testing.T) {
	w := &mockWriter{failFlights: 10}
	b := New(testConfig(), w, zap.NewNop())

	b.QueueFlight(store.Flight{Callsign: "QFA123", Altitude: 1000})
	if err := b.Flush(context.Background()); err == nil {
		t.Fatal("flush should fail when every attempt fails")
	}
	if b.Pending() != 1 {
		t.Fatalf("pending = %d, want the failed row retained", b.Pending())
	}

	// A write queued after the failure wins over the retained one.
	b.QueueFlight(store.Flight{Callsign: "QFA123", Altitude: 2000})
	w.failFlights = 0
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := w.flights[len(w.flights)-1][0].Altitude; got != 2000 {
		t.Errorf("altitude = %d, want the newer queued value 2000", got)
	}
}

func TestThresholdKick(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 5
	b := New(cfg, &mockWriter{}, zap.NewNop())

	for i := 0; i < 5; i++ {
		b.QueueTransceivers([]store.TransceiverSample{{Callsign: "QFA123", TransceiverID: i}})
	}

	select {
	case <-b.kick:
	default:
		t.Error("reaching the threshold must request a flush")
	}
}
