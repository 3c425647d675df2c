// Package batcher accumulates pending database writes between flushes.
// Repeat writes for the same row coalesce in memory (last write wins),
// so a flight updated on every poll costs one database write per flush
// window. Transceiver samples are history and never coalesce.
package batcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"vatwatch/internal/storage"
	"vatwatch/internal/store"
)

// Writer is the flush target, implemented by the Postgres layer.
type Writer interface {
	BulkUpsertFlights(ctx context.Context, flights []store.Flight) error
	BulkUpsertControllers(ctx context.Context, ctrls []store.Controller) error
	InsertTransceivers(ctx context.Context, samples []store.TransceiverSample) error
	BulkUpsertOccupancy(ctx context.Context, rows []storage.OccupancyRow) error
}

// Config tunes the flush triggers and the retry policy.
type Config struct {
	// BatchThreshold forces a flush when the total pending count
	// reaches it, independent of the timer.
	BatchThreshold int

	// FlushInterval is the timed flush cadence.
	FlushInterval time.Duration

	MaxRetries int
	RetryBase  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchThreshold: 10000,
		FlushInterval:  5 * time.Minute,
		MaxRetries:     3,
		RetryBase:      time.Second,
	}
}

// Batcher holds the pending write sets. Queue methods are cheap and
// safe from any worker; Flush drains everything in one pass.
type Batcher struct {
	cfg    Config
	writer Writer
	log    *zap.Logger

	mu          sync.Mutex
	flights     map[string]store.Flight
	controllers map[string]store.Controller
	occupancy   map[occupancyKey]storage.OccupancyRow
	samples     []store.TransceiverSample

	kick chan struct{}

	flushes      uint64
	flushErrors  uint64
	lastFlush    time.Time
	lastFlushDur time.Duration
}

type occupancyKey struct {
	callsign string
	sector   string
	entry    int64 // unix seconds
}

// New creates an empty batcher writing through w.
func New(cfg Config, w Writer, log *zap.Logger) *Batcher {
	if cfg.BatchThreshold <= 0 {
		cfg.BatchThreshold = 10000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &Batcher{
		cfg:         cfg,
		writer:      w,
		log:         log,
		flights:     make(map[string]store.Flight),
		controllers: make(map[string]store.Controller),
		occupancy:   make(map[occupancyKey]storage.OccupancyRow),
		kick:        make(chan struct{}, 1),
	}
}

// QueueFlight coalesces a flight row write on its callsign.
func (b *Batcher) QueueFlight(f store.Flight) {
	b.mu.Lock()
	b.flights[f.Callsign] = f
	over := b.pendingLocked() >= b.cfg.BatchThreshold
	b.mu.Unlock()
	if over {
		b.Kick()
	}
}

// QueueController coalesces a controller row write on its callsign.
func (b *Batcher) QueueController(c store.Controller) {
	b.mu.Lock()
	b.controllers[c.Callsign] = c
	over := b.pendingLocked() >= b.cfg.BatchThreshold
	b.mu.Unlock()
	if over {
		b.Kick()
	}
}

// QueueTransceivers appends history samples. Never coalesced.
func (b *Batcher) QueueTransceivers(samples []store.TransceiverSample) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, samples...)
	over := b.pendingLocked() >= b.cfg.BatchThreshold
	b.mu.Unlock()
	if over {
		b.Kick()
	}
}

// QueueOccupancy coalesces an occupancy row on its natural key. An open
// followed by its close inside one flush window collapses to the closed
// form, and the database sees a single insert.
func (b *Batcher) QueueOccupancy(row storage.OccupancyRow) {
	key := occupancyKey{row.Callsign, row.SectorName, row.EntryTimestamp.Unix()}
	b.mu.Lock()
	b.occupancy[key] = row
	over := b.pendingLocked() >= b.cfg.BatchThreshold
	b.mu.Unlock()
	if over {
		b.Kick()
	}
}

func (b *Batcher) pendingLocked() int {
	return len(b.flights) + len(b.controllers) + len(b.occupancy) + len(b.samples)
}

// Pending returns the total queued write count.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingLocked()
}

// Stats reports flush counters for the health snapshot.
func (b *Batcher) Stats() (flushes, errors uint64, last time.Time, lastDur time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushes, b.flushErrors, b.lastFlush, b.lastFlushDur
}

// Kick requests an out-of-band flush from the Run loop.
func (b *Batcher) Kick() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Run flushes on the configured interval, on Kick, and once more on
// shutdown so queued writes survive a clean exit.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutdown flush runs on a fresh context; the loop's own
			// context is already cancelled.
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := b.Flush(flushCtx); err != nil {
				b.log.Error("shutdown flush failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				b.log.Error("timed flush failed", zap.Error(err))
			}
		case <-b.kick:
			if err := b.Flush(ctx); err != nil {
				b.log.Error("threshold flush failed", zap.Error(err))
			}
		}
	}
}

// Flush drains the pending sets and writes them through, one table at a
// time with retry. A table that still fails after retries has its rows
// merged back into the pending set, newer queued writes winning, and
// the error is returned so the caller can decide whether to abort.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	flights := b.flights
	controllers := b.controllers
	occupancy := b.occupancy
	samples := b.samples
	b.flights = make(map[string]store.Flight)
	b.controllers = make(map[string]store.Controller)
	b.occupancy = make(map[occupancyKey]storage.OccupancyRow)
	b.samples = nil
	b.mu.Unlock()

	if len(flights)+len(controllers)+len(occupancy)+len(samples) == 0 {
		return nil
	}

	start := time.Now()
	var firstErr error

	if len(controllers) > 0 {
		rows := make([]store.Controller, 0, len(controllers))
		for _, c := range controllers {
			rows = append(rows, c)
		}
		if err := b.withRetry(ctx, "controllers", func() error {
			return b.writer.BulkUpsertControllers(ctx, rows)
		}); err != nil {
			firstErr = err
			b.requeueControllers(controllers)
		}
	}

	if len(flights) > 0 {
		rows := make([]store.Flight, 0, len(flights))
		for _, f := range flights {
			rows = append(rows, f)
		}
		if err := b.withRetry(ctx, "flights", func() error {
			return b.writer.BulkUpsertFlights(ctx, rows)
		}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			b.requeueFlights(flights)
		}
	}

	if len(samples) > 0 {
		if err := b.withRetry(ctx, "transceivers", func() error {
			return b.writer.InsertTransceivers(ctx, samples)
		}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			b.mu.Lock()
			b.samples = append(samples, b.samples...)
			b.mu.Unlock()
		}
	}

	if len(occupancy) > 0 {
		rows := make([]storage.OccupancyRow, 0, len(occupancy))
		for _, r := range occupancy {
			rows = append(rows, r)
		}
		if err := b.withRetry(ctx, "occupancy", func() error {
			return b.writer.BulkUpsertOccupancy(ctx, rows)
		}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			b.requeueOccupancy(occupancy)
		}
	}

	b.mu.Lock()
	b.flushes++
	if firstErr != nil {
		b.flushErrors++
	}
	b.lastFlush = start
	b.lastFlushDur = time.Since(start)
	b.mu.Unlock()

	if firstErr == nil {
		b.log.Debug("flush complete",
			zap.Int("flights", len(flights)),
			zap.Int("controllers", len(controllers)),
			zap.Int("samples", len(samples)),
			zap.Int("occupancy", len(occupancy)),
			zap.Duration("took", time.Since(start)))
	}
	return firstErr
}

// withRetry runs fn up to MaxRetries times with exponential backoff.
func (b *Batcher) withRetry(ctx context.Context, table string, fn func() error) error {
	var err error
	delay := b.cfg.RetryBase
	for attempt := 1; attempt <= b.cfg.MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		b.log.Warn("batch write failed",
			zap.String("table", table),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == b.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// requeue helpers merge a failed snapshot back under anything queued
// since the flush started; the newer write wins.

func (b *Batcher) requeueFlights(old map[string]store.Flight) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for cs, f := range old {
		if _, ok := b.flights[cs]; !ok {
			b.flights[cs] = f
		}
	}
}

func (b *Batcher) requeueControllers(old map[string]store.Controller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for cs, c := range old {
		if _, ok := b.controllers[cs]; !ok {
			b.controllers[cs] = c
		}
	}
}

func (b *Batcher) requeueOccupancy(old map[occupancyKey]storage.OccupancyRow) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, r := range old {
		if _, ok := b.occupancy[k]; !ok {
			b.occupancy[k] = r
		}
	}
}
