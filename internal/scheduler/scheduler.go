// Package scheduler runs the periodic workers: feed polling, the
// disconnect and timeout sweeps, the write batcher and the hourly
// maintenance pass. The feed fetch sits behind a circuit breaker so a
// broken upstream backs off instead of hammering.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"vatwatch/internal/batcher"
	"vatwatch/internal/filter"
	"vatwatch/internal/lifecycle"
	"vatwatch/internal/state"
	"vatwatch/internal/storage"
	"vatwatch/internal/store"
	"vatwatch/internal/vatsim"
)

// Config tunes the worker cadences and retention windows.
type Config struct {
	PollInterval       time.Duration
	DisconnectInterval time.Duration
	CleanupInterval    time.Duration

	// SampleRetention bounds how long transceiver rows stay in the
	// state database before archival or deletion.
	SampleRetention time.Duration

	// ReapAge removes flights and controllers not seen for this long.
	// Must exceed the landed timeout so completion wins the race.
	ReapAge time.Duration

	// ControllerArchiveAge moves offline controllers to the archive
	// table.
	ControllerArchiveAge time.Duration

	// MemoryCapMB is the soft ceiling the health snapshot reports
	// heap usage against.
	MemoryCapMB int
}

// DefaultConfig returns the production cadences.
func DefaultConfig() Config {
	return Config{
		PollInterval:         30 * time.Second,
		DisconnectInterval:   30 * time.Second,
		CleanupInterval:      time.Hour,
		SampleRetention:      24 * time.Hour,
		ReapAge:              3 * time.Hour,
		ControllerArchiveAge: time.Hour,
		MemoryCapMB:          2048,
	}
}

// Scheduler owns the worker goroutines.
type Scheduler struct {
	cfg      Config
	log      *zap.Logger
	client   *vatsim.Client
	pipeline *filter.Pipeline
	engine   *lifecycle.Engine
	batch    *batcher.Batcher
	store    *store.Store
	db       *storage.DB
	journal  *state.Journal // optional

	feedBreaker *gobreaker.CircuitBreaker

	mu              sync.Mutex
	lastFeedStamp   time.Time
	lastPoll        time.Time
	polls           uint64
	pollErrors      uint64
	skippedPolls    uint64
	lastCounts      filter.Counts
	lastControllers int
}

// New wires a scheduler over the already-constructed components.
func New(cfg Config, client *vatsim.Client, pipeline *filter.Pipeline, engine *lifecycle.Engine,
	batch *batcher.Batcher, st *store.Store, db *storage.DB, log *zap.Logger) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		log:      log,
		client:   client,
		pipeline: pipeline,
		engine:   engine,
		batch:    batch,
		store:    st,
		db:       db,
	}
	s.feedBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "datafeed",
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return s
}

// SetJournal attaches the optional resume journal for pruning.
func (s *Scheduler) SetJournal(j *state.Journal) { s.journal = j }

// Run starts all workers and blocks until ctx is cancelled and every
// worker has drained. The batcher's shutdown flush runs last.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.batch.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.PollInterval, s.pollOnce)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.DisconnectInterval, s.sweepOnce)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.CleanupInterval, s.cleanupOnce)
	}()

	wg.Wait()
	s.log.Info("scheduler stopped")
}

// loop runs fn immediately and then on every tick until cancellation.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// pollOnce fetches one feed snapshot and runs it through the pipeline.
func (s *Scheduler) pollOnce(ctx context.Context) {
	now := time.Now().UTC()

	res, err := s.feedBreaker.Execute(func() (interface{}, error) {
		return s.client.FetchSnapshot(ctx)
	})
	if err != nil {
		s.mu.Lock()
		s.pollErrors++
		s.mu.Unlock()
		s.log.Error("feed poll failed", zap.Error(err))
		return
	}
	snap := res.(*vatsim.Snapshot)

	// The feed republishes the same snapshot between updates; skip
	// reprocessing when the update stamp has not moved.
	s.mu.Lock()
	if !snap.General.UpdateTimestamp.IsZero() && snap.General.UpdateTimestamp.Equal(s.lastFeedStamp) {
		s.skippedPolls++
		s.mu.Unlock()
		return
	}
	s.lastFeedStamp = snap.General.UpdateTimestamp
	s.mu.Unlock()

	// Transceivers are best-effort; a failed fetch costs one tick of
	// coverage samples, not the tick.
	var entries []vatsim.TransceiverEntry
	if entries, err = s.client.FetchTransceivers(ctx); err != nil {
		s.log.Warn("transceiver fetch failed", zap.Error(err))
		entries = nil
	}

	pilots := make([]lifecycle.PilotUpdate, 0, len(snap.Pilots))
	var counts filter.Counts
	for i := range snap.Pilots {
		counts.TotalProcessed++
		switch s.pipeline.Flight(&snap.Pilots[i]) {
		case filter.Included:
			counts.Included++
			pilots = append(pilots, lifecycle.PilotUpdate{Pilot: snap.Pilots[i]})
		case filter.Uncertain:
			counts.Uncertain++
			pilots = append(pilots, lifecycle.PilotUpdate{Pilot: snap.Pilots[i], Uncertain: true})
		default:
			counts.Excluded++
		}
	}

	keptCtrls, _ := s.pipeline.Controllers(snap.Controllers)
	controllers := make([]store.Controller, 0, len(keptCtrls)+len(snap.ATIS))
	for i := range keptCtrls {
		controllers = append(controllers, lifecycle.ControllerFromFeed(&keptCtrls[i]))
	}
	for i := range snap.ATIS {
		if s.pipeline.ATIS(&snap.ATIS[i]) {
			controllers = append(controllers, lifecycle.ControllerFromFeed(&snap.ATIS[i]))
		}
	}

	samples := flattenTransceivers(entries, now)

	if err := s.engine.Tick(ctx, pilots, controllers, samples, now); err != nil {
		s.log.Error("tick failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.polls++
	s.lastPoll = now
	s.lastCounts = counts
	s.lastControllers = len(controllers)
	s.mu.Unlock()

	s.log.Debug("poll complete",
		zap.Int("pilots_kept", len(pilots)),
		zap.Int("pilots_excluded", counts.Excluded),
		zap.Int("controllers", len(controllers)),
		zap.Int("samples", len(samples)),
		zap.Int("feed_skipped_records", snap.SkippedRecords))
}

// sweepOnce runs the disconnect and timeout checks.
func (s *Scheduler) sweepOnce(ctx context.Context) {
	now := time.Now().UTC()
	if err := s.engine.DisconnectCheck(ctx, now); err != nil {
		s.log.Error("disconnect sweep failed", zap.Error(err))
	}
	if err := s.engine.TimeoutCheck(ctx, now); err != nil {
		s.log.Error("timeout sweep failed", zap.Error(err))
	}
}

// cleanupOnce is the hourly maintenance pass: reap dead map entries
// through the engine so its sector tracking stays consistent, archive
// offline controllers, and age out transceiver rows.
func (s *Scheduler) cleanupOnce(ctx context.Context) {
	now := time.Now().UTC()

	flights, controllers := s.engine.Reap(s.cfg.ReapAge, now)
	if len(flights)+len(controllers) > 0 {
		s.log.Info("reaped stale entries",
			zap.Int("flights", len(flights)),
			zap.Int("controllers", len(controllers)))
	}

	if n, err := s.db.PG.ArchiveControllers(ctx, now.Add(-s.cfg.ControllerArchiveAge)); err != nil {
		s.log.Error("controller archive failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("archived offline controllers", zap.Int("rows", n))
	}

	s.ageOutSamples(ctx, now.Add(-s.cfg.SampleRetention))

	if s.journal != nil {
		s.journal.Prune(s.cfg.ReapAge)
	}
}

// ageOutSamples moves old transceiver rows to the archive when one is
// connected, then deletes them from the state database.
func (s *Scheduler) ageOutSamples(ctx context.Context, cutoff time.Time) {
	if s.db.CH != nil {
		for {
			batch, err := s.db.PG.OldTransceivers(ctx, cutoff, 50000)
			if err != nil {
				s.log.Error("old sample fetch failed", zap.Error(err))
				return
			}
			if len(batch) == 0 {
				break
			}
			if err := s.db.CH.ArchiveTransceivers(ctx, batch); err != nil {
				s.log.Error("sample archive failed", zap.Error(err))
				return
			}
			cut := batch[len(batch)-1].Timestamp.Add(time.Second)
			if _, err := s.db.PG.DeleteTransceiversBefore(ctx, cut); err != nil {
				s.log.Error("sample delete failed", zap.Error(err))
				return
			}
			if len(batch) < 50000 {
				break
			}
		}
		return
	}

	if n, err := s.db.PG.DeleteTransceiversBefore(ctx, cutoff); err != nil {
		s.log.Error("sample delete failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("deleted aged samples", zap.Int("rows", n))
	}
}

func flattenTransceivers(entries []vatsim.TransceiverEntry, now time.Time) []store.TransceiverSample {
	var out []store.TransceiverSample
	for i := range entries {
		e := &entries[i]
		for _, t := range e.Transceivers {
			out = append(out, store.TransceiverSample{
				Callsign:      e.Callsign,
				TransceiverID: t.ID,
				Timestamp:     now,
				FrequencyHz:   t.Frequency,
				Latitude:      t.LatDeg,
				Longitude:     t.LonDeg,
				HeightMSL:     t.HeightMSL,
				HeightAGL:     t.HeightAGL,
			})
		}
	}
	return out
}
