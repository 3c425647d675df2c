package scheduler

import (
	"runtime"
	"time"
)

// Health is a point-in-time operational snapshot, logged periodically
// and inspectable by whatever monitoring wraps the process.
type Health struct {
	TrackedFlights     int `json:"tracked_flights"`
	TrackedControllers int `json:"tracked_controllers"`
	SampleCallsigns    int `json:"sample_callsigns"`

	PendingWrites int       `json:"pending_writes"`
	Flushes       uint64    `json:"flushes"`
	FlushErrors   uint64    `json:"flush_errors"`
	LastFlush     time.Time `json:"last_flush"`

	Polls        uint64    `json:"polls"`
	PollErrors   uint64    `json:"poll_errors"`
	SkippedPolls uint64    `json:"skipped_polls"`
	LastPoll     time.Time `json:"last_poll"`
	LastFeedTime time.Time `json:"last_feed_time"`

	Landings    uint64 `json:"landings"`
	Completions uint64 `json:"completions"`

	FeedBreakerState string `json:"feed_breaker_state"`

	HeapMB      int `json:"heap_mb"`
	MemoryCapMB int `json:"memory_cap_mb"`
}

// Health collects the snapshot.
func (s *Scheduler) Health() Health {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	flights, controllers, sampleCallsigns := s.store.Counts()
	flushes, flushErrors, lastFlush, _ := s.batch.Stats()
	landings, completions := s.engine.Stats()

	s.mu.Lock()
	h := Health{
		TrackedFlights:     flights,
		TrackedControllers: controllers,
		SampleCallsigns:    sampleCallsigns,

		PendingWrites: s.batch.Pending(),
		Flushes:       flushes,
		FlushErrors:   flushErrors,
		LastFlush:     lastFlush,

		Polls:        s.polls,
		PollErrors:   s.pollErrors,
		SkippedPolls: s.skippedPolls,
		LastPoll:     s.lastPoll,
		LastFeedTime: s.lastFeedStamp,

		Landings:    landings,
		Completions: completions,

		FeedBreakerState: s.feedBreaker.State().String(),

		HeapMB:      int(m.HeapAlloc / (1 << 20)),
		MemoryCapMB: s.cfg.MemoryCapMB,
	}
	s.mu.Unlock()
	return h
}
