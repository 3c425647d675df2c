// Command vatwatch collects live network traffic data for the
// Australian region: it polls the datafeed, tracks flight lifecycles
// in memory, and persists batched state to PostgreSQL with an optional
// ClickHouse archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vatwatch/internal/airspace"
	"vatwatch/internal/batcher"
	"vatwatch/internal/config"
	"vatwatch/internal/events"
	"vatwatch/internal/filter"
	"vatwatch/internal/lifecycle"
	"vatwatch/internal/scheduler"
	"vatwatch/internal/state"
	"vatwatch/internal/storage"
	"vatwatch/internal/store"
	"vatwatch/internal/vatsim"
)

func main() {
	configPath := flag.String("config", "", "Path to the JSON config file")
	validateOnly := flag.Bool("validate", false, "Validate the config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *validateOnly {
		fmt.Println("config ok")
		return
	}

	log, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ref, err := airspace.Load(airspace.Paths{
		CallsignsFile: cfg.Region.CallsignsFile,
		BoundaryFile:  cfg.Region.BoundaryFile,
		SectorsFile:   cfg.Region.SectorsFile,
		AirportsFile:  cfg.Region.AirportsFile,
	}, airspace.Config{
		RegionLetter:           cfg.Region.Letter,
		CaseSensitiveCallsigns: true,
	})
	if err != nil {
		return fmt.Errorf("airspace reference: %w", err)
	}
	log.Info("airspace reference loaded",
		zap.Int("controller_callsigns", ref.ControllerCallsignCount()))

	db, err := storage.Open(ctx, storage.Config{
		Postgres: storage.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
		},
		ClickHouse: storage.ClickHouseConfig{
			Host:     cfg.Archive.Host,
			Port:     cfg.Archive.Port,
			Database: cfg.Archive.Database,
			User:     cfg.Archive.User,
			Password: cfg.Archive.Password,
		},
		ArchiveEnabled: cfg.Archive.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.CreateSchemas(ctx); err != nil {
		return err
	}

	st := store.New(2 * time.Hour)

	batch := batcher.New(batcher.Config{
		BatchThreshold: cfg.Batch.Threshold,
		FlushInterval:  time.Duration(cfg.Batch.FlushIntervalSeconds) * time.Second,
	}, db.PG, log.Named("batcher"))

	pollInterval := time.Duration(cfg.Feed.PollIntervalSeconds) * time.Second
	engine := lifecycle.New(lifecycle.Config{
		PollInterval:     pollInterval,
		StaleMultiplier:  cfg.Lifecycle.StaleMultiplier,
		LandingRadiusNM:  cfg.Lifecycle.LandingRadiusNM,
		LandingAltFt:     cfg.Lifecycle.LandingAltitudeFt,
		LandingSpeedKts:  cfg.Lifecycle.LandingSpeedKts,
		LandingDupWindow: time.Duration(cfg.Lifecycle.LandingDupMinutes) * time.Minute,
		LandedTimeout:    time.Duration(cfg.Lifecycle.TimeoutHours) * time.Hour,
	}, st, ref, batch, db.PG, log.Named("lifecycle"))

	if db.CH != nil {
		engine.SetArchiver(db.CH)
	}

	pub, err := events.Connect(events.Config{URL: cfg.Events.URL}, log.Named("events"))
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	if pub != nil {
		engine.SetEvents(pub)
		defer pub.Close()
	}

	var journal *state.Journal
	if cfg.Journal.Path != "" {
		journal, err = state.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer func() { _ = journal.Close() }()
		engine.SetJournal(journal)
		restore(engine, journal, log)
	}

	// The database is the fallback source of open occupancy rows when
	// no journal is configured.
	if journal == nil {
		if rows, err := db.PG.AllOpenOccupancyRows(ctx); err != nil {
			log.Warn("open occupancy restore failed", zap.Error(err))
		} else if len(rows) > 0 {
			engine.RestoreOccupancy(rows)
			log.Info("restored open occupancy rows", zap.Int("rows", len(rows)))
		}
	}

	client := vatsim.NewClient(vatsim.ClientConfig{
		DataURL:            cfg.Feed.DataURL,
		TransceiversURL:    cfg.Feed.TransceiversURL,
		RequestTimeout:     time.Duration(cfg.Feed.RequestTimeoutSeconds) * time.Second,
		MinRequestInterval: pollInterval / 2,
	})

	pipeline := filter.New(ref, filter.Config{
		ControllerFilterEnabled: cfg.Region.CallsignFilterEnabled,
	})

	schedCfg := scheduler.DefaultConfig()
	schedCfg.PollInterval = pollInterval
	schedCfg.DisconnectInterval = time.Duration(cfg.Lifecycle.DisconnectCheckSeconds) * time.Second
	schedCfg.MemoryCapMB = cfg.MemoryCapMB
	sched := scheduler.New(schedCfg, client, pipeline, engine, batch, st, db, log.Named("scheduler"))
	if journal != nil {
		sched.SetJournal(journal)
	}

	go healthLoop(ctx, sched, log)

	log.Info("vatwatch started",
		zap.String("data_url", cfg.Feed.DataURL),
		zap.Duration("poll_interval", pollInterval),
		zap.Bool("archive", cfg.Archive.Enabled),
		zap.Bool("events", pub != nil))

	sched.Run(ctx)
	log.Info("vatwatch stopped")
	return nil
}

// restore reseeds lifecycle state from the journal.
func restore(engine *lifecycle.Engine, journal *state.Journal, log *zap.Logger) {
	now := time.Now().UTC()
	if flights, err := journal.RestoreFlights(3 * time.Hour); err != nil {
		log.Warn("flight restore failed", zap.Error(err))
	} else if len(flights) > 0 {
		engine.RestoreFlights(flights, now)
		log.Info("restored journaled flights", zap.Int("flights", len(flights)))
	}
	if rows, err := journal.RestoreOccupancy(); err != nil {
		log.Warn("occupancy restore failed", zap.Error(err))
	} else if len(rows) > 0 {
		engine.RestoreOccupancy(rows)
		log.Info("restored journaled occupancy", zap.Int("rows", len(rows)))
	}
}

// healthLoop logs the operational snapshot periodically.
func healthLoop(ctx context.Context, sched *scheduler.Scheduler, log *zap.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := sched.Health()
			log.Info("health",
				zap.Int("flights", h.TrackedFlights),
				zap.Int("controllers", h.TrackedControllers),
				zap.Int("pending_writes", h.PendingWrites),
				zap.Uint64("polls", h.Polls),
				zap.Uint64("poll_errors", h.PollErrors),
				zap.Uint64("landings", h.Landings),
				zap.Uint64("completions", h.Completions),
				zap.String("feed_breaker", h.FeedBreakerState),
				zap.Int("heap_mb", h.HeapMB),
				zap.Int("memory_cap_mb", h.MemoryCapMB))
		}
	}
}

// buildLogger constructs the zap logger per the logging config.
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
