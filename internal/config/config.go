// Package config loads the collector configuration from a JSON file
// with environment variable overrides for secrets and deployment knobs.
// A missing file yields the defaults; an invalid value fails startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config represents the complete collector configuration.
type Config struct {
	Feed      FeedConfig      `json:"feed"`
	Region    RegionConfig    `json:"region"`
	Lifecycle LifecycleConfig `json:"lifecycle"`
	Batch     BatchConfig     `json:"batch"`
	Database  DatabaseConfig  `json:"database"`
	Archive   ArchiveConfig   `json:"archive"`
	Events    EventsConfig    `json:"events"`
	Journal   JournalConfig   `json:"journal"`
	Logging   LoggingConfig   `json:"logging"`

	// MemoryCapMB is the soft ceiling the health snapshot reports
	// against.
	MemoryCapMB int `json:"memory_cap_mb"`
}

// FeedConfig controls the upstream data feed polling.
type FeedConfig struct {
	// DataURL is the main datafeed endpoint.
	DataURL string `json:"data_url"`

	// TransceiversURL is the transceiver position endpoint.
	TransceiversURL string `json:"transceivers_url"`

	// PollIntervalSeconds is the feed polling cadence.
	PollIntervalSeconds int `json:"poll_interval_seconds"`

	// RequestTimeoutSeconds bounds one fetch.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
}

// RegionConfig controls the geographic and callsign filtering.
type RegionConfig struct {
	// Letter is the ICAO prefix delimiting regional airports.
	Letter string `json:"letter"`

	// CallsignFilterEnabled gates controller filtering by the callsign
	// list. When disabled every controller is kept.
	CallsignFilterEnabled bool `json:"callsign_filter_enabled"`

	// Reference data files.
	CallsignsFile string `json:"callsigns_file"`
	BoundaryFile  string `json:"boundary_file"`
	SectorsFile   string `json:"sectors_file"`
	AirportsFile  string `json:"airports_file"`
}

// LifecycleConfig tunes the flight state machine.
type LifecycleConfig struct {
	// StaleMultiplier times the poll interval is the absence after
	// which an active flight turns stale.
	StaleMultiplier float64 `json:"stale_multiplier"`

	// Landing detector thresholds.
	LandingRadiusNM     float64 `json:"landing_radius_nm"`
	LandingAltitudeFt   int     `json:"landing_altitude_ft"`
	LandingSpeedKts     int     `json:"landing_speed_kts"`
	LandingDupMinutes   int     `json:"landing_dup_minutes"`

	// DisconnectCheckSeconds is the cadence of the disconnect sweep.
	DisconnectCheckSeconds int `json:"disconnect_check_seconds"`

	// TimeoutHours completes a landed flight with no observed
	// disconnect.
	TimeoutHours int `json:"timeout_hours"`
}

// BatchConfig tunes the write batcher.
type BatchConfig struct {
	// FlushIntervalSeconds is the timed flush cadence.
	FlushIntervalSeconds int `json:"flush_interval_seconds"`

	// Threshold forces a flush when this many writes are pending.
	Threshold int `json:"threshold"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`

	// Password should be supplied via VATWATCH_DB_PASSWORD.
	Password string `json:"password"`
}

// ArchiveConfig contains the optional ClickHouse archive settings.
type ArchiveConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// EventsConfig contains the optional NATS publisher settings. An empty
// URL disables publishing.
type EventsConfig struct {
	URL string `json:"url"`
}

// JournalConfig contains the local resume journal settings. An empty
// path keeps the journal in memory only.
type JournalConfig struct {
	Path string `json:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `json:"development"`
}

// Load reads configuration from a JSON file. A missing file returns
// the defaults. Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.applyEnvironmentOverrides()
				return cfg, cfg.Validate()
			}
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with production defaults.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			DataURL:               "https://data.vatsim.net/v3/vatsim-data.json",
			TransceiversURL:       "https://data.vatsim.net/v3/transceivers-data.json",
			PollIntervalSeconds:   30,
			RequestTimeoutSeconds: 10,
		},
		Region: RegionConfig{
			Letter:                "Y",
			CallsignFilterEnabled: true,
		},
		Lifecycle: LifecycleConfig{
			StaleMultiplier:        2.5,
			LandingRadiusNM:        15.0,
			LandingAltitudeFt:      1000,
			LandingSpeedKts:        20,
			LandingDupMinutes:      5,
			DisconnectCheckSeconds: 30,
			TimeoutHours:           1,
		},
		Batch: BatchConfig{
			FlushIntervalSeconds: 300,
			Threshold:            10000,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "vatwatch",
			User:     "vatwatch",
		},
		Archive: ArchiveConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     9000,
			Database: "vatwatch_archive",
			User:     "default",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		MemoryCapMB: 2048,
	}
}

// Validate rejects values the collector cannot run with.
func (c *Config) Validate() error {
	if c.Feed.DataURL == "" {
		return fmt.Errorf("feed.data_url is required")
	}
	if c.Feed.PollIntervalSeconds <= 0 {
		return fmt.Errorf("feed.poll_interval_seconds must be positive, got %d", c.Feed.PollIntervalSeconds)
	}
	if c.Region.Letter == "" {
		return fmt.Errorf("region.letter is required")
	}
	if c.Lifecycle.StaleMultiplier <= 1 {
		return fmt.Errorf("lifecycle.stale_multiplier must exceed 1, got %v", c.Lifecycle.StaleMultiplier)
	}
	if c.Lifecycle.LandingRadiusNM <= 0 {
		return fmt.Errorf("lifecycle.landing_radius_nm must be positive, got %v", c.Lifecycle.LandingRadiusNM)
	}
	if c.Lifecycle.TimeoutHours <= 0 {
		return fmt.Errorf("lifecycle.timeout_hours must be positive, got %d", c.Lifecycle.TimeoutHours)
	}
	if c.Batch.FlushIntervalSeconds <= 0 {
		return fmt.Errorf("batch.flush_interval_seconds must be positive, got %d", c.Batch.FlushIntervalSeconds)
	}
	if c.Batch.Threshold <= 0 {
		return fmt.Errorf("batch.threshold must be positive, got %d", c.Batch.Threshold)
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database.host and database.database are required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// applyEnvironmentOverrides applies environment variable overrides.
// This keeps secrets out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("VATWATCH_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("VATWATCH_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("VATWATCH_ARCHIVE_PASSWORD"); v != "" {
		c.Archive.Password = v
	}
	if v := os.Getenv("VATWATCH_NATS_URL"); v != "" {
		c.Events.URL = v
	}
	if v := os.Getenv("VATWATCH_DATA_URL"); v != "" {
		c.Feed.DataURL = v
	}
	if v := os.Getenv("VATWATCH_TRANSCEIVERS_URL"); v != "" {
		c.Feed.TransceiversURL = v
	}
	if v := os.Getenv("VATWATCH_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Feed.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("VATWATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
