package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.PollIntervalSeconds != 30 {
		t.Errorf("poll interval = %d, want 30", cfg.Feed.PollIntervalSeconds)
	}
	if cfg.Region.Letter != "Y" {
		t.Errorf("region letter = %q, want Y", cfg.Region.Letter)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"feed": {"data_url": "http://localhost:9999/data.json", "poll_interval_seconds": 15, "request_timeout_seconds": 5},
		"region": {"letter": "K"},
		"batch": {"flush_interval_seconds": 60, "threshold": 500}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.PollIntervalSeconds != 15 {
		t.Errorf("poll interval = %d, want 15", cfg.Feed.PollIntervalSeconds)
	}
	if cfg.Region.Letter != "K" {
		t.Errorf("region letter = %q, want K", cfg.Region.Letter)
	}
	if cfg.Batch.Threshold != 500 {
		t.Errorf("threshold = %d, want 500", cfg.Batch.Threshold)
	}
	// Untouched sections keep their defaults.
	if cfg.Lifecycle.LandingRadiusNM != 15.0 {
		t.Errorf("landing radius = %v, want 15", cfg.Lifecycle.LandingRadiusNM)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("VATWATCH_DB_PASSWORD", "hunter2")
	t.Setenv("VATWATCH_POLL_INTERVAL", "45")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Password != "hunter2" {
		t.Errorf("db password not taken from environment")
	}
	if cfg.Feed.PollIntervalSeconds != 45 {
		t.Errorf("poll interval = %d, want 45", cfg.Feed.PollIntervalSeconds)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data url", func(c *Config) { c.Feed.DataURL = "" }},
		{"zero poll interval", func(c *Config) { c.Feed.PollIntervalSeconds = 0 }},
		{"empty region letter", func(c *Config) { c.Region.Letter = "" }},
		{"stale multiplier too small", func(c *Config) { c.Lifecycle.StaleMultiplier = 1.0 }},
		{"negative landing radius", func(c *Config) { c.Lifecycle.LandingRadiusNM = -1 }},
		{"zero timeout", func(c *Config) { c.Lifecycle.TimeoutHours = 0 }},
		{"zero flush interval", func(c *Config) { c.Batch.FlushIntervalSeconds = 0 }},
		{"zero threshold", func(c *Config) { c.Batch.Threshold = 0 }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate accepted an invalid config", tc.name)
		}
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed JSON")
	}
}
