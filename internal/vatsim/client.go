package vatsim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultDataURL is the production datafeed endpoint.
const DefaultDataURL = "https://data.vatsim.net/v3/vatsim-data.json"

// DefaultTransceiversURL is the production transceivers endpoint.
const DefaultTransceiversURL = "https://data.vatsim.net/v3/transceivers-data.json"

// ClientConfig holds feed client settings.
type ClientConfig struct {
	DataURL         string
	TransceiversURL string
	RequestTimeout  time.Duration

	// MinRequestInterval paces outbound requests. Zero disables pacing.
	MinRequestInterval time.Duration
}

// DefaultClientConfig returns production defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DataURL:            DefaultDataURL,
		TransceiversURL:    DefaultTransceiversURL,
		RequestTimeout:     10 * time.Second,
		MinRequestInterval: 5 * time.Second,
	}
}

// Client fetches the VATSIM datafeed and transceivers endpoints.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a feed client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinRequestInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinRequestInterval), 1)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
	}
}

// FetchSnapshot fetches and decodes the main datafeed.
// Records without a callsign are dropped and counted in SkippedRecords.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	body, err := c.get(ctx, c.cfg.DataURL)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode datafeed: %w", err)
	}
	snap.FetchedAt = time.Now().UTC()

	// The feed occasionally carries records with an empty callsign; they
	// cannot be keyed so they are dropped here, not at the filter.
	snap.Pilots, snap.SkippedRecords = dropUnkeyedPilots(snap.Pilots, snap.SkippedRecords)
	snap.Controllers, snap.SkippedRecords = dropUnkeyedControllers(snap.Controllers, snap.SkippedRecords)
	snap.ATIS, snap.SkippedRecords = dropUnkeyedControllers(snap.ATIS, snap.SkippedRecords)

	return &snap, nil
}

// FetchTransceivers fetches and decodes the transceivers endpoint.
func (c *Client) FetchTransceivers(ctx context.Context) ([]TransceiverEntry, error) {
	body, err := c.get(ctx, c.cfg.TransceiversURL)
	if err != nil {
		return nil, err
	}

	var entries []TransceiverEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode transceivers: %w", err)
	}

	out := entries[:0]
	for _, e := range entries {
		if e.Callsign == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func dropUnkeyedPilots(pilots []Pilot, skipped int) ([]Pilot, int) {
	out := pilots[:0]
	for _, p := range pilots {
		if p.Callsign == "" {
			skipped++
			continue
		}
		out = append(out, p)
	}
	return out, skipped
}

func dropUnkeyedControllers(ctrls []Controller, skipped int) ([]Controller, int) {
	out := ctrls[:0]
	for _, c := range ctrls {
		if c.Callsign == "" {
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, skipped
}
