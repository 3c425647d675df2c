// Package events publishes flight movement events over NATS. The
// publisher is optional and fire-and-forget: a nil Publisher or a
// failed publish never affects the collection pipeline.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"vatwatch/internal/storage"
	"vatwatch/internal/store"
)

const (
	SubjectLanded    = "vatwatch.flight.landed"
	SubjectCompleted = "vatwatch.flight.completed"
)

// Config holds the NATS connection settings. An empty URL disables
// publishing.
type Config struct {
	URL  string
	Name string
}

// LandedEvent is the payload published when a flight touches down.
type LandedEvent struct {
	Callsign  string    `json:"callsign"`
	CID       int       `json:"cid"`
	Departure string    `json:"departure,omitempty"`
	Arrival   string    `json:"arrival"`
	LandedAt  time.Time `json:"landed_at"`
}

// CompletedEvent is the payload published when a flight completes.
type CompletedEvent struct {
	Callsign           string    `json:"callsign"`
	CID                int       `json:"cid"`
	Departure          string    `json:"departure,omitempty"`
	Arrival            string    `json:"arrival,omitempty"`
	DisconnectMethod   string    `json:"disconnect_method"`
	CoveragePercentage int       `json:"coverage_percentage"`
	TimeOnlineMinutes  int       `json:"time_online_minutes"`
	CompletedAt        time.Time `json:"completed_at"`
}

// Publisher publishes movement events to NATS.
type Publisher struct {
	nc  *nats.Conn
	log *zap.Logger
}

// Connect dials NATS and returns a ready publisher. Returns nil (and
// no error) when cfg.URL is empty.
func Connect(cfg Config, log *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	name := cfg.Name
	if name == "" {
		name = "vatwatch"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Publisher{nc: nc, log: log}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}

// FlightLanded publishes a landing event.
func (p *Publisher) FlightLanded(f *store.Flight, at time.Time) {
	if p == nil {
		return
	}
	p.publish(SubjectLanded, LandedEvent{
		Callsign:  f.Callsign,
		CID:       f.CID,
		Departure: f.Departure,
		Arrival:   f.Arrival,
		LandedAt:  at,
	})
}

// FlightCompleted publishes a completion event.
func (p *Publisher) FlightCompleted(f *store.Flight, summary *storage.FlightSummary) {
	if p == nil {
		return
	}
	p.publish(SubjectCompleted, CompletedEvent{
		Callsign:           f.Callsign,
		CID:                f.CID,
		Departure:          f.Departure,
		Arrival:            f.Arrival,
		DisconnectMethod:   string(f.DisconnectMethod),
		CoveragePercentage: summary.ControllerTimePercentage,
		TimeOnlineMinutes:  summary.TimeOnlineMinutes,
		CompletedAt:        summary.CompletedAt,
	})
}

func (p *Publisher) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("event marshal failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn("event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
