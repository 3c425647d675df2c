// Package store owns the in-memory entity maps: the latest snapshot per
// callsign for flights and controllers, plus a time-bounded window of
// transceiver samples. The lifecycle engine is the only writer of flight
// status; everything else here is last-write-wins snapshot data.
package store

import "time"

// Status is the flight lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusStale     Status = "stale"
	StatusLanded    Status = "landed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusUnknown   Status = "unknown"
)

// DisconnectMethod records how a landed flight was deemed finished.
type DisconnectMethod string

const (
	DisconnectDetected DisconnectMethod = "detected"
	DisconnectTimeout  DisconnectMethod = "timeout"
)

// Flight is the tracked state of one pilot connection.
type Flight struct {
	Callsign       string
	CID            int
	Name           string
	Server         string
	PilotRating    int
	MilitaryRating int

	Latitude    float64
	Longitude   float64
	Altitude    int
	Groundspeed int
	Heading     int
	Transponder string
	QNHInHg     float64
	QNHMb       int

	// Flight plan snapshot.
	FlightRules         string
	Aircraft            string
	AircraftShort       string
	AircraftFAA         string
	Departure           string
	Arrival             string
	Alternate           string
	Route               string
	PlannedAltitude     string
	CruiseTAS           string
	Deptime             string
	EnrouteTime         string
	FuelTime            string
	Remarks             string
	RevisionID          int
	AssignedTransponder string

	LogonTime        time.Time
	LastUpdated      time.Time // feed-side
	LastUpdatedLocal time.Time // local receive time

	Status           Status
	Uncertain        bool // kept by the conservative filter default
	LandedAt         time.Time
	DisconnectedAt   time.Time
	DisconnectMethod DisconnectMethod

	FirstSeen time.Time
	LastSeen  time.Time
}

// Controller is the tracked state of one ATC connection.
type Controller struct {
	Callsign    string
	CID         int
	Name        string
	Rating      int
	Facility    int
	VisualRange int
	TextAtis    string
	AtisCode    string
	Frequency   string
	Server      string

	LogonTime   time.Time
	LastUpdated time.Time

	FirstSeen time.Time
	LastSeen  time.Time
}

// EntityType distinguishes transceiver owners.
type EntityType string

const (
	EntityFlight EntityType = "flight"
	EntityATC    EntityType = "atc"
)

// TransceiverSample is one radio position report at one instant.
type TransceiverSample struct {
	Callsign      string
	TransceiverID int
	Timestamp     time.Time
	FrequencyHz   int64
	Latitude      float64
	Longitude     float64
	HeightMSL     float64
	HeightAGL     float64
	EntityType    EntityType
}
