// Package vatsim fetches and normalises the VATSIM network datafeed.
package vatsim

import "time"

// Facility types as used by the network.
const (
	FacilityObserver = 0
	FacilityFSS      = 1
	FacilityDelivery = 2
	FacilityGround   = 3
	FacilityTower    = 4
	FacilityApproach = 5
	FacilityEnroute  = 6
)

// Pilot is one connected pilot from the datafeed.
type Pilot struct {
	CID            int         `json:"cid"`
	Name           string      `json:"name"`
	Callsign       string      `json:"callsign"`
	Server         string      `json:"server"`
	PilotRating    int         `json:"pilot_rating"`
	MilitaryRating int         `json:"military_rating"`
	Latitude       float64     `json:"latitude"`
	Longitude      float64     `json:"longitude"`
	Altitude       int         `json:"altitude"`
	Groundspeed    int         `json:"groundspeed"`
	Heading        int         `json:"heading"`
	Transponder    string      `json:"transponder"`
	QNHInHg        float64     `json:"qnh_i_hg"`
	QNHMb          int         `json:"qnh_mb"`
	FlightPlan     *FlightPlan `json:"flight_plan"`
	LogonTime      time.Time   `json:"logon_time"`
	LastUpdated    time.Time   `json:"last_updated"`
}

// FlightPlan is the filed plan attached to a pilot, if any.
type FlightPlan struct {
	FlightRules         string `json:"flight_rules"`
	Aircraft            string `json:"aircraft"`
	AircraftFAA         string `json:"aircraft_faa"`
	AircraftShort       string `json:"aircraft_short"`
	Departure           string `json:"departure"`
	Arrival             string `json:"arrival"`
	Alternate           string `json:"alternate"`
	CruiseTAS           string `json:"cruise_tas"`
	Altitude            string `json:"altitude"`
	Deptime             string `json:"deptime"`
	EnrouteTime         string `json:"enroute_time"`
	FuelTime            string `json:"fuel_time"`
	Remarks             string `json:"remarks"`
	Route               string `json:"route"`
	RevisionID          int    `json:"revision_id"`
	AssignedTransponder string `json:"assigned_transponder"`
}

// Controller is one connected ATC position from the datafeed.
// ATIS connections share the same shape with an extra ATIS letter.
type Controller struct {
	CID         int       `json:"cid"`
	Name        string    `json:"name"`
	Callsign    string    `json:"callsign"`
	Frequency   string    `json:"frequency"`
	Facility    int       `json:"facility"`
	Rating      int       `json:"rating"`
	Server      string    `json:"server"`
	VisualRange int       `json:"visual_range"`
	AtisCode    string    `json:"atis_code"`
	TextAtis    []string  `json:"text_atis"`
	LogonTime   time.Time `json:"logon_time"`
	LastUpdated time.Time `json:"last_updated"`
}

// General carries feed-level metadata.
type General struct {
	Version         int       `json:"version"`
	UpdateTimestamp time.Time `json:"update_timestamp"`
	ConnectedPilots int       `json:"connected_clients"`
	UniqueUsers     int       `json:"unique_users"`
}

// Snapshot is one decoded poll of the main datafeed.
type Snapshot struct {
	General     General      `json:"general"`
	Pilots      []Pilot      `json:"pilots"`
	Controllers []Controller `json:"controllers"`
	ATIS        []Controller `json:"atis"`

	// Records dropped during decode because they had no callsign.
	SkippedRecords int `json:"-"`

	// FetchedAt is the local receive time.
	FetchedAt time.Time `json:"-"`
}

// Transceiver is one radio transceiver position report.
type Transceiver struct {
	ID        int     `json:"id"`
	Frequency int64   `json:"frequency"`
	LatDeg    float64 `json:"latDeg"`
	LonDeg    float64 `json:"lonDeg"`
	HeightMSL float64 `json:"heightMslM"`
	HeightAGL float64 `json:"heightAglM"`
}

// TransceiverEntry groups the transceivers reported by one station.
type TransceiverEntry struct {
	Callsign     string        `json:"callsign"`
	Transceivers []Transceiver `json:"transceivers"`
}
