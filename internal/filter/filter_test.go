package filter

import (
	"os"
	"path/filepath"
	"testing"

	"vatwatch/internal/airspace"
	"vatwatch/internal/vatsim"
)

const testBoundary = `{
	"type": "Polygon",
	"coordinates": [[
		[112.0, -44.0], [154.0, -44.0], [154.0, -10.0], [112.0, -10.0], [112.0, -44.0]
	]]
}`

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	dir := t.TempDir()

	csPath := filepath.Join(dir, "callsigns.txt")
	if err := os.WriteFile(csPath, []byte("SY_APP\nML_CTR\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bPath := filepath.Join(dir, "boundary.geojson")
	if err := os.WriteFile(bPath, []byte(testBoundary), 0o644); err != nil {
		t.Fatal(err)
	}

	ref, err := airspace.Load(airspace.Paths{
		CallsignsFile: csPath,
		BoundaryFile:  bPath,
	}, airspace.DefaultConfig())
	if err != nil {
		t.Fatalf("load reference: %v", err)
	}
	return New(ref, DefaultConfig())
}

func plan(dep, arr string) *vatsim.FlightPlan {
	return &vatsim.FlightPlan{Departure: dep, Arrival: arr}
}

func TestControllerFilter(t *testing.T) {
	p := newTestPipeline(t)

	if !p.Controller(&vatsim.Controller{Callsign: "SY_APP"}) {
		t.Error("SY_APP should pass")
	}
	if p.Controller(&vatsim.Controller{Callsign: "LON_CTR"}) {
		t.Error("LON_CTR should not pass")
	}
}

func TestControllerFilterDisabled(t *testing.T) {
	p := newTestPipeline(t)
	p.cfg.ControllerFilterEnabled = false

	if !p.Controller(&vatsim.Controller{Callsign: "LON_CTR"}) {
		t.Error("all controllers should pass when disabled")
	}
}

func TestATISFilter(t *testing.T) {
	p := newTestPipeline(t)

	cases := []struct {
		callsign string
		want     bool
	}{
		{"YSSY_ATIS", true},
		{"YMML_D_ATIS", true},
		{"KLAX_ATIS", false},
		{"EGLL_ATIS", false},
		{"YSSY", true},
	}
	for _, c := range cases {
		if got := p.ATIS(&vatsim.Controller{Callsign: c.callsign}); got != c.want {
			t.Errorf("ATIS(%q) = %v, want %v", c.callsign, got, c.want)
		}
	}
}

func TestFlightDecisions(t *testing.T) {
	p := newTestPipeline(t)

	cases := []struct {
		name  string
		pilot vatsim.Pilot
		want  Decision
	}{
		{
			name:  "regional departure",
			pilot: vatsim.Pilot{Callsign: "QFA123", FlightPlan: plan("YSSY", "KLAX"), Latitude: 10, Longitude: 10},
			want:  Included,
		},
		{
			name:  "regional arrival",
			pilot: vatsim.Pilot{Callsign: "UAL99", FlightPlan: plan("KLAX", "YMML")},
			want:  Included,
		},
		{
			name:  "non-regional plan",
			pilot: vatsim.Pilot{Callsign: "UAL456", FlightPlan: plan("EGLL", "KLAX"), Latitude: 51.5, Longitude: -0.1},
			want:  Excluded,
		},
		{
			name:  "no plan inside boundary",
			pilot: vatsim.Pilot{Callsign: "VHABC", Latitude: -33.9, Longitude: 151.2},
			want:  Included,
		},
		{
			name:  "no plan outside boundary",
			pilot: vatsim.Pilot{Callsign: "NZ1", Latitude: -36.85, Longitude: 174.76},
			want:  Excluded,
		},
		{
			name:  "nothing known",
			pilot: vatsim.Pilot{Callsign: "QFA789"},
			want:  Uncertain,
		},
		{
			name:  "invalid coordinates treated as missing",
			pilot: vatsim.Pilot{Callsign: "BAD1", Latitude: 400, Longitude: 400},
			want:  Uncertain,
		},
		{
			name:  "empty plan falls through to position",
			pilot: vatsim.Pilot{Callsign: "VHXYZ", FlightPlan: plan("", ""), Latitude: -27.4, Longitude: 153.1},
			want:  Included,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := p.Flight(&c.pilot); got != c.want {
				t.Errorf("Flight() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestFlightsCounts(t *testing.T) {
	p := newTestPipeline(t)

	pilots := []vatsim.Pilot{
		{Callsign: "QFA123", FlightPlan: plan("YSSY", "YBBN")},
		{Callsign: "UAL456", FlightPlan: plan("EGLL", "KLAX"), Latitude: 51.5, Longitude: -0.1},
		{Callsign: "QFA789"},
	}

	kept, counts := p.Flights(pilots)
	if len(kept) != 2 {
		t.Fatalf("kept = %d, want 2", len(kept))
	}
	if counts.TotalProcessed != 3 || counts.Included != 1 || counts.Excluded != 1 || counts.Uncertain != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

// Running the pipeline twice over the same input must give the same set.
func TestFilterIdempotence(t *testing.T) {
	p := newTestPipeline(t)

	pilots := []vatsim.Pilot{
		{Callsign: "QFA123", FlightPlan: plan("YSSY", "YBBN")},
		{Callsign: "UAL456", FlightPlan: plan("EGLL", "KLAX"), Latitude: 51.5, Longitude: -0.1},
		{Callsign: "QFA789"},
		{Callsign: "VHABC", Latitude: -33.9, Longitude: 151.2},
	}

	first := make([]vatsim.Pilot, len(pilots))
	copy(first, pilots)
	second := make([]vatsim.Pilot, len(pilots))
	copy(second, pilots)

	kept1, counts1 := p.Flights(first)
	kept2, counts2 := p.Flights(second)

	if len(kept1) != len(kept2) {
		t.Fatalf("kept lengths differ: %d vs %d", len(kept1), len(kept2))
	}
	for i := range kept1 {
		if kept1[i].Callsign != kept2[i].Callsign {
			t.Errorf("kept[%d] = %q vs %q", i, kept1[i].Callsign, kept2[i].Callsign)
		}
	}
	if counts1 != counts2 {
		t.Errorf("counts differ: %+v vs %+v", counts1, counts2)
	}
}
