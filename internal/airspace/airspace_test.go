package airspace

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// A rough box around the Australian mainland, enough for containment tests.
const testBoundary = `{
	"type": "Polygon",
	"coordinates": [[
		[112.0, -44.0], [154.0, -44.0], [154.0, -10.0], [112.0, -10.0], [112.0, -44.0]
	]]
}`

const testSectors = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "properties": {"name": "ARL"},
		 "geometry": {"type": "Polygon", "coordinates": [[
			[148.0, -36.0], [153.0, -36.0], [153.0, -32.0], [148.0, -32.0], [148.0, -36.0]
		 ]]}},
		{"type": "Feature", "properties": {"name": "BLA"},
		 "geometry": {"type": "Polygon", "coordinates": [[
			[144.0, -38.0], [148.0, -38.0], [148.0, -34.0], [144.0, -34.0], [144.0, -38.0]
		 ]]}}
	]
}`

const testCallsigns = `# Australian positions
BN-TSN_CTR
ML-BIK_CTR
SY_APP
SY_TWR
`

const testAirports = `icao,name,latitude,longitude,elevation_ft,country,region
YSSY,Sydney Kingsford Smith,-33.9461,151.1772,21,AU,NSW
YBBN,Brisbane,-27.3842,153.1175,13,AU,QLD
YMML,Melbourne,-37.6733,144.8433,,AU,VIC
`

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestReference(t *testing.T) *Reference {
	t.Helper()
	dir := t.TempDir()
	paths := Paths{
		CallsignsFile: writeTestFile(t, dir, "callsigns.txt", testCallsigns),
		BoundaryFile:  writeTestFile(t, dir, "boundary.geojson", testBoundary),
		SectorsFile:   writeTestFile(t, dir, "sectors.geojson", testSectors),
		AirportsFile:  writeTestFile(t, dir, "airports.csv", testAirports),
	}
	ref, err := Load(paths, DefaultConfig())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ref
}

func TestIsValidController(t *testing.T) {
	ref := newTestReference(t)

	if !ref.IsValidController("SY_APP") {
		t.Error("SY_APP should be valid")
	}
	if !ref.IsValidController("BN-TSN_CTR") {
		t.Error("BN-TSN_CTR should be valid")
	}
	if ref.IsValidController("EGLL_TWR") {
		t.Error("EGLL_TWR should not be valid")
	}
	// Case sensitive by default.
	if ref.IsValidController("sy_app") {
		t.Error("sy_app should not match case-sensitively")
	}
	if ref.ControllerCallsignCount() != 4 {
		t.Errorf("callsign count = %d, want 4", ref.ControllerCallsignCount())
	}
}

func TestIsRegionalAirport(t *testing.T) {
	ref := newTestReference(t)

	cases := []struct {
		icao string
		want bool
	}{
		{"YSSY", true},
		{"YBBN", true},
		{"ymml", true},
		{"KLAX", false},
		{"EGLL", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ref.IsRegionalAirport(c.icao); got != c.want {
			t.Errorf("IsRegionalAirport(%q) = %v, want %v", c.icao, got, c.want)
		}
	}
}

func TestAirportLookup(t *testing.T) {
	ref := newTestReference(t)

	a := ref.Airport("YSSY")
	if a == nil {
		t.Fatal("YSSY not found")
	}
	if a.ElevationFt != 21 || !a.ElevationKnown {
		t.Errorf("YSSY elevation = %v known=%v, want 21 known", a.ElevationFt, a.ElevationKnown)
	}

	// Elevation missing in the dataset.
	m := ref.Airport("YMML")
	if m == nil {
		t.Fatal("YMML not found")
	}
	if m.ElevationKnown {
		t.Error("YMML elevation should be unknown")
	}

	if ref.Airport("ZZZZ") != nil {
		t.Error("ZZZZ should not be found")
	}
}

func TestPointInBoundary(t *testing.T) {
	ref := newTestReference(t)

	// Sydney: strictly inside.
	if !ref.PointInBoundary(-33.868, 151.209) {
		t.Error("Sydney should be inside the boundary")
	}
	// London: strictly outside.
	if ref.PointInBoundary(51.5, -0.1) {
		t.Error("London should be outside the boundary")
	}
	// Auckland: east of the box.
	if ref.PointInBoundary(-36.85, 174.76) {
		t.Error("Auckland should be outside the boundary")
	}
}

func TestSectorContaining(t *testing.T) {
	ref := newTestReference(t)

	if got := ref.SectorContaining(-34.0, 150.0); got != "ARL" {
		t.Errorf("sector = %q, want ARL", got)
	}
	if got := ref.SectorContaining(-36.0, 146.0); got != "BLA" {
		t.Errorf("sector = %q, want BLA", got)
	}
	if got := ref.SectorContaining(-20.0, 130.0); got != "" {
		t.Errorf("sector = %q, want none", got)
	}
}

func TestReloadAtomic(t *testing.T) {
	dir := t.TempDir()
	csPath := writeTestFile(t, dir, "callsigns.txt", "SY_APP\n")
	ref, err := Load(Paths{CallsignsFile: csPath}, DefaultConfig())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(csPath, []byte("ML_APP\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ref.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if ref.IsValidController("SY_APP") {
		t.Error("old callsign still valid after reload")
	}
	if !ref.IsValidController("ML_APP") {
		t.Error("new callsign not valid after reload")
	}

	// A failed reload keeps the previous view.
	if err := os.Remove(csPath); err != nil {
		t.Fatal(err)
	}
	if err := ref.Reload(); err == nil {
		t.Fatal("expected error reloading missing file")
	}
	if !ref.IsValidController("ML_APP") {
		t.Error("previous view lost after failed reload")
	}
}

func TestHaversineSymmetry(t *testing.T) {
	// Sydney to Brisbane, both directions.
	d1 := HaversineNM(-33.9461, 151.1772, -27.3842, 153.1175)
	d2 := HaversineNM(-27.3842, 153.1175, -33.9461, 151.1772)
	if math.Abs(d1-d2) > 1e-6 {
		t.Errorf("haversine not symmetric: %v vs %v", d1, d2)
	}
	// Roughly 400 nm.
	if d1 < 380 || d1 > 420 {
		t.Errorf("YSSY-YBBN distance = %v nm, expected ~400", d1)
	}
}

func TestHaversineZero(t *testing.T) {
	if d := HaversineNM(-33.9, 151.2, -33.9, 151.2); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}
}
