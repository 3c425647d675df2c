// Package airspace holds the static reference data for the region of
// interest: airports, the region boundary, named sector polygons and the
// set of valid controller callsigns. All of it is loaded once and replaced
// atomically on reload; readers always see a consistent view.
package airspace

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Airport is one reference airport record.
type Airport struct {
	ICAO        string
	Name        string
	Latitude    float64
	Longitude   float64
	ElevationFt float64

	// ElevationKnown is false when the dataset had no elevation; the
	// landing detector then treats the field elevation as zero.
	ElevationKnown bool

	Country string
	Region  string
	Active  bool
}

// sector is one named airspace polygon with a precomputed bound for the
// cheap pre-filter ahead of the ray cast.
type sector struct {
	name  string
	geom  orb.Geometry
	bound orb.Bound
}

// view is one immutable generation of reference data.
type view struct {
	airports  map[string]Airport
	callsigns map[string]struct{}
	boundary  orb.Geometry
	bbound    orb.Bound
	sectors   []sector
}

// Paths names the files a Reference loads from.
type Paths struct {
	CallsignsFile string // one callsign per line, # comments
	BoundaryFile  string // GeoJSON Polygon or MultiPolygon
	SectorsFile   string // GeoJSON FeatureCollection with "name" properties
	AirportsFile  string // CSV: icao,name,lat,lon,elevation_ft,country,region
}

// Config controls lookup behaviour.
type Config struct {
	// RegionLetter is the ICAO prefix delimiting regional airports ("Y").
	RegionLetter string

	// CaseSensitiveCallsigns keeps controller callsign matching exact.
	CaseSensitiveCallsigns bool
}

// DefaultConfig returns the Australian-region defaults.
func DefaultConfig() Config {
	return Config{RegionLetter: "Y", CaseSensitiveCallsigns: true}
}

// Reference provides lookups against the loaded reference data.
type Reference struct {
	cfg   Config
	paths Paths
	cur   atomic.Pointer[view]
}

// Load reads all reference files and returns a ready Reference.
func Load(paths Paths, cfg Config) (*Reference, error) {
	if cfg.RegionLetter == "" {
		cfg.RegionLetter = "Y"
	}
	r := &Reference{cfg: cfg, paths: paths}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads all files and swaps in the new view atomically.
// On any error the previous view stays in place.
func (r *Reference) Reload() error {
	v := &view{
		airports:  make(map[string]Airport),
		callsigns: make(map[string]struct{}),
	}

	if r.paths.CallsignsFile != "" {
		cs, err := loadCallsigns(r.paths.CallsignsFile, r.cfg.CaseSensitiveCallsigns)
		if err != nil {
			return fmt.Errorf("load callsigns: %w", err)
		}
		v.callsigns = cs
	}

	if r.paths.AirportsFile != "" {
		ap, err := loadAirports(r.paths.AirportsFile)
		if err != nil {
			return fmt.Errorf("load airports: %w", err)
		}
		v.airports = ap
	}

	if r.paths.BoundaryFile != "" {
		geom, err := loadBoundary(r.paths.BoundaryFile)
		if err != nil {
			return fmt.Errorf("load boundary: %w", err)
		}
		v.boundary = geom
		v.bbound = geom.Bound()
	}

	if r.paths.SectorsFile != "" {
		secs, err := loadSectors(r.paths.SectorsFile)
		if err != nil {
			return fmt.Errorf("load sectors: %w", err)
		}
		v.sectors = secs
	}

	r.cur.Store(v)
	return nil
}

// IsValidController reports whether the callsign is a monitored position.
func (r *Reference) IsValidController(callsign string) bool {
	v := r.cur.Load()
	if !r.cfg.CaseSensitiveCallsigns {
		callsign = strings.ToUpper(callsign)
	}
	_, ok := v.callsigns[callsign]
	return ok
}

// ControllerCallsignCount returns the size of the loaded callsign set.
func (r *Reference) ControllerCallsignCount() int {
	return len(r.cur.Load().callsigns)
}

// IsRegionalAirport reports whether the ICAO code is inside the region by
// the configured prefix letter rule.
func (r *Reference) IsRegionalAirport(icao string) bool {
	if icao == "" {
		return false
	}
	return strings.HasPrefix(strings.ToUpper(icao), r.cfg.RegionLetter)
}

// Airport returns the reference record for an ICAO code, or nil.
func (r *Reference) Airport(icao string) *Airport {
	v := r.cur.Load()
	a, ok := v.airports[strings.ToUpper(icao)]
	if !ok {
		return nil
	}
	return &a
}

// PointInBoundary reports whether (lat, lon) lies inside the region
// boundary. Points exactly on an edge count as inside (the ray cast in
// orb/planar treats boundary points as contained).
func (r *Reference) PointInBoundary(lat, lon float64) bool {
	v := r.cur.Load()
	if v.boundary == nil {
		return false
	}
	pt := orb.Point{lon, lat}
	if !v.bbound.Contains(pt) {
		return false
	}
	return geometryContains(v.boundary, pt)
}

// SectorContaining returns the name of the sector containing (lat, lon),
// or the empty string when no sector matches. When sectors overlap the
// first match in file order wins.
func (r *Reference) SectorContaining(lat, lon float64) string {
	v := r.cur.Load()
	pt := orb.Point{lon, lat}
	for i := range v.sectors {
		s := &v.sectors[i]
		if !s.bound.Contains(pt) {
			continue
		}
		if geometryContains(s.geom, pt) {
			return s.name
		}
	}
	return ""
}

func geometryContains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	default:
		return false
	}
}

func loadCallsigns(path string, caseSensitive bool) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	set := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !caseSensitive {
			line = strings.ToUpper(line)
		}
		set[line] = struct{}{}
	}
	return set, scanner.Err()
}

func loadBoundary(path string) (orb.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Accept a bare geometry, a Feature or a FeatureCollection.
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		return fc.Features[0].Geometry, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil {
		return f.Geometry, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	return g.Geometry(), nil
}

func loadSectors(path string) ([]sector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse sectors geojson: %w", err)
	}

	sectors := make([]sector, 0, len(fc.Features))
	for _, feat := range fc.Features {
		name, _ := feat.Properties["name"].(string)
		if name == "" {
			continue
		}
		sectors = append(sectors, sector{
			name:  name,
			geom:  feat.Geometry,
			bound: feat.Geometry.Bound(),
		})
	}
	return sectors, nil
}
