package airspace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// loadAirports reads the airport dataset CSV. Expected columns:
// icao,name,latitude,longitude,elevation_ft,country,region
// An optional header row is detected and skipped. Elevation may be empty.
func loadAirports(path string) (map[string]Airport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1

	airports := make(map[string]Airport)
	line := 0
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("airports csv line %d: %w", line+1, err)
		}
		line++

		if len(rec) < 4 {
			continue
		}
		icao := strings.ToUpper(strings.TrimSpace(rec[0]))
		if icao == "" || icao == "ICAO" {
			continue
		}

		lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if errLat != nil || errLon != nil {
			continue
		}

		a := Airport{
			ICAO:      icao,
			Name:      strings.TrimSpace(rec[1]),
			Latitude:  lat,
			Longitude: lon,
			Active:    true,
		}
		if len(rec) > 4 {
			if elev, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64); err == nil {
				a.ElevationFt = elev
				a.ElevationKnown = true
			}
		}
		if len(rec) > 5 {
			a.Country = strings.TrimSpace(rec[5])
		}
		if len(rec) > 6 {
			a.Region = strings.TrimSpace(rec[6])
		}

		airports[icao] = a
	}
	return airports, nil
}
