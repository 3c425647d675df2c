package airspace

import "math"

const earthRadiusNM = 3440.065

// HaversineNM returns the great-circle distance between two WGS84
// coordinates in nautical miles.
func HaversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusNM * c
}

// CoordinateDistance returns the planar distance between two coordinates
// in raw degree units. The coverage correlator deliberately works in
// coordinate units rather than nautical miles; see internal/coverage.
func CoordinateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := lat2 - lat1
	dlon := lon2 - lon1
	return math.Sqrt(dlat*dlat + dlon*dlon)
}
