package motion

import "math"

// Region is a lat/lon rectangle trucks are kept inside.
type Region struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

func (r Region) Clamp(lat, lon float64) (float64, float64) {
	return math.Max(r.MinLat, math.Min(r.MaxLat, lat)), math.Max(r.MinLon, math.Min(r.MaxLon, lon))
}
