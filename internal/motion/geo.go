package motion

import (
	"fmt"
	"math"
	"strings"
)

// EarthRadiusKm is the mean Earth radius used by the spherical model.
const EarthRadiusKm = 6371.0088

// kmPerDegree is the flat-plane approximation of one degree of latitude.
const kmPerDegree = 111.0

// Kind selects how a displacement is projected onto the map.
type Kind int

const (
	Spherical Kind = iota
	Planar
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spherical", "":
		return Spherical, nil
	case "planar":
		return Planar, nil
	default:
		return Spherical, fmt.Errorf("unknown motion model %q (allowed: planar, spherical)", s)
	}
}

func (k Kind) String() string {
	switch k {
	case Planar:
		return "planar"
	case Spherical:
		return "spherical"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Displace moves (lat, lon) distanceKm along heading (degrees clockwise from north).
// A non-positive distance returns the input unchanged.
func Displace(kind Kind, lat, lon, heading, distanceKm float64) (float64, float64) {
	if distanceKm <= 0 {
		return lat, lon
	}
	switch kind {
	case Planar:
		return displacePlanar(lat, lon, heading, distanceKm)
	default:
		return displaceSpherical(lat, lon, heading, distanceKm)
	}
}

// displacePlanar has no latitude correction on longitude.
func displacePlanar(lat, lon, heading, d float64) (float64, float64) {
	theta := radians(heading)
	lat2 := lat + d*math.Cos(theta)/kmPerDegree
	lon2 := lon + d*math.Sin(theta)/kmPerDegree
	return clampLat(lat2), normalizeLon(lon2)
}

func displaceSpherical(lat, lon, heading, d float64) (float64, float64) {
	phi1 := radians(lat)
	lambda1 := radians(lon)
	theta := radians(heading)
	delta := d / EarthRadiusKm

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(math.Max(-1, math.Min(1, sinPhi2)))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	return degrees(phi2), normalizeLon(degrees(lambda2))
}

// Haversine returns the great-circle distance in km.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// NormalizeHeading folds any angle into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

func ClampSpeed(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func normalizeLon(lon float64) float64 {
	if lon >= -180 && lon < 180 {
		return lon
	}
	return math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }
