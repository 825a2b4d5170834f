// Package motion advances a truck's kinematic state by one tick.
package motion

import (
	"math/rand/v2"
	"time"
)

// State is a truck's kinematic state. Heading is degrees in [0, 360), speed km/h.
type State struct {
	Lat     float64
	Lon     float64
	Heading float64
	Speed   float64
}

type Bounds struct {
	SpeedMin float64
	SpeedMax float64

	// Additive speed jitter, sampled uniformly in [SpeedDeltaMin, SpeedDeltaMax).
	SpeedDeltaMin float64
	SpeedDeltaMax float64
	// SpeedChangeProbability of 1 perturbs speed every tick.
	SpeedChangeProbability float64

	TurnProbability float64
	TurnMaxDeg      int

	// TrafficFactorMin scales distance by a factor in (TrafficFactorMin, 1]. 1 disables it.
	TrafficFactorMin float64

	Region *Region
}

func DefaultBounds() Bounds {
	return Bounds{
		SpeedMin:               0,
		SpeedMax:               80,
		SpeedDeltaMin:          -10,
		SpeedDeltaMax:          15,
		SpeedChangeProbability: 1,
		TurnProbability:        0.3,
		TurnMaxDeg:             30,
		TrafficFactorMin:       0.7,
	}
}

type Model struct {
	kind   Kind
	bounds Bounds
	rng    *rand.Rand
}

func New(kind Kind, bounds Bounds, rng *rand.Rand) *Model {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Model{kind: kind, bounds: bounds, rng: rng}
}

func (m *Model) Kind() Kind     { return m.kind }
func (m *Model) Bounds() Bounds { return m.bounds }

// Advance returns the state after elapsed time has passed.
func (m *Model) Advance(s State, elapsed time.Duration) State {
	b := m.bounds
	next := s

	if b.SpeedChangeProbability > 0 && m.rng.Float64() < b.SpeedChangeProbability {
		next.Speed += b.SpeedDeltaMin + m.rng.Float64()*(b.SpeedDeltaMax-b.SpeedDeltaMin)
	}
	next.Speed = ClampSpeed(next.Speed, b.SpeedMin, b.SpeedMax)

	next.Heading = NormalizeHeading(next.Heading)
	if b.TurnMaxDeg > 0 && b.TurnProbability > 0 && m.rng.Float64() < b.TurnProbability {
		delta := m.rng.IntN(2*b.TurnMaxDeg+1) - b.TurnMaxDeg
		next.Heading = NormalizeHeading(next.Heading + float64(delta))
	}

	distance := Distance(next.Speed, elapsed) * m.trafficFactor()
	lat, lon := Displace(m.kind, s.Lat, s.Lon, next.Heading, distance)

	if r := b.Region; r != nil {
		reversed := false
		if lat < r.MinLat || lat > r.MaxLat {
			lat = s.Lat
			reversed = true
		}
		if lon < r.MinLon || lon > r.MaxLon {
			lon = s.Lon
			reversed = true
		}
		if reversed {
			next.Heading = NormalizeHeading(next.Heading + 180)
		}
		lat, lon = r.Clamp(lat, lon)
	}

	next.Lat, next.Lon = lat, lon
	return next
}

// Distance is the km covered at speedKmh over elapsed.
func Distance(speedKmh float64, elapsed time.Duration) float64 {
	if speedKmh <= 0 || elapsed <= 0 {
		return 0
	}
	return speedKmh * elapsed.Seconds() / 3600
}

func (m *Model) trafficFactor() float64 {
	lo := m.bounds.TrafficFactorMin
	if lo <= 0 || lo >= 1 {
		return 1
	}
	return 1 - m.rng.Float64()*(1-lo)
}
