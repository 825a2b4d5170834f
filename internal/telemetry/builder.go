// Package telemetry turns a truck's kinematic state into a transport-ready event.
package telemetry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"trucksim/internal/motion"
)

// Mode decides who assigns event identifiers.
type Mode int

const (
	// ServerAssigned leaves eventId empty; the receiving API returns one.
	ServerAssigned Mode = iota
	// ClientAssigned stamps a fresh eventId, the readable truck code and ingestedAt.
	ClientAssigned
)

type Range struct {
	Min float64
	Max float64
}

// Sensors are the ranges of the simulated receiver-quality fields.
type Sensors struct {
	Altitude      Range
	Accuracy      Range
	SatellitesMin int
	SatellitesMax int
}

func DefaultSensors() Sensors {
	return Sensors{
		Altitude:      Range{Min: 50, Max: 150},
		Accuracy:      Range{Min: 3, Max: 15},
		SatellitesMin: 8,
		SatellitesMax: 12,
	}
}

type BuilderConfig struct {
	Mode    Mode
	Sensors Sensors
	Rand    *rand.Rand
	Clock   func() time.Time
	NewID   func() string
}

type Builder struct {
	mode    Mode
	sensors Sensors
	rng     *rand.Rand
	clock   func() time.Time
	newID   func() string
}

func NewBuilder(cfg BuilderConfig) *Builder {
	b := &Builder{
		mode:    cfg.Mode,
		sensors: cfg.Sensors,
		rng:     cfg.Rand,
		clock:   cfg.Clock,
		newID:   cfg.NewID,
	}
	if b.sensors == (Sensors{}) {
		b.sensors = DefaultSensors()
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	if b.newID == nil {
		b.newID = uuid.NewString
	}
	return b
}

func (b *Builder) Mode() Mode { return b.mode }

// Build snapshots s for the given truck.
func (b *Builder) Build(truckID, truckCode string, s motion.State) Event {
	now := b.clock()
	ev := Event{
		TruckID:    truckID,
		Latitude:   Round(s.Lat, CoordinatePrecision),
		Longitude:  Round(s.Lon, CoordinatePrecision),
		Altitude:   Round(b.uniform(b.sensors.Altitude), AltitudePrecision),
		Speed:      Round(s.Speed, SpeedPrecision),
		Heading:    int(math.Round(motion.NormalizeHeading(s.Heading))) % 360,
		Accuracy:   Round(b.uniform(b.sensors.Accuracy), AccuracyPrecision),
		Satellites: b.satellites(),
		Timestamp:  FormatTime(now),
	}
	if b.mode == ClientAssigned {
		ev.EventID = b.newID()
		ev.TruckIDReadable = truckCode
		ev.IngestedAt = FormatTime(now)
	}
	return ev
}

func (b *Builder) uniform(r Range) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + b.rng.Float64()*(r.Max-r.Min)
}

func (b *Builder) satellites() int {
	lo, hi := b.sensors.SatellitesMin, b.sensors.SatellitesMax
	if hi <= lo {
		return lo
	}
	return lo + b.rng.IntN(hi-lo+1)
}
