package fleet

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/spf13/viper"

	"trucksim/internal/motion"
)

// Seed describes a truck before it enters the store. Nil kinematic fields are
// filled in by a Seeder.
type Seed struct {
	ID      string   `mapstructure:"id"`
	Code    string   `mapstructure:"code"`
	Label   string   `mapstructure:"label"`
	Lat     *float64 `mapstructure:"latitude"`
	Lon     *float64 `mapstructure:"longitude"`
	Heading *float64 `mapstructure:"heading"`
	Speed   *float64 `mapstructure:"speed"`
}

func ptr(v float64) *float64 { return &v }

// DefaultSeeds is the built-in demo fleet around Paris. Trucks start parked.
func DefaultSeeds() []Seed {
	return []Seed{
		{ID: "00000000-0000-0000-0000-000000000010", Code: "TRK-001", Label: "Paris Center", Lat: ptr(48.8566), Lon: ptr(2.3522), Speed: ptr(0)},
		{ID: "00000000-0000-0000-0000-000000000011", Code: "TRK-002", Label: "La Défense", Lat: ptr(48.8738), Lon: ptr(2.2950), Speed: ptr(0)},
		{ID: "00000000-0000-0000-0000-000000000013", Code: "TRK-004", Label: "Bercy", Lat: ptr(48.8456), Lon: ptr(2.3708), Speed: ptr(0)},
	}
}

type fleetFile struct {
	Trucks []Seed `mapstructure:"trucks"`
}

// LoadFile reads a YAML, JSON or TOML file with a top-level "trucks" list.
func LoadFile(path string) ([]Seed, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read fleet file %s: %w", path, err)
	}

	var f fleetFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode fleet file %s: %w", path, err)
	}
	if len(f.Trucks) == 0 {
		return nil, fmt.Errorf("fleet file %s lists no trucks", path)
	}
	for i, s := range f.Trucks {
		if s.ID == "" {
			return nil, fmt.Errorf("fleet file %s: truck #%d has no id", path, i+1)
		}
	}
	return f.Trucks, nil
}

// Seeder completes seeds into trucks. Missing positions are scattered within
// RadiusKm of the centre; missing heading and speed are drawn at random.
type Seeder struct {
	CenterLat float64
	CenterLon float64
	RadiusKm  float64
	Bounds    motion.Bounds
	Rand      *rand.Rand
	Now       time.Time
}

func (sd Seeder) Trucks(seeds []Seed) []Truck {
	rng := sd.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	out := make([]Truck, 0, len(seeds))
	for _, s := range seeds {
		var st motion.State
		if s.Lat != nil && s.Lon != nil {
			st.Lat, st.Lon = *s.Lat, *s.Lon
		} else {
			// sqrt keeps the scatter uniform over the disc
			d := sd.RadiusKm * math.Sqrt(rng.Float64())
			st.Lat, st.Lon = motion.Displace(motion.Spherical, sd.CenterLat, sd.CenterLon, rng.Float64()*360, d)
		}
		if s.Heading != nil {
			st.Heading = motion.NormalizeHeading(*s.Heading)
		} else {
			st.Heading = float64(rng.IntN(360))
		}
		if s.Speed != nil {
			st.Speed = *s.Speed
		} else {
			st.Speed = sd.Bounds.SpeedMin + rng.Float64()*(sd.Bounds.SpeedMax-sd.Bounds.SpeedMin)
		}
		st.Speed = motion.ClampSpeed(st.Speed, sd.Bounds.SpeedMin, sd.Bounds.SpeedMax)
		if r := sd.Bounds.Region; r != nil {
			st.Lat, st.Lon = r.Clamp(st.Lat, st.Lon)
		}

		code := s.Code
		if code == "" {
			code = s.ID
		}
		label := s.Label
		if label == "" {
			label = code
		}
		out = append(out, Truck{ID: s.ID, Code: code, Label: label, State: st, UpdatedAt: sd.Now})
	}
	return out
}
