package telemetry

import (
	"fmt"
	"math"
	"time"
)

// Decimal places applied to each floating field before an event leaves the builder.
const (
	CoordinatePrecision = 6
	AltitudePrecision   = 1
	SpeedPrecision      = 1
	AccuracyPrecision   = 1
)

// TimestampLayout is the UTC second-precision format the ingestion API accepts.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Event is one GPS fix of one truck. EventID, TruckIDReadable and IngestedAt
// are only set when the client assigns identifiers.
type Event struct {
	EventID         string  `json:"eventId,omitempty"`
	TruckID         string  `json:"truckId"`
	TruckIDReadable string  `json:"truckIdReadable,omitempty"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Altitude        float64 `json:"altitude"`
	Speed           float64 `json:"speed"`
	Heading         int     `json:"heading"`
	Accuracy        float64 `json:"accuracy"`
	Satellites      int     `json:"satellites"`
	Timestamp       string  `json:"timestamp"`
	IngestedAt      string  `json:"ingestedAt,omitempty"`
}

// Validate applies the same range checks as the ingestion service.
func (e Event) Validate() error {
	if e.TruckID == "" {
		return fmt.Errorf("truckId is required")
	}
	for name, v := range map[string]float64{
		"latitude":  e.Latitude,
		"longitude": e.Longitude,
		"altitude":  e.Altitude,
		"speed":     e.Speed,
		"accuracy":  e.Accuracy,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite, got %v", name, v)
		}
	}
	if e.Latitude < -90 || e.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %.6f", e.Latitude)
	}
	if e.Longitude < -180 || e.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %.6f", e.Longitude)
	}
	if e.Latitude == 0 && e.Longitude == 0 {
		return fmt.Errorf("coordinates (0, 0) indicate signal loss")
	}
	if e.Altitude < -500 || e.Altitude > 9000 {
		return fmt.Errorf("altitude out of range: %.1f m", e.Altitude)
	}
	if e.Speed < 0 || e.Speed > 200 {
		return fmt.Errorf("speed out of range: %.1f km/h", e.Speed)
	}
	if e.Heading < 0 || e.Heading > 359 {
		return fmt.Errorf("heading must be between 0 and 359, got %d", e.Heading)
	}
	if e.Accuracy < 0 {
		return fmt.Errorf("accuracy must be >= 0, got %.1f", e.Accuracy)
	}
	if e.Satellites < 0 {
		return fmt.Errorf("satellites must be >= 0, got %d", e.Satellites)
	}
	if _, err := time.Parse(TimestampLayout, e.Timestamp); err != nil {
		return fmt.Errorf("timestamp %q: %w", e.Timestamp, err)
	}
	return nil
}

// Round rounds v to places decimals. Rounding an already rounded value is a no-op.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// FormatTime renders t in TimestampLayout, converted to UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
