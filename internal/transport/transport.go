// Package transport defines the seam between the simulator and the system
// that receives telemetry.
package transport

import (
	"context"

	"trucksim/internal/telemetry"
)

// Ack identifies a delivered event. EventID is whatever id the receiving side
// reports or, for bus transports, the client-assigned id. Key is the routing
// key the event was sent under.
type Ack struct {
	EventID string
	Key     string
}

type Publisher interface {
	Publish(ctx context.Context, ev telemetry.Event) (Ack, error)
	Close() error
}
