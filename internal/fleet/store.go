// Package fleet holds the simulated trucks and their last known kinematic state.
package fleet

import (
	"fmt"
	"sync"
	"time"

	"trucksim/internal/motion"
)

type Truck struct {
	ID        string
	Code      string
	Label     string
	State     motion.State
	UpdatedAt time.Time
}

// Store keeps trucks in insertion order. Only the simulator writes to it;
// the monitoring API reads snapshots concurrently.
type Store struct {
	mu     sync.RWMutex
	order  []string
	trucks map[string]*Truck
}

func NewStore(trucks []Truck) (*Store, error) {
	s := &Store{trucks: make(map[string]*Truck, len(trucks))}
	for _, t := range trucks {
		if t.ID == "" {
			return nil, fmt.Errorf("truck with empty id (code %q)", t.Code)
		}
		if _, dup := s.trucks[t.ID]; dup {
			return nil, fmt.Errorf("duplicate truck id %q", t.ID)
		}
		s.trucks[t.ID] = &t
		s.order = append(s.order, t.ID)
	}
	return s, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// IDs returns truck ids in list order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *Store) Get(id string) (Truck, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trucks[id]
	if !ok {
		return Truck{}, false
	}
	return *t, true
}

// Update replaces the kinematic state of truck id.
func (s *Store) Update(id string, st motion.State, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trucks[id]
	if !ok {
		return fmt.Errorf("unknown truck %q", id)
	}
	t.State = st
	t.UpdatedAt = at
	return nil
}

func (s *Store) Snapshot() []Truck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Truck, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.trucks[id])
	}
	return out
}
