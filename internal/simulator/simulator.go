// Package simulator drives the fleet: once per interval every truck is moved,
// turned into a telemetry event and published.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"golang.org/x/time/rate"

	"trucksim/internal/fleet"
	"trucksim/internal/journal"
	"trucksim/internal/motion"
	"trucksim/internal/telemetry"
	"trucksim/internal/transport"
)

var ErrNoTrucks = errors.New("no trucks to simulate")

// StatusChecker looks up what the backend currently knows about a truck.
type StatusChecker interface {
	Status(ctx context.Context, truckID string) (string, error)
}

// Journal records publish attempts and the run's final totals.
type Journal interface {
	Record(ctx context.Context, d journal.Delivery) error
	Finish(ctx context.Context, t journal.Totals) error
}

type Options struct {
	Interval       time.Duration
	Pacing         time.Duration
	PublishTimeout time.Duration
	StatusTimeout  time.Duration
	Transport      string
}

type Deps struct {
	Store     *fleet.Store
	Model     *motion.Model
	Builder   *telemetry.Builder
	Publisher transport.Publisher
	Status    StatusChecker
	Journal   Journal
	Logger    *slog.Logger
	// Out receives the human-readable shutdown summary.
	Out   io.Writer
	Clock func() time.Time
}

type TruckStatus struct {
	TruckID string
	Code    string
	Label   string
	Status  string
}

// Report is what the shutdown phase printed.
type Report struct {
	Totals   Totals
	Statuses []TruckStatus
}

type Simulator struct {
	opts    Options
	deps    Deps
	logger  *slog.Logger
	clock   func() time.Time
	limiter *rate.Limiter

	phase atomic.Int32
	stats Stats

	shutdownOnce sync.Once
	report       Report
}

func New(opts Options, deps Deps) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = opts.PublishTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	s := &Simulator{opts: opts, deps: deps, logger: deps.Logger, clock: deps.Clock}
	if opts.Pacing > 0 {
		s.limiter = rate.NewLimiter(rate.Every(opts.Pacing), 1)
	}
	return s
}

func (s *Simulator) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Simulator) Stats() Totals { return s.stats.Snapshot() }

func (s *Simulator) Trucks() []fleet.Truck {
	if s.deps.Store == nil {
		return nil
	}
	return s.deps.Store.Snapshot()
}

// Report is only meaningful once Run has returned.
func (s *Simulator) Report() Report { return s.report }

// Run ticks immediately and then once per interval until ctx is cancelled.
// Cancellation is observed between ticks only; the shutdown summary runs once.
func (s *Simulator) Run(ctx context.Context) error {
	if s.deps.Store == nil || s.deps.Store.Len() == 0 {
		return ErrNoTrucks
	}

	s.phase.Store(int32(Running))
	s.logger.Info("simulation started",
		"trucks", s.deps.Store.Len(),
		"transport", s.opts.Transport,
		"interval", s.opts.Interval.String(),
		"motion_model", s.deps.Model.Kind().String(),
	)
	defer s.shutdown()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Simulator) tick(ctx context.Context) {
	iteration := s.stats.iterations.Add(1)
	var ok, failed int

	// in-flight work is not preempted by cancellation
	work := context.WithoutCancel(ctx)
	for _, id := range s.deps.Store.IDs() {
		if s.limiter != nil {
			_ = s.limiter.Wait(work)
		}
		if s.step(work, id) {
			ok++
		} else {
			failed++
		}
	}

	s.logger.Info("iteration complete", "iteration", iteration, "successful", ok, "failed", failed)
}

// step advances one truck and publishes its new position. It reports whether
// the event was delivered.
func (s *Simulator) step(ctx context.Context, id string) bool {
	truck, found := s.deps.Store.Get(id)
	if !found {
		return false
	}

	now := s.clock()
	elapsed := s.opts.Interval
	if !truck.UpdatedAt.IsZero() {
		if d := now.Sub(truck.UpdatedAt); d > 0 {
			elapsed = d
		}
	}

	next := s.deps.Model.Advance(truck.State, elapsed)
	ev := s.deps.Builder.Build(truck.ID, truck.Code, next)
	if err := s.deps.Store.Update(id, next, now); err != nil {
		s.logger.Error("update truck state", "truck_id", id, "error", err)
	}

	ack, err := s.publish(ctx, ev)
	if err != nil {
		s.stats.failed.Add(1)
		s.logger.Warn("publish failed",
			"truck_id", truck.ID,
			"truck", truck.Code,
			"error", err,
		)
	} else {
		s.stats.successful.Add(1)
		s.logger.Info("position sent",
			"truck", truck.Code,
			"label", truck.Label,
			"lat", ev.Latitude,
			"lon", ev.Longitude,
			"speed", ev.Speed,
			"heading", ev.Heading,
			"event_id", ack.EventID,
		)
	}

	s.record(ctx, truck, ev, ack, err)
	return err == nil
}

func (s *Simulator) publish(ctx context.Context, ev telemetry.Event) (transport.Ack, error) {
	if err := ev.Validate(); err != nil {
		return transport.Ack{}, fmt.Errorf("invalid event: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()
	return s.deps.Publisher.Publish(pctx, ev)
}

func (s *Simulator) record(ctx context.Context, t fleet.Truck, ev telemetry.Event, ack transport.Ack, pubErr error) {
	if s.deps.Journal == nil {
		return
	}
	d := journal.Delivery{
		EventID:   ack.EventID,
		TruckID:   t.ID,
		TruckCode: t.Code,
		Transport: s.opts.Transport,
		Key:       ack.Key,
		OK:        pubErr == nil,
		Latitude:  ev.Latitude,
		Longitude: ev.Longitude,
		Speed:     ev.Speed,
		Heading:   ev.Heading,
		EventTime: ev.Timestamp,
		SentAt:    s.clock(),
	}
	if pubErr != nil {
		d.Error = pubErr.Error()
	}
	if err := s.deps.Journal.Record(ctx, d); err != nil {
		s.logger.Warn("journal write failed", "truck_id", t.ID, "error", err)
	}
}

func (s *Simulator) shutdown() {
	s.shutdownOnce.Do(func() {
		s.phase.Store(int32(ShuttingDown))
		totals := s.stats.Snapshot()
		s.report.Totals = totals

		s.logger.Info("simulation stopped",
			"iterations", totals.Iterations,
			"successful", totals.Successful,
			"failed", totals.Failed,
			"success_rate", totals.SuccessRate,
		)

		if s.deps.Journal != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.StatusTimeout)
			err := s.deps.Journal.Finish(ctx, journal.Totals{
				Iterations: totals.Iterations,
				Successful: totals.Successful,
				Failed:     totals.Failed,
			})
			cancel()
			if err != nil {
				s.logger.Warn("journal finish failed", "error", err)
			}
		}

		s.report.Statuses = s.checkStatuses()
		s.printReport()
	})
}

const statusUnknown = "unknown"

// checkStatuses lists every truck, marking it unknown when no checker is set
// or the lookup fails.
func (s *Simulator) checkStatuses() []TruckStatus {
	trucks := s.deps.Store.Snapshot()
	out := make([]TruckStatus, 0, len(trucks))
	for _, t := range trucks {
		status := statusUnknown
		if s.deps.Status != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.StatusTimeout)
			got, err := s.deps.Status.Status(ctx, t.ID)
			cancel()
			if err != nil {
				s.logger.Warn("could not fetch status", "truck_id", t.ID, "truck", t.Code, "error", err)
			} else {
				status = got
			}
		}
		out = append(out, TruckStatus{TruckID: t.ID, Code: t.Code, Label: t.Label, Status: status})
	}
	return out
}

func (s *Simulator) printReport() {
	r := s.report
	w := tabwriter.NewWriter(s.deps.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Simulation summary")
	fmt.Fprintf(w, "  iterations\t%d\n", r.Totals.Iterations)
	fmt.Fprintf(w, "  successful\t%d\n", r.Totals.Successful)
	fmt.Fprintf(w, "  failed\t%d\n", r.Totals.Failed)
	fmt.Fprintf(w, "  success rate\t%.1f%%\n", r.Totals.SuccessRate*100)
	if len(r.Statuses) > 0 {
		fmt.Fprintln(w, "Truck status")
		for _, ts := range r.Statuses {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", ts.Code, ts.Label, ts.Status)
		}
	}
	if err := w.Flush(); err != nil {
		s.logger.Warn("write summary", "error", err)
	}
}
