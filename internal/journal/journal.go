// Package journal keeps a SQLite record of every publish attempt made during a run.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

type Delivery struct {
	EventID   string
	TruckID   string
	TruckCode string
	Transport string
	Key       string
	OK        bool
	Error     string
	Latitude  float64
	Longitude float64
	Speed     float64
	Heading   int
	EventTime string
	SentAt    time.Time
}

// Totals are the counters written when a run ends.
type Totals struct {
	Iterations int64
	Successful int64
	Failed     int64
}

type Journal struct {
	db        *sql.DB
	runID     int64
	transport string
	now       func() time.Time
}

// Start opens a new run row. The schema must already be migrated.
func Start(ctx context.Context, db *sql.DB, transport string, trucks int, now func() time.Time) (*Journal, error) {
	if now == nil {
		now = time.Now
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO runs (transport, trucks, started_at) VALUES (?, ?, ?)`,
		transport, trucks, now().UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	return &Journal{db: db, runID: id, transport: transport, now: now}, nil
}

func (j *Journal) RunID() int64 { return j.runID }

func (j *Journal) Record(ctx context.Context, d Delivery) error {
	if d.Transport == "" {
		d.Transport = j.transport
	}
	if d.SentAt.IsZero() {
		d.SentAt = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO deliveries
			(run_id, event_id, truck_id, truck_code, transport, route_key, ok, error,
			 latitude, longitude, speed, heading, event_time, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, nullable(d.EventID), d.TruckID, d.TruckCode, d.Transport, nullable(d.Key), d.OK, nullable(d.Error),
		d.Latitude, d.Longitude, d.Speed, d.Heading, d.EventTime, d.SentAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert delivery for %s: %w", d.TruckID, err)
	}
	return nil
}

func (j *Journal) Finish(ctx context.Context, t Totals) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, iterations = ?, successful = ?, failed = ? WHERE id = ?`,
		j.now().UTC().Format(timeLayout), t.Iterations, t.Successful, t.Failed, j.runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", j.runID, err)
	}
	return nil
}

// Recent returns up to limit deliveries of the current run, newest first.
// An empty truckID matches every truck.
func (j *Journal) Recent(ctx context.Context, truckID string, limit int) ([]Delivery, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT COALESCE(event_id, ''), truck_id, truck_code, transport, COALESCE(route_key, ''),
		       ok, COALESCE(error, ''), latitude, longitude, speed, heading, event_time, sent_at
		FROM deliveries
		WHERE run_id = ? AND (? = '' OR truck_id = ?)
		ORDER BY id DESC
		LIMIT ?`,
		j.runID, truckID, truckID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Delivery, 0, limit)
	for rows.Next() {
		var (
			d      Delivery
			sentAt string
		)
		if err := rows.Scan(&d.EventID, &d.TruckID, &d.TruckCode, &d.Transport, &d.Key,
			&d.OK, &d.Error, &d.Latitude, &d.Longitude, &d.Speed, &d.Heading, &d.EventTime, &sentAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if d.SentAt, err = time.Parse(timeLayout, sentAt); err != nil {
			return nil, fmt.Errorf("parse sent_at %q: %w", sentAt, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Run is one simulator process as recorded in the runs table.
type Run struct {
	ID         int64
	Transport  string
	Trucks     int
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or after a crash
	Totals
}

// Runs lists up to limit runs, newest first.
func Runs(ctx context.Context, db *sql.DB, limit int) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, transport, trucks, started_at, COALESCE(finished_at, ''), iterations, successful, failed
		FROM runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Transport, &r.Trucks, &started, &finished,
			&r.Iterations, &r.Successful, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", started, err)
		}
		if finished != "" {
			if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
				return nil, fmt.Errorf("parse finished_at %q: %w", finished, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
