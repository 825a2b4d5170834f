// Package locationapi talks to the location service that owns the truck registry
// and the latest accepted position of every truck.
package locationapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trucksim/internal/fleet"
)

// ErrNoPosition is returned when the service knows the truck but holds no fix for it.
var ErrNoPosition = errors.New("no current position")

type Options struct {
	BaseURL  string
	Token    string
	PageSize int
	MaxPages int
	Timeout  time.Duration
	HTTP     *http.Client
}

type Client struct {
	baseURL  string
	token    string
	pageSize int
	maxPages int
	http     *http.Client
}

func New(opts Options) *Client {
	hc := opts.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 20
	}
	return &Client{
		baseURL:  opts.BaseURL,
		token:    opts.Token,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		http:     hc,
	}
}

type truckDTO struct {
	ID               string   `json:"id"`
	TruckID          string   `json:"truckId"`
	DriverName       string   `json:"driverName"`
	Status           string   `json:"status"`
	CurrentLatitude  *float64 `json:"currentLatitude"`
	CurrentLongitude *float64 `json:"currentLongitude"`
	CurrentSpeed     *float64 `json:"currentSpeed"`
	CurrentHeading   *float64 `json:"currentHeading"`
}

type page struct {
	Content    []truckDTO `json:"content"`
	Last       bool       `json:"last"`
	TotalPages int        `json:"totalPages"`
}

// ListTrucks walks the paginated truck listing and returns one seed per truck.
// Trucks without a reported position come back with nil coordinates.
func (c *Client) ListTrucks(ctx context.Context) ([]fleet.Seed, error) {
	var seeds []fleet.Seed
	for p := 0; p < c.maxPages; p++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(p))
		q.Set("size", strconv.Itoa(c.pageSize))

		var pg page
		if err := c.getJSON(ctx, c.baseURL+"?"+q.Encode(), &pg); err != nil {
			return nil, fmt.Errorf("list trucks page %d: %w", p, err)
		}
		for _, t := range pg.Content {
			if t.ID == "" {
				continue
			}
			s := fleet.Seed{ID: t.ID, Code: t.TruckID, Label: t.DriverName, Speed: t.CurrentSpeed, Heading: t.CurrentHeading}
			if t.CurrentLatitude != nil && t.CurrentLongitude != nil {
				s.Lat, s.Lon = t.CurrentLatitude, t.CurrentLongitude
			}
			seeds = append(seeds, s)
		}

		if pg.Last || len(pg.Content) == 0 || (pg.TotalPages > 0 && p+1 >= pg.TotalPages) {
			break
		}
	}
	slog.Debug("trucks discovered", "count", len(seeds))
	return seeds, nil
}

// Position is the last fix the location service accepted for a truck.
type Position struct {
	EventID   string  `json:"eventId"`
	TruckID   string  `json:"truckId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   int     `json:"heading"`
	Timestamp string  `json:"timestamp"`
}

func (c *Client) CurrentPosition(ctx context.Context, truckID string) (Position, error) {
	var pos Position
	u := c.baseURL + "/" + url.PathEscape(truckID) + "/current-position"
	if err := c.getJSON(ctx, u, &pos); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return Position{}, fmt.Errorf("truck %s: %w", truckID, ErrNoPosition)
		}
		return Position{}, fmt.Errorf("current position of %s: %w", truckID, err)
	}
	return pos, nil
}

// Status reports a one-line summary of the truck's last accepted fix, for the
// shutdown report.
func (c *Client) Status(ctx context.Context, truckID string) (string, error) {
	pos, err := c.CurrentPosition(ctx, truckID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%.6f, %.6f) %.1f km/h at %s", pos.Latitude, pos.Longitude, pos.Speed, pos.Timestamp), nil
}

// StatusError carries a non-success response from the location service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
