package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trucksim/internal/fleet"
	"trucksim/internal/journal"
	"trucksim/internal/motion"
	"trucksim/internal/simulator"
)

type fakeSource struct {
	phase  simulator.Phase
	totals simulator.Totals
	trucks []fleet.Truck
}

func (f *fakeSource) Phase() simulator.Phase  { return f.phase }
func (f *fakeSource) Stats() simulator.Totals { return f.totals }
func (f *fakeSource) Trucks() []fleet.Truck   { return f.trucks }

type fakeDeliveries struct {
	items    []journal.Delivery
	err      error
	gotTruck string
	gotLimit int
}

func (f *fakeDeliveries) Recent(_ context.Context, truckID string, limit int) ([]journal.Delivery, error) {
	f.gotTruck, f.gotLimit = truckID, limit
	return f.items, f.err
}

var updated = time.Date(2026, 3, 14, 8, 26, 53, 0, time.UTC)

func newSource() *fakeSource {
	return &fakeSource{
		phase:  simulator.Running,
		totals: simulator.Totals{Iterations: 2, Successful: 5, Failed: 1, SuccessRate: 5.0 / 6.0},
		trucks: []fleet.Truck{
			{ID: "u-1", Code: "TRK-001", Label: "Paris Center", State: motion.State{Lat: 48.8566, Lon: 2.3522, Heading: 90, Speed: 36}, UpdatedAt: updated},
			{ID: "u-2", Code: "TRK-002", Label: "La Défense", State: motion.State{Lat: 48.8738, Lon: 2.295}},
		},
	}
}

func newTestServer(t *testing.T, src Source, d Deliveries) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(":0", NewMux(src, d)).Handler)
	t.Cleanup(ts.Close)
	return ts
}

func mustGetJSON[T any](t *testing.T, client *http.Client, url string, out *T) *http.Response {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, newSource(), nil)

	var body map[string]string
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if body["status"] != "ok" || body["phase"] != "RUNNING" {
		t.Fatalf("body=%v", body)
	}

	stopping := newTestServer(t, &fakeSource{phase: simulator.ShuttingDown}, nil)
	var stoppingBody map[string]string
	resp = mustGetJSON(t, stopping.Client(), stopping.URL+"/healthz", &stoppingBody)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want=%d while shutting down", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if stoppingBody["status"] != "unavailable" || stoppingBody["phase"] != "SHUTTING_DOWN" {
		t.Fatalf("body=%v while shutting down", stoppingBody)
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, newSource(), nil)

	var body map[string]any
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/v1/stats", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if body["phase"] != "RUNNING" {
		t.Errorf("phase=%v", body["phase"])
	}
	if body["iterations"] != 2.0 || body["successful"] != 5.0 || body["failed"] != 1.0 {
		t.Errorf("counters=%v", body)
	}
	if rate, _ := body["successRate"].(float64); rate < 0.83 || rate > 0.84 {
		t.Errorf("successRate=%v", body["successRate"])
	}
}

func TestTrucks(t *testing.T) {
	ts := newTestServer(t, newSource(), nil)

	var trucks []truckView
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/v1/trucks", &trucks)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if len(trucks) != 2 {
		t.Fatalf("got %d trucks, want 2", len(trucks))
	}
	if trucks[0].Code != "TRK-001" || trucks[0].Heading != 90 || !trucks[0].UpdatedAt.Equal(updated) {
		t.Errorf("trucks[0]=%+v", trucks[0])
	}
}

func TestTruckByIDOrCode(t *testing.T) {
	ts := newTestServer(t, newSource(), nil)

	for _, key := range []string{"u-2", "TRK-002"} {
		var tv truckView
		resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/v1/trucks/"+key, &tv)
		if resp.StatusCode != http.StatusOK || tv.ID != "u-2" {
			t.Errorf("GET %s: status=%d truck=%+v", key, resp.StatusCode, tv)
		}
	}

	var body map[string]any
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/v1/trucks/nope", &body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusNotFound)
	}
	if _, ok := body["message"]; !ok {
		t.Fatalf("expected message field, got %v", body)
	}
}

func TestDeliveries(t *testing.T) {
	d := &fakeDeliveries{items: []journal.Delivery{
		{EventID: "evt_1", TruckID: "u-1", TruckCode: "TRK-001", Transport: "http", OK: true, EventTime: "2026-03-14T08:26:53Z", SentAt: updated},
	}}
	ts := newTestServer(t, newSource(), d)

	var body struct {
		Limit int            `json:"limit"`
		Items []deliveryView `json:"items"`
	}
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/v1/deliveries?truckId=u-1&limit=10", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}
	if d.gotTruck != "u-1" || d.gotLimit != 10 || body.Limit != 10 {
		t.Errorf("query passed as truck=%q limit=%d", d.gotTruck, d.gotLimit)
	}
	if len(body.Items) != 1 || body.Items[0].EventID != "evt_1" || body.Items[0].Timestamp != "2026-03-14T08:26:53Z" {
		t.Errorf("items=%+v", body.Items)
	}
}

func TestDeliveries_Errors(t *testing.T) {
	tests := []struct {
		name   string
		d      *fakeDeliveries
		query  string
		status int
	}{
		{name: "bad limit", d: &fakeDeliveries{}, query: "?limit=abc", status: http.StatusBadRequest},
		{name: "limit too large", d: &fakeDeliveries{}, query: "?limit=1000", status: http.StatusBadRequest},
		{name: "journal failure", d: &fakeDeliveries{err: errors.New("disk I/O error")}, status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, newSource(), tt.d)
			var body map[string]any
			resp := mustGetJSON(t, ts.Client(), ts.URL+"/api/v1/deliveries"+tt.query, &body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status=%d want=%d", resp.StatusCode, tt.status)
			}
			if _, ok := body["error"]; !ok {
				t.Fatalf("expected error field, got %v", body)
			}
		})
	}
}

func TestRouting(t *testing.T) {
	ts := newTestServer(t, newSource(), nil)

	resp, err := ts.Client().Get(ts.URL + "/api/v1/deliveries")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deliveries without journal: status=%d want=%d", resp.StatusCode, http.StatusNotFound)
	}

	resp, err = ts.Client().Post(ts.URL+"/healthz", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /healthz: status=%d want=%d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}
