package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trucksim/internal/config"
	"trucksim/internal/db"
	"trucksim/internal/simulator"
)

func testConfig() config.Config {
	return config.Config{
		AppEnv:            "dev",
		Transport:         config.TransportHTTP,
		PublishTimeout:    time.Second,
		UpdateInterval:    50 * time.Millisecond,
		MotionModel:       "spherical",
		SpeedMax:          80,
		SpeedDeltaMin:     -10,
		SpeedDeltaMax:     15,
		TurnProbability:   0.3,
		TurnMaxDeg:        30,
		TrafficFactorMin:  0.7,
		TruckSource:       config.SourceStatic,
		DiscoveryPageSize: 50,
		DiscoveryMaxPages: 20,
		SeedLat:           48.8566,
		SeedLon:           2.3522,
		SeedRadiusKm:      5,
		RandomSeed:        42,
		MaxOpenConns:      1,
		MaxIdleConns:      1,
	}
}

type ingestion struct {
	mu     sync.Mutex
	trucks map[string]int
}

func newIngestion(t *testing.T) (*ingestion, *httptest.Server) {
	t.Helper()
	in := &ingestion{trucks: map[string]int{}}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, _ := body["truckId"].(string)
		in.mu.Lock()
		in.trucks[id]++
		n := in.trucks[id]
		in.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "accepted", "eventId": fmt.Sprintf("evt-%s-%d", id, n)})
	}))
	t.Cleanup(ts.Close)
	return in, ts
}

func (in *ingestion) count() (trucks, events int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, n := range in.trucks {
		events += n
	}
	return len(in.trucks), events
}

func TestRun_HTTPTransportWithJournal(t *testing.T) {
	in, ts := newIngestion(t)

	cfg := testConfig()
	cfg.IngestionURL = ts.URL
	cfg.StatusCheck = false
	cfg.JournalPath = filepath.Join(t.TempDir(), "journal.db")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, cfg, &out)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	trucks, events := in.count()
	assert.Equal(t, 3, trucks)
	assert.GreaterOrEqual(t, events, 6)
	assert.Contains(t, out.String(), "Simulation summary")
	assert.Contains(t, out.String(), "TRK-001")

	conn, err := db.Open(context.Background(), db.Options{Path: cfg.JournalPath}, nil)
	require.NoError(t, err)
	defer conn.Close()

	var delivered, runs int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM deliveries WHERE ok = 1`).Scan(&delivered))
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM runs WHERE finished_at IS NOT NULL`).Scan(&runs))
	assert.Equal(t, events, delivered)
	assert.Equal(t, 1, runs)
}

func TestRun_DiscoverWithoutTrucks(t *testing.T) {
	location := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[],"last":true,"totalPages":0}`))
	}))
	defer location.Close()

	cfg := testConfig()
	cfg.TruckSource = config.SourceDiscover
	cfg.LocationURL = location.URL

	err := run(context.Background(), cfg, &bytes.Buffer{})
	require.ErrorIs(t, err, simulator.ErrNoTrucks)
}

func TestRun_DiscoverFailure(t *testing.T) {
	location := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer location.Close()

	cfg := testConfig()
	cfg.TruckSource = config.SourceDiscover
	cfg.LocationURL = location.URL

	err := run(context.Background(), cfg, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discover trucks")
}

func TestRun_InvalidMotionModel(t *testing.T) {
	cfg := testConfig()
	cfg.MotionModel = "vincenty"

	err := run(context.Background(), cfg, &bytes.Buffer{})
	require.Error(t, err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	srv := &http.Server{Addr: "256.0.0.1:bad", Handler: http.NotFoundHandler()}

	err := serve(context.Background(), srv)
	require.Error(t, err)
	assert.False(t, errors.Is(err, http.ErrServerClosed))
}

func TestBoundsFromConfig(t *testing.T) {
	cfg := testConfig()
	b := boundsFromConfig(cfg)
	assert.Nil(t, b.Region)
	assert.Equal(t, 80.0, b.SpeedMax)

	cfg.Region = &[4]float64{48.8, 2.2, 48.9, 2.4}
	b = boundsFromConfig(cfg)
	require.NotNil(t, b.Region)
	assert.Equal(t, 48.8, b.Region.MinLat)
	assert.Equal(t, 2.4, b.Region.MaxLon)
}

func TestNewRand_Deterministic(t *testing.T) {
	a, b := newRand(7), newRand(7)
	for range 5 {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}
