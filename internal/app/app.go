package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"trucksim/internal/config"
	"trucksim/internal/db"
	"trucksim/internal/fleet"
	"trucksim/internal/httpapi"
	"trucksim/internal/journal"
	"trucksim/internal/kafka"
	"trucksim/internal/locationapi"
	"trucksim/internal/migrate"
	"trucksim/internal/motion"
	"trucksim/internal/mqtt"
	"trucksim/internal/simulator"
	"trucksim/internal/telemetry"
	"trucksim/internal/transport"
	"trucksim/internal/transport/httppub"
)

const mqttConnectTimeout = 5 * time.Second

func Run(ctx context.Context, cfg config.Config) error {
	return run(ctx, cfg, os.Stdout)
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"transport", cfg.Transport,
		"ingestionURL", cfg.IngestionURL,
		"locationURL", cfg.LocationURL,
		"kafkaBrokers", cfg.KafkaBrokers,
		"kafkaTopic", cfg.KafkaTopic,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"updateInterval", cfg.UpdateInterval,
		"motionModel", cfg.MotionModel,
		"truckSource", cfg.TruckSource,
		"journalPath", cfg.JournalPath,
	)

	kind, err := motion.ParseKind(cfg.MotionModel)
	if err != nil {
		return err
	}
	master := newRand(cfg.RandomSeed)
	bounds := boundsFromConfig(cfg)

	location := locationapi.New(locationapi.Options{
		BaseURL:  cfg.LocationURL,
		Token:    cfg.LocationToken,
		PageSize: cfg.DiscoveryPageSize,
		MaxPages: cfg.DiscoveryMaxPages,
		Timeout:  cfg.PublishTimeout,
	})

	seeds, err := loadSeeds(ctx, cfg, location)
	if err != nil {
		return err
	}
	seeder := fleet.Seeder{
		CenterLat: cfg.SeedLat,
		CenterLon: cfg.SeedLon,
		RadiusKm:  cfg.SeedRadiusKm,
		Bounds:    bounds,
		Rand:      child(master),
	}
	store, err := fleet.NewStore(seeder.Trucks(seeds))
	if err != nil {
		return fmt.Errorf("build fleet: %w", err)
	}
	if store.Len() == 0 {
		return fmt.Errorf("%s source: %w", cfg.TruckSource, simulator.ErrNoTrucks)
	}
	for _, t := range store.Snapshot() {
		slog.Info("truck loaded", "truck", t.Code, "label", t.Label, "lat", t.State.Lat, "lon", t.State.Lon)
	}

	pub, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := pub.Close(); closeErr != nil {
			slog.Error("publisher close", "error", closeErr)
		}
	}()

	var deliveries *journal.Journal
	if cfg.JournalPath != "" {
		conn, err := openJournalDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := conn.Close(); closeErr != nil {
				slog.Error("db close", "error", closeErr)
			}
		}()
		deliveries, err = journal.Start(ctx, conn, cfg.Transport, store.Len(), nil)
		if err != nil {
			return err
		}
		slog.Info("delivery journal enabled", "path", cfg.JournalPath, "run_id", deliveries.RunID())
	}

	mode := telemetry.ClientAssigned
	if cfg.Transport == config.TransportHTTP {
		mode = telemetry.ServerAssigned
	}

	deps := simulator.Deps{
		Store:     store,
		Model:     motion.New(kind, bounds, child(master)),
		Builder:   telemetry.NewBuilder(telemetry.BuilderConfig{Mode: mode, Rand: child(master)}),
		Publisher: pub,
		Logger:    slog.Default(),
		Out:       out,
	}
	if cfg.StatusCheck {
		deps.Status = location
	}
	if deliveries != nil {
		deps.Journal = deliveries
	}
	sim := simulator.New(simulator.Options{
		Interval:       cfg.UpdateInterval,
		Pacing:         cfg.TruckPacing,
		PublishTimeout: cfg.PublishTimeout,
		Transport:      cfg.Transport,
	}, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sim.Run(gctx) })

	if cfg.HTTPAddr != "" {
		var src httpapi.Deliveries
		if deliveries != nil {
			src = deliveries
		}
		srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(sim, src))
		g.Go(func() error { return serve(gctx, srv) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func loadSeeds(ctx context.Context, cfg config.Config, location *locationapi.Client) ([]fleet.Seed, error) {
	switch cfg.TruckSource {
	case config.SourceFile:
		return fleet.LoadFile(cfg.FleetFile)
	case config.SourceDiscover:
		seeds, err := location.ListTrucks(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover trucks: %w", err)
		}
		return seeds, nil
	default:
		return fleet.DefaultSeeds(), nil
	}
}

func newPublisher(ctx context.Context, cfg config.Config) (transport.Publisher, error) {
	switch cfg.Transport {
	case config.TransportKafka:
		return kafka.NewProducer(kafka.Options{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Timeout: cfg.PublishTimeout,
		}, slog.Default()), nil

	case config.TransportMQTT:
		p := mqtt.NewPublisher(mqtt.Options{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Timeout:     cfg.PublishTimeout,
		}, slog.Default())

		// Publishes fail and are counted until the broker is reachable.
		connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err := p.Connect(connectCtx)
		cancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing, paho keeps retrying)", "error", err)
		}
		return p, nil

	case config.TransportHTTP:
		return httppub.New(cfg.IngestionURL, cfg.PublishTimeout, nil), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func openJournalDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	conn, err := db.Open(ctx, db.Options{
		Path:            cfg.JournalPath,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, slog.Default())
	if err != nil {
		return nil, err
	}
	if err := migrate.Run(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return conn, nil
}

func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func boundsFromConfig(cfg config.Config) motion.Bounds {
	b := motion.Bounds{
		SpeedMin:               cfg.SpeedMin,
		SpeedMax:               cfg.SpeedMax,
		SpeedDeltaMin:          cfg.SpeedDeltaMin,
		SpeedDeltaMax:          cfg.SpeedDeltaMax,
		SpeedChangeProbability: cfg.SpeedChangeProbability,
		TurnProbability:        cfg.TurnProbability,
		TurnMaxDeg:             cfg.TurnMaxDeg,
		TrafficFactorMin:       cfg.TrafficFactorMin,
	}
	if r := cfg.Region; r != nil {
		b.Region = &motion.Region{MinLat: r[0], MinLon: r[1], MaxLat: r[2], MaxLon: r[3]}
	}
	return b
}

// newRand seeds from the clock when seed is 0.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
}

func child(r *rand.Rand) *rand.Rand {
	return rand.New(rand.NewPCG(r.Uint64(), r.Uint64()))
}
