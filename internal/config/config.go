package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	TransportHTTP  = "http"
	TransportKafka = "kafka"
	TransportMQTT  = "mqtt"

	SourceStatic   = "static"
	SourceFile     = "file"
	SourceDiscover = "discover"
)

// MaxSpeedKmh is the highest speed the ingestion service accepts.
const MaxSpeedKmh = 200

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// HTTPAddr is where the monitoring API listens. Empty disables it.
	HTTPAddr string

	Transport       string
	IngestionURL    string
	LocationURL     string
	LocationToken   string
	StatusCheck     bool
	PublishTimeout  time.Duration
	UpdateInterval  time.Duration
	TruckPacing     time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	MotionModel            string
	SpeedMin               float64
	SpeedMax               float64
	SpeedDeltaMin          float64
	SpeedDeltaMax          float64
	SpeedChangeProbability float64
	TurnProbability        float64
	TurnMaxDeg             int
	TrafficFactorMin       float64
	// Region is minLat,minLon,maxLat,maxLon. Nil when containment is off.
	Region *[4]float64

	TruckSource       string
	FleetFile         string
	DiscoveryPageSize int
	DiscoveryMaxPages int
	SeedLat           float64
	SeedLon           float64
	SeedRadiusKm      float64
	RandomSeed        uint64

	JournalPath     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	transport := strings.ToLower(envString("TRANSPORT", TransportHTTP))
	switch transport {
	case TransportHTTP, TransportKafka, TransportMQTT:
	default:
		return Config{}, fmt.Errorf("invalid TRANSPORT %q (allowed: http, kafka, mqtt)", transport)
	}

	cfg := Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		HTTPAddr:        envString("HTTP_ADDR", ""),
		Transport:       transport,
		IngestionURL:    envString("GPS_INGESTION_URL", "http://localhost:8080/gps/v1/positions"),
		LocationURL:     strings.TrimRight(envString("LOCATION_SERVICE_URL", "http://localhost:8081/location/v1/trucks"), "/"),
		LocationToken:   envString("LOCATION_SERVICE_TOKEN", ""),
		KafkaTopic:      envString("KAFKA_TOPIC", "truck-track.gps.position"),
		MQTTBroker:      envString("MQTT_BROKER", "localhost"),
		MQTTClientID:    envString("MQTT_CLIENT_ID", "trucksim"),
		MQTTTopicPrefix: strings.Trim(envString("MQTT_TOPIC_PREFIX", "trucks"), "/"),
		MotionModel:     strings.ToLower(envString("MOTION_MODEL", "spherical")),
		TruckSource:     strings.ToLower(envString("TRUCK_SOURCE", SourceStatic)),
		FleetFile:       envString("FLEET_FILE", ""),
		JournalPath:     envString("JOURNAL_PATH", ""),
	}

	for _, b := range strings.Split(envString("KAFKA_BROKERS", "localhost:9092"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}
	if cfg.Transport == TransportKafka && len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS must list at least one broker")
	}

	if cfg.StatusCheck, err = envBool("STATUS_CHECK", true); err != nil {
		return Config{}, err
	}
	if cfg.MQTTPort, err = envInt("MQTT_PORT", 1883); err != nil {
		return Config{}, err
	}

	if cfg.PublishTimeout, err = envDuration("PUBLISH_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PublishTimeout <= 0 {
		return Config{}, fmt.Errorf("PUBLISH_TIMEOUT must be positive, got %v", cfg.PublishTimeout)
	}
	if cfg.UpdateInterval, err = envDuration("UPDATE_INTERVAL", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.UpdateInterval <= 0 {
		return Config{}, fmt.Errorf("UPDATE_INTERVAL must be positive, got %v", cfg.UpdateInterval)
	}
	if cfg.TruckPacing, err = envDuration("TRUCK_PACING", 100*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.TruckPacing < 0 {
		return Config{}, fmt.Errorf("TRUCK_PACING must not be negative, got %v", cfg.TruckPacing)
	}

	switch cfg.MotionModel {
	case "planar", "spherical":
	default:
		return Config{}, fmt.Errorf("invalid MOTION_MODEL %q (allowed: planar, spherical)", cfg.MotionModel)
	}

	floats := []struct {
		key string
		def float64
		dst *float64
	}{
		{"SPEED_MIN", 0, &cfg.SpeedMin},
		{"SPEED_MAX", 80, &cfg.SpeedMax},
		{"SPEED_DELTA_MIN", -10, &cfg.SpeedDeltaMin},
		{"SPEED_DELTA_MAX", 15, &cfg.SpeedDeltaMax},
		{"SPEED_CHANGE_PROBABILITY", 1, &cfg.SpeedChangeProbability},
		{"TURN_PROBABILITY", 0.3, &cfg.TurnProbability},
		{"TRAFFIC_FACTOR_MIN", 0.7, &cfg.TrafficFactorMin},
		{"SEED_LAT", 48.8566, &cfg.SeedLat},
		{"SEED_LON", 2.3522, &cfg.SeedLon},
		{"SEED_RADIUS_KM", 5, &cfg.SeedRadiusKm},
	}
	for _, f := range floats {
		if *f.dst, err = envFloat(f.key, f.def); err != nil {
			return Config{}, err
		}
	}
	if cfg.SpeedMin < 0 || cfg.SpeedMax < cfg.SpeedMin || cfg.SpeedMax > MaxSpeedKmh {
		return Config{}, fmt.Errorf("speed bounds must satisfy 0 <= SPEED_MIN <= SPEED_MAX <= %v, got [%v, %v]", MaxSpeedKmh, cfg.SpeedMin, cfg.SpeedMax)
	}
	if cfg.SpeedDeltaMax < cfg.SpeedDeltaMin {
		return Config{}, fmt.Errorf("SPEED_DELTA_MAX (%v) must be >= SPEED_DELTA_MIN (%v)", cfg.SpeedDeltaMax, cfg.SpeedDeltaMin)
	}
	for key, p := range map[string]float64{
		"SPEED_CHANGE_PROBABILITY": cfg.SpeedChangeProbability,
		"TURN_PROBABILITY":         cfg.TurnProbability,
	} {
		if p < 0 || p > 1 {
			return Config{}, fmt.Errorf("%s must be within [0, 1], got %v", key, p)
		}
	}
	if cfg.TrafficFactorMin <= 0 || cfg.TrafficFactorMin > 1 {
		return Config{}, fmt.Errorf("TRAFFIC_FACTOR_MIN must be within (0, 1], got %v", cfg.TrafficFactorMin)
	}
	if cfg.SeedRadiusKm < 0 {
		return Config{}, fmt.Errorf("SEED_RADIUS_KM must not be negative, got %v", cfg.SeedRadiusKm)
	}

	if cfg.TurnMaxDeg, err = envInt("TURN_MAX_DEG", 30); err != nil {
		return Config{}, err
	}
	if cfg.TurnMaxDeg < 0 || cfg.TurnMaxDeg > 180 {
		return Config{}, fmt.Errorf("TURN_MAX_DEG must be within [0, 180], got %d", cfg.TurnMaxDeg)
	}

	if cfg.Region, err = parseRegion(envString("REGION", "")); err != nil {
		return Config{}, err
	}

	switch cfg.TruckSource {
	case SourceStatic, SourceDiscover:
	case SourceFile:
		if cfg.FleetFile == "" {
			return Config{}, fmt.Errorf("FLEET_FILE is required when TRUCK_SOURCE=file")
		}
	default:
		return Config{}, fmt.Errorf("invalid TRUCK_SOURCE %q (allowed: static, file, discover)", cfg.TruckSource)
	}
	if cfg.DiscoveryPageSize, err = envInt("DISCOVERY_PAGE_SIZE", 50); err != nil {
		return Config{}, err
	}
	if cfg.DiscoveryMaxPages, err = envInt("DISCOVERY_MAX_PAGES", 20); err != nil {
		return Config{}, err
	}
	if cfg.DiscoveryPageSize <= 0 || cfg.DiscoveryMaxPages <= 0 {
		return Config{}, fmt.Errorf("DISCOVERY_PAGE_SIZE and DISCOVERY_MAX_PAGES must be positive")
	}

	seedStr := envString("RANDOM_SEED", "0")
	if cfg.RandomSeed, err = strconv.ParseUint(seedStr, 10, 64); err != nil {
		return Config{}, fmt.Errorf("invalid RANDOM_SEED %q: %w", seedStr, err)
	}

	if cfg.MaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 1); err != nil {
		return Config{}, err
	}
	if cfg.MaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 1); err != nil {
		return Config{}, err
	}
	if cfg.MaxOpenConns < 0 || cfg.MaxIdleConns < 0 {
		return Config{}, fmt.Errorf("DB_MAX_OPEN_CONNS and DB_MAX_IDLE_CONNS must not be negative")
	}
	if cfg.ConnMaxLifetime, err = envDuration("DB_CONN_MAX_LIFETIME", 0); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseRegion(s string) (*[4]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid REGION %q (want minLat,minLon,maxLat,maxLon)", s)
	}
	var r [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid REGION %q: %w", s, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid REGION %q: bounds must be finite", s)
		}
		r[i] = v
	}
	if r[0] >= r[2] || r[1] >= r[3] {
		return nil, fmt.Errorf("invalid REGION %q: min must be below max on both axes", s)
	}
	if r[0] < -90 || r[2] > 90 || r[1] < -180 || r[3] > 180 {
		return nil, fmt.Errorf("invalid REGION %q: out of lat/lon range", s)
	}
	return &r, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s %q: must be a finite number", key, s)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
