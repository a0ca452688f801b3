package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL       string
	DatabaseName      string
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	MetricsAddr       string
	Location          *time.Location
	BusFeedBaseURL    string
	BicycleAPIURL     string
	BusLimit          int
	FeedRefresh       time.Duration
	HTTPTimeout       time.Duration
	DataDir           string
	LogLevel          string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Carpool store DSN: DATABASE_URL or PG_DSN, else PG* vars when PGDATABASE is set.
	// Empty when nothing is configured; commands that need the store fail later.
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = dsnFromPGEnv()
	}
	cfg.DatabaseName = strings.TrimSpace(os.Getenv("CARPOOL_DB_NAME"))

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSSubjectPrefix = strings.Trim(getenvDefault("NATS_SUBJECT_PREFIX", "carpool.changes"), ".")
	if cfg.NATSSubjectPrefix == "" {
		return nil, errors.New("NATS_SUBJECT_PREFIX must not be empty")
	}
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	tzName := getenvDefault("TZ", "Asia/Tokyo")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ: %v", err)
	}
	cfg.Location = loc

	cfg.BusFeedBaseURL = strings.TrimRight(getenvDefault("BUS_FEED_BASE_URL", "https://github.com/kota113/SfcBusSchedules/blob/main"), "/")
	cfg.BicycleAPIURL = getenvDefault("BICYCLE_API_URL", "https://sfcmove-functions.kota113.com/api/hello-cycling")

	if cfg.BusLimit, err = positiveInt("BUS_LIMIT", 7); err != nil {
		return nil, err
	}
	sec, err := positiveInt("FEED_REFRESH_INTERVAL_SEC", 600)
	if err != nil {
		return nil, err
	}
	cfg.FeedRefresh = time.Duration(sec) * time.Second
	sec, err = positiveInt("HTTP_TIMEOUT_SEC", 30)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = time.Duration(sec) * time.Second

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not find user home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".sfcmove")
	}

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q", cfg.LogLevel)
	}

	return cfg, nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// dsnFromPGEnv builds a postgres URL from the libpq environment variables.
func dsnFromPGEnv() string {
	name := os.Getenv("PGDATABASE")
	if name == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(getenvDefault("PGUSER", "postgres")),
		Host:     net.JoinHostPort(getenvDefault("PGHOST", "127.0.0.1"), getenvDefault("PGPORT", "5432")),
		Path:     "/" + name,
		RawQuery: "sslmode=" + url.QueryEscape(getenvDefault("PGSSLMODE", "disable")),
	}
	if pass := os.Getenv("PGPASSWORD"); pass != "" {
		u.User = url.UserPassword(u.User.Username(), pass)
	}
	return u.String()
}
