package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/saviobatista/sbs-approach/internal/airspace"
)

// Ingest modes
const (
	IngestSBS  = "sbs"
	IngestJSON = "json"
	IngestNATS = "nats"
)

// Board kinds
const (
	BoardLog      = "log"
	BoardTerminal = "terminal"
)

// Config holds the application configuration
type Config struct {
	IngestMode   string
	Sources      []string
	FeedURL      string
	PollInterval time.Duration

	NATSURL   string
	RedisAddr string
	DBConnStr string

	RoutesFile   string
	CorridorFile string
	Corridor     airspace.Corridor

	StaleAfter    time.Duration
	AnnounceEvery time.Duration
	EvictEvery    time.Duration
	QueueSize     int
	ShowFor       time.Duration
	Board         string

	WatchdogFile string
	WatchdogKey  string
	HTTPAddr     string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// corridorFile is the TOML layout of CORRIDOR_FILE:
//
//	[[gate]]
//	name = "arriving"
//	segment = { start = { lat = 37.592, lon = -122.351 }, end = { lat = 37.626, lon = -122.331 } }
//
// A single gate may instead set bidirectional = true and opposite = "departing".
type corridorFile struct {
	Gates         []airspace.Gate `toml:"gate"`
	Bidirectional bool            `toml:"bidirectional"`
	Opposite      string          `toml:"opposite"`
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		IngestMode:   getEnv("INGEST_MODE", IngestSBS),
		Sources:      splitList(getEnv("SOURCES", "localhost:30003")),
		FeedURL:      getEnv("FEED_URL", "http://localhost:8504/tar1090/data/aircraft.json"),
		NATSURL:      os.Getenv("NATS_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		DBConnStr:    os.Getenv("DB_CONN_STR"),
		RoutesFile:   getEnv("ROUTES_FILE", "sfo-routes.json"),
		CorridorFile: os.Getenv("CORRIDOR_FILE"),
		Board:        getEnv("BOARD", BoardLog),
		WatchdogFile: os.Getenv("WATCHDOG_FILE"),
		WatchdogKey:  os.Getenv("WATCHDOG_KEY"),
		HTTPAddr:     os.Getenv("HTTP_ADDR"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "console"),
		LogFile:      os.Getenv("LOG_FILE"),
	}

	var err error
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"POLL_INTERVAL", time.Second, &cfg.PollInterval},
		{"STALE_AFTER", 5 * time.Minute, &cfg.StaleAfter},
		{"ANNOUNCE_EVERY", time.Second, &cfg.AnnounceEvery},
		{"EVICT_EVERY", 10 * time.Second, &cfg.EvictEvery},
		{"SHOW_FOR", 10 * time.Second, &cfg.ShowFor},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.QueueSize, err = getInt("ANNOUNCE_QUEUE_SIZE", 64); err != nil {
		return nil, err
	}

	cfg.Corridor = airspace.DefaultCorridor
	if cfg.CorridorFile != "" {
		if cfg.Corridor, err = LoadCorridor(cfg.CorridorFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.IngestMode {
	case IngestSBS:
		if len(c.Sources) == 0 {
			return fmt.Errorf("SOURCES is required in %s mode", IngestSBS)
		}
	case IngestJSON:
		if c.FeedURL == "" {
			return fmt.Errorf("FEED_URL is required in %s mode", IngestJSON)
		}
	case IngestNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required in %s mode", IngestNATS)
		}
	default:
		return fmt.Errorf("unsupported INGEST_MODE: %s", c.IngestMode)
	}

	switch c.Board {
	case BoardLog, BoardTerminal:
	default:
		return fmt.Errorf("unsupported BOARD: %s", c.Board)
	}

	if c.QueueSize <= 0 {
		return fmt.Errorf("ANNOUNCE_QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	for name, d := range map[string]time.Duration{
		"POLL_INTERVAL":  c.PollInterval,
		"STALE_AFTER":    c.StaleAfter,
		"ANNOUNCE_EVERY": c.AnnounceEvery,
		"EVICT_EVERY":    c.EvictEvery,
		"SHOW_FOR":       c.ShowFor,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return c.Corridor.Validate()
}

// LoadCorridor reads gate definitions from a TOML file
func LoadCorridor(path string) (airspace.Corridor, error) {
	var f corridorFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return airspace.Corridor{}, fmt.Errorf("failed to read corridor file: %w", err)
	}

	corridor := airspace.Corridor{Gates: f.Gates}
	if f.Bidirectional {
		if len(f.Gates) != 1 {
			return airspace.Corridor{}, fmt.Errorf("bidirectional corridor needs exactly one gate, got %d", len(f.Gates))
		}
		opposite := f.Opposite
		if opposite == "" {
			opposite = "departing"
		}
		corridor = airspace.NewBidirectionalCorridor(f.Gates[0].Segment, f.Gates[0].Name, opposite)
	}

	if err := corridor.Validate(); err != nil {
		return airspace.Corridor{}, fmt.Errorf("invalid corridor file: %w", err)
	}
	return corridor, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
