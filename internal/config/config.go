package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/hotspot-etl-service/internal/domain"
)

// DefaultSourceURL is the FIRMS VIIRS S-NPP near-real-time area feed for
// Thailand over the last day. {MAP_KEY} is replaced with FIRMS_MAP_KEY.
const DefaultSourceURL = "https://firms.modaps.eosdis.nasa.gov/api/area/csv/{MAP_KEY}/VIIRS_SNPP_NRT/96,5,105,20/1"

// MapKeyPlaceholder marks where FIRMS_MAP_KEY is substituted into SOURCE_URL.
const MapKeyPlaceholder = "{MAP_KEY}"

// Config holds all service settings, populated from environment variables.
type Config struct {
	SourceURL       string
	SourceHeaders   map[string]string
	SourceDelimiter rune
	SourceEncoding  string
	SourceMaxBytes  int64

	DestinationPath string

	FetchInterval time.Duration
	FetchSchedule string
	FetchTimeout  time.Duration
	FetchOnStart  bool

	ColumnSpec     domain.ColumnSpec
	ColumnSpecFile string

	ReadyStaleAfter time.Duration

	EventsKafkaBrokers []string
	EventsKafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	interval, err := parsePositiveDuration("FETCH_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	timeout, err := parsePositiveDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	schedule := strings.TrimSpace(os.Getenv("FETCH_SCHEDULE"))
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("invalid FETCH_SCHEDULE: %w", err)
		}
	}

	staleDefault := 3 * interval
	if schedule != "" {
		staleDefault = time.Hour
	}
	staleAfter, err := parsePositiveDuration("READY_STALE_AFTER", staleDefault.String())
	if err != nil {
		return nil, err
	}

	fetchOnStart, err := strconv.ParseBool(sharedcfg.EnvOrDefault("FETCH_ON_START", "true"))
	if err != nil {
		return nil, errors.New("invalid FETCH_ON_START")
	}

	sourceURL, err := resolveSourceURL(sharedcfg.EnvOrDefault("SOURCE_URL", DefaultSourceURL), os.Getenv("FIRMS_MAP_KEY"))
	if err != nil {
		return nil, err
	}

	headers, err := parseHeaders(os.Getenv("SOURCE_HEADERS"))
	if err != nil {
		return nil, err
	}

	delim, err := parseDelimiter(sharedcfg.EnvOrDefault("SOURCE_DELIMITER", ","))
	if err != nil {
		return nil, err
	}

	maxBytes, err := strconv.ParseInt(sharedcfg.EnvOrDefault("SOURCE_MAX_BYTES", "67108864"), 10, 64)
	if err != nil || maxBytes <= 0 {
		return nil, errors.New("invalid SOURCE_MAX_BYTES")
	}

	spec, err := domain.ParseColumnSpec(sharedcfg.EnvOrDefault("COLUMN_SPEC", domain.DefaultColumnSpec))
	if err != nil {
		return nil, fmt.Errorf("invalid COLUMN_SPEC: %w", err)
	}

	cfg := &Config{
		SourceURL:       sourceURL,
		SourceHeaders:   headers,
		SourceDelimiter: delim,
		SourceEncoding:  strings.TrimSpace(os.Getenv("SOURCE_ENCODING")),
		SourceMaxBytes:  maxBytes,

		DestinationPath: sharedcfg.EnvOrDefault("DESTINATION_PATH", "/var/www/html/csv/fire.csv"),

		FetchInterval: interval,
		FetchSchedule: schedule,
		FetchTimeout:  timeout,
		FetchOnStart:  fetchOnStart,

		ColumnSpec:     spec,
		ColumnSpecFile: os.Getenv("COLUMN_SPEC_FILE"),

		ReadyStaleAfter: staleAfter,

		EventsKafkaBrokers: parseList(os.Getenv("EVENTS_KAFKA_BROKERS")),
		EventsKafkaTopic:   sharedcfg.EnvOrDefault("EVENTS_KAFKA_TOPIC", "hotspot-etl-cycles"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if strings.TrimSpace(cfg.DestinationPath) == "" {
		return nil, errors.New("DESTINATION_PATH is required")
	}
	if len(cfg.EventsKafkaBrokers) > 0 && cfg.EventsKafkaTopic == "" {
		return nil, errors.New("EVENTS_KAFKA_TOPIC is required when EVENTS_KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// EventsEnabled reports whether cycle events are published to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.EventsKafkaBrokers) > 0
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func resolveSourceURL(raw, mapKey string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("SOURCE_URL is required")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "", errors.New("SOURCE_URL must be an http or https URL")
	}
	if strings.Contains(raw, MapKeyPlaceholder) {
		if mapKey == "" {
			return "", errors.New("SOURCE_URL contains {MAP_KEY} but FIRMS_MAP_KEY is not set")
		}
		raw = strings.ReplaceAll(raw, MapKeyPlaceholder, mapKey)
	}
	return raw, nil
}

// parseHeaders reads "Name=Value;Name2=Value2". Semicolons separate pairs
// because header values often contain commas.
func parseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid SOURCE_HEADERS entry %q", pair)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func parseDelimiter(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, errors.New("invalid SOURCE_DELIMITER: must be a single character")
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '\n' || r == '\r' {
		return 0, errors.New("invalid SOURCE_DELIMITER: newline is not allowed")
	}
	return r, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
