package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/road-weather-ingest/internal/domain"
	"github.com/couchcryptid/road-weather-ingest/internal/umb"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Observation encodings accepted by OBSERVATION_ENCODING.
const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	ListenAddr      string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Station connections.
	ReadTimeout         time.Duration
	RegistrationTimeout time.Duration
	ReadBufferSize      int

	// Decoding.
	MaxFrameBytes    int
	FramingMode      string
	ChecksumEnabled  bool
	PairRules        []domain.PairRule
	ChannelTablePath string

	// Sinks.
	SinkQueueSize       int
	BatchSize           int
	BatchFlushInterval  time.Duration
	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaTopic          string
	ObservationEncoding string
	CollectorURL        string
	CollectorTimeout    time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:          sharedcfg.EnvOrDefault("LISTEN_ADDR", ":18120"),
		HTTPAddr:            sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:     shutdownTimeout,
		FramingMode:         strings.ToLower(sharedcfg.EnvOrDefault("FRAMING_MODE", umb.FramingStream)),
		ChannelTablePath:    sharedcfg.EnvOrDefault("CHANNEL_TABLE_PATH", ""),
		BatchSize:           batchSize,
		BatchFlushInterval:  flushInterval,
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:          sharedcfg.EnvOrDefault("KAFKA_OBSERVATION_TOPIC", "road-weather-observations"),
		ObservationEncoding: strings.ToLower(sharedcfg.EnvOrDefault("OBSERVATION_ENCODING", EncodingJSON)),
		CollectorURL:        sharedcfg.EnvOrDefault("COLLECTOR_URL", ""),
	}

	durations := []struct {
		dst *time.Duration
		key string
		def string
	}{
		{&cfg.ReadTimeout, "READ_TIMEOUT", "5m"},
		{&cfg.RegistrationTimeout, "REGISTRATION_TIMEOUT", "30s"},
		{&cfg.CollectorTimeout, "COLLECTOR_TIMEOUT", "5s"},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		dst         *int
		key         string
		def, lo, hi int
	}{
		{&cfg.ReadBufferSize, "READ_BUFFER_SIZE", 4096, 16, 1 << 20},
		{&cfg.MaxFrameBytes, "MAX_FRAME_BYTES", umb.DefaultMaxFrameBytes, umb.MinFrameLen, 1 << 20},
		{&cfg.SinkQueueSize, "SINK_QUEUE_SIZE", 256, 1, 1 << 16},
	}
	for _, n := range ints {
		if *n.dst, err = parseIntRange(n.key, n.def, n.lo, n.hi); err != nil {
			return nil, err
		}
	}

	if cfg.ChecksumEnabled, err = parseBool("UMB_CHECKSUM", true); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.PairRules, err = ParsePairRules(sharedcfg.EnvOrDefault("DEVICE_PAIRS", "7:9")); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FramingMode != umb.FramingStream && c.FramingMode != umb.FramingChunk {
		return fmt.Errorf("invalid FRAMING_MODE %q: must be %s or %s", c.FramingMode, umb.FramingStream, umb.FramingChunk)
	}
	if c.ObservationEncoding != EncodingJSON && c.ObservationEncoding != EncodingCBOR {
		return fmt.Errorf("invalid OBSERVATION_ENCODING %q: must be %s or %s", c.ObservationEncoding, EncodingJSON, EncodingCBOR)
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_OBSERVATION_TOPIC is required")
		}
	}
	if c.CollectorURL != "" {
		u, err := url.Parse(c.CollectorURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid COLLECTOR_URL %q", c.CollectorURL)
		}
	}
	if !c.KafkaEnabled && c.CollectorURL == "" {
		return errors.New("no sink configured: set KAFKA_ENABLED=true or COLLECTOR_URL")
	}
	return nil
}

// ParsePairRules parses "first:second" device pairs separated by commas,
// e.g. "7:9,2:9".
func ParsePairRules(s string) ([]domain.PairRule, error) {
	var rules []domain.PairRule
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		first, second, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid DEVICE_PAIRS entry %q: want first:second", part)
		}
		a, err := parseDevice(first)
		if err != nil {
			return nil, fmt.Errorf("invalid DEVICE_PAIRS entry %q: %w", part, err)
		}
		b, err := parseDevice(second)
		if err != nil {
			return nil, fmt.Errorf("invalid DEVICE_PAIRS entry %q: %w", part, err)
		}
		if a == b {
			return nil, fmt.Errorf("invalid DEVICE_PAIRS entry %q: a device cannot pair with itself", part)
		}
		rules = append(rules, domain.PairRule{First: a, Second: b})
	}
	if len(rules) == 0 {
		return nil, errors.New("DEVICE_PAIRS is required")
	}
	return rules, nil
}

func parseDevice(s string) (domain.DeviceID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil || n > 0x0F {
		return 0, fmt.Errorf("device %q must be 0..15", s)
	}
	return domain.DeviceID(n), nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseIntRange(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be between %d and %d", key, lo, hi)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
