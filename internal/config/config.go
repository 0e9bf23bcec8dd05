// Package config reads application configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// MinValidityWindow and MaxValidityWindow bound how long a generated
	// payload stays valid.
	MinValidityWindow = 10 * time.Second
	MaxValidityWindow = 30 * time.Second

	defaultValidityWindow = 30 * time.Second
	defaultTickInterval   = time.Second
	defaultEventHorizon   = 30 * time.Second
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultKafkaTopic     = "payment_events"
)

// Config aggregates application configuration values.
type Config struct {
	// ValidityWindow is how long a generated payload stays scannable.
	ValidityWindow time.Duration
	// TickInterval is the expiry supervisor's countdown granularity.
	TickInterval time.Duration
	// EventHorizon is how long cross-context event records live.
	EventHorizon time.Duration
	// Secret is the shared credential the receiver's gate compares against.
	Secret string
	// RelayDir, when set, selects the file-backed cross-context transport.
	RelayDir string
	// KafkaBrokers, when set, selects the Kafka cross-context transport.
	KafkaBrokers []string
	KafkaTopic   string
	// PostgresDSN, when set, selects the Postgres store over the in-memory one.
	PostgresDSN string
	Logging     LoggingConfig
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string // text|json
}

// Load reads configuration, applying defaults. A missing .env file is fine.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ValidityWindow: defaultValidityWindow,
		TickInterval:   defaultTickInterval,
		EventHorizon:   defaultEventHorizon,
		Secret:         os.Getenv("RELAY_SECRET"),
		RelayDir:       os.Getenv("RELAY_DIR"),
		KafkaTopic:     valueOrDefault("KAFKA_TOPIC", defaultKafkaTopic),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		Logging: LoggingConfig{
			Level:  valueOrDefault("LOG_LEVEL", defaultLogLevel),
			Format: valueOrDefault("LOG_FORMAT", defaultLogFormat),
		},
	}

	if v := os.Getenv("RELAY_VALIDITY_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RELAY_VALIDITY_WINDOW: %w", err)
		}
		if d < MinValidityWindow || d > MaxValidityWindow {
			return Config{}, fmt.Errorf("RELAY_VALIDITY_WINDOW %s outside %s..%s",
				d, MinValidityWindow, MaxValidityWindow)
		}
		cfg.ValidityWindow = d
	}

	if v := os.Getenv("RELAY_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RELAY_TICK_INTERVAL: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("RELAY_TICK_INTERVAL %s must be positive", d)
		}
		cfg.TickInterval = d
	}

	if v := os.Getenv("RELAY_EVENT_HORIZON"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RELAY_EVENT_HORIZON: %w", err)
		}
		cfg.EventHorizon = d
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
