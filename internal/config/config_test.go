package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key Load reads so tests see only what they set
// themselves.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RELAY_VALIDITY_WINDOW", "RELAY_TICK_INTERVAL", "RELAY_EVENT_HORIZON",
		"RELAY_SECRET", "RELAY_DIR", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"POSTGRES_DSN", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.ValidityWindow)
	require.Equal(t, time.Second, cfg.TickInterval)
	require.Equal(t, 30*time.Second, cfg.EventHorizon)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadTickInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_TICK_INTERVAL", "250ms")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.TickInterval)

	t.Setenv("RELAY_TICK_INTERVAL", "-1s")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadValidityWindow(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_VALIDITY_WINDOW", "10s")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.ValidityWindow)
}

func TestLoadRejectsOutOfRangeWindow(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_VALIDITY_WINDOW", "5s")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("RELAY_VALIDITY_WINDOW", "2m")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadKafkaBrokers(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAFKA_BROKERS", "localhost:9092, localhost:9093")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.KafkaBrokers)
}
