package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTP.Address)
	require.Equal(t, "timelog_signals", cfg.Kafka.SignalTopic)
	require.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, time.Second, cfg.Live.TickInterval)
	require.Equal(t, time.UTC, cfg.Location())
	require.Equal(t, time.Monday, cfg.WeekStart())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("KAFKA_BROKERS", "one:9092,two:9092")
	t.Setenv("VIEW_TIMEZONE", "Europe/Berlin")
	t.Setenv("VIEW_START_OF_WEEK", "sunday")
	t.Setenv("LIVE_HEARTBEAT_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, []string{"one:9092", "two:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "Europe/Berlin", cfg.Location().String())
	require.Equal(t, time.Sunday, cfg.WeekStart())
	require.Equal(t, 45*time.Second, cfg.Live.HeartbeatTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("VIEW_START_OF_WEEK", "someday")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("VIEW_START_OF_WEEK", "monday")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	require.Error(t, err)
}

func TestExplicitMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")

	_, err := Load()
	require.Error(t, err)
}
