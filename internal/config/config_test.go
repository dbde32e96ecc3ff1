package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	require.Equal(t, 10*time.Second, cfg.Outbox.StartupDelay)
	require.Equal(t, 100, cfg.Outbox.BatchSize)
	require.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	require.Equal(t, 30*24*time.Hour, cfg.Session.UserIndexTTL)
	require.Equal(t, time.Hour, cfg.Session.RevokedRetention)
	require.Equal(t, 5*time.Second, cfg.BrokerTimeout)
	require.Equal(t, 2, cfg.Kafka.MaxRetries)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "kafka", cfg.Broker)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("OUTBOX_POLL_INTERVAL", "1s")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "15m")
	t.Setenv("BROKER", "redis")
	t.Setenv("BROKER_TIMEOUT", "2s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, time.Second, cfg.Outbox.PollInterval)
	require.Equal(t, 25, cfg.Outbox.BatchSize)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	require.Equal(t, "redis", cfg.Broker)
	require.Equal(t, 2*time.Second, cfg.BrokerTimeout)
}

func TestLoadConfigRejectsMalformedDuration(t *testing.T) {
	t.Setenv("OUTBOX_STARTUP_DELAY", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
}
