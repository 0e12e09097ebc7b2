package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.NotEmpty(t, cfg.Database.DSN)
	require.False(t, cfg.Kafka.Enabled)
	require.Equal(t, "orbitex.trades", cfg.Kafka.Topic)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ORBITEX_LOG_LEVEL", "debug")
	t.Setenv("ORBITEX_KAFKA_TOPIC", "trades.test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "trades.test", cfg.Kafka.Topic)
}
