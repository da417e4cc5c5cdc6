package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, BackendMemory, c.Backend.Type)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 10*time.Minute, c.Sync.LockTTL)
	assert.Equal(t, time.Minute, c.Cache.BarsTTL)
	assert.Equal(t, time.Minute, c.Cache.CleanupInterval)
	assert.Equal(t, "https://query2.finance.yahoo.com", c.Provider.BaseURL)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.Equal(t, int32(10), c.Postgres.MaxConns)
	require.NoError(t, c.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: production
backend:
  type: postgres
postgres:
  host: db
  database: bars
server:
  port: 9090
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, BackendPostgres, c.Backend.Type)
	assert.Equal(t, "db", c.Postgres.Host)
	assert.Equal(t, "bars", c.Postgres.Database)
	assert.Equal(t, 5432, c.Postgres.Port)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "environment: staging\n")
	t.Setenv("CANDLESTICK_BACKEND", "clickhouse")
	t.Setenv("CANDLESTICK_CLICKHOUSE_HOST", "ch")
	t.Setenv("CANDLESTICK_KAFKA_ENABLED", "true")
	t.Setenv("CANDLESTICK_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CANDLESTICK_SYNC_LOCK_TTL", "30s")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, BackendClickHouse, c.Backend.Type)
	assert.Equal(t, "ch", c.ClickHouse.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, c.Sync.LockTTL)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown backend", mutate: func(c *Config) { c.Backend.Type = "sqlite" }},
		{name: "clickhouse without host", mutate: func(c *Config) { c.Backend.Type = BackendClickHouse }},
		{name: "postgres without host", mutate: func(c *Config) { c.Backend.Type = BackendPostgres }},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Kafka.Enabled = true }},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "bad cache type", mutate: func(c *Config) { c.Cache.Type = "disk" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Default()
			require.NoError(t, err)
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
