package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=localhost port=5432 user=weather_user password=weather_pass dbname=weather_dw sslmode=disable",
		cfg.Database.ConnectionString())
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "weather.runs", cfg.Kafka.TopicRuns)
	assert.Equal(t, 0, cfg.Pipeline.BackfillDays)
	assert.Equal(t, 4, cfg.Pipeline.FetchConcurrency)
	assert.Equal(t, 2.0, cfg.Fetcher.Multiplier)
	assert.Equal(t, "UTC", cfg.API.Timezone)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", "/tmp/dw.db")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("PIPELINE_BACKFILL_DAYS", "7")
	t.Setenv("FETCHER_TIMEOUT", "5s")
	t.Setenv("FETCHER_BACKOFF_MULTIPLIER", "1.5")
	t.Setenv("LOG_DEVELOPMENT", "true")
	t.Setenv("API_TIMEZONE", "Europe/Berlin")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file:/tmp/dw.db?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", cfg.Database.ConnectionString())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7, cfg.Pipeline.BackfillDays)
	assert.Equal(t, 5*time.Second, cfg.Fetcher.Timeout)
	assert.Equal(t, 1.5, cfg.Fetcher.Multiplier)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "Europe/Berlin", cfg.API.Timezone)
}

func TestLoadIgnoresUnparseableNumbers(t *testing.T) {
	t.Setenv("DB_PORT", "five")
	t.Setenv("PIPELINE_LOCK_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.LockTTL)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := map[string][2]string{
		"driver":      {"DB_DRIVER", "mysql"},
		"backfill":    {"PIPELINE_BACKFILL_DAYS", "-1"},
		"concurrency": {"PIPELINE_FETCH_CONCURRENCY", "0"},
		"timezone":    {"API_TIMEZONE", "Mars/Olympus"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
