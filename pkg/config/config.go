package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Fetcher  FetcherConfig
	Pipeline PipelineConfig
	API      APIConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Driver     string // postgres or sqlite
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

// ConnectionString returns the DSN for the configured driver
func (d DatabaseConfig) ConnectionString() string {
	if d.Driver == "sqlite" {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", d.SQLitePath)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisConfig configures the shared run lock. An empty Addr selects the
// in-process lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures run events. No brokers disables them.
type KafkaConfig struct {
	Brokers       []string
	TopicRuns     string
	ConsumerGroup string
	NumPartitions int
}

type FetcherConfig struct {
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	Multiplier       float64
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

type PipelineConfig struct {
	BackfillDays     int
	FetchConcurrency int
	Schedule         string // cron spec for daemon mode
	LockTTL          time.Duration
	SeedFile         string
	MetricsAddr      string // daemon /metrics listener, empty disables it
}

type APIConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
	Timezone     string // IANA zone for "today" in rolling reports
}

type LogConfig struct {
	Level       string
	Development bool
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			User:       getEnv("DB_USER", "weather_user"),
			Password:   getEnv("DB_PASSWORD", "weather_pass"),
			DBName:     getEnv("DB_NAME", "weather_dw"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "weather.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvAsList("KAFKA_BROKERS"),
			TopicRuns:     getEnv("KAFKA_TOPIC_RUNS", "weather.runs"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "weather-reporting"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 3),
		},
		Fetcher: FetcherConfig{
			BaseURL:          getEnv("FETCHER_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
			Timeout:          getEnvAsDuration("FETCHER_TIMEOUT", 30*time.Second),
			MaxRetries:       getEnvAsInt("FETCHER_MAX_RETRIES", 3),
			RetryDelay:       getEnvAsDuration("FETCHER_RETRY_DELAY", time.Second),
			Multiplier:       getEnvAsFloat("FETCHER_BACKOFF_MULTIPLIER", 2),
			BreakerThreshold: getEnvAsInt("FETCHER_BREAKER_THRESHOLD", 5),
			BreakerTimeout:   getEnvAsDuration("FETCHER_BREAKER_TIMEOUT", time.Minute),
		},
		Pipeline: PipelineConfig{
			BackfillDays:     getEnvAsInt("PIPELINE_BACKFILL_DAYS", 0),
			FetchConcurrency: getEnvAsInt("PIPELINE_FETCH_CONCURRENCY", 4),
			Schedule:         getEnv("PIPELINE_SCHEDULE", "0 * * * *"),
			LockTTL:          getEnvAsDuration("PIPELINE_LOCK_TTL", 15*time.Minute),
			SeedFile:         getEnv("PIPELINE_SEED_FILE", ""),
			MetricsAddr:      getEnv("PIPELINE_METRICS_ADDR", ":9100"),
		},
		API: APIConfig{
			Port:         getEnvAsInt("API_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("API_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("API_WRITE_TIMEOUT", 10*time.Second),
			CacheTTL:     getEnvAsDuration("API_CACHE_TTL", time.Minute),
			Timezone:     getEnv("API_TIMEZONE", "UTC"),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("LOG_DEVELOPMENT", "false") == "true",
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", c.Database.Driver)
	}
	if c.Pipeline.BackfillDays < 0 {
		return fmt.Errorf("PIPELINE_BACKFILL_DAYS must not be negative, got %d", c.Pipeline.BackfillDays)
	}
	if c.Pipeline.FetchConcurrency < 1 {
		return fmt.Errorf("PIPELINE_FETCH_CONCURRENCY must be positive, got %d", c.Pipeline.FetchConcurrency)
	}
	if _, err := time.LoadLocation(c.API.Timezone); err != nil {
		return fmt.Errorf("invalid API_TIMEZONE %q: %w", c.API.Timezone, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string) []string {
	var items []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
