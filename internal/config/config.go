package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	MinBatchSize = 1
	MaxBatchSize = 1000
)

type ClickHouseConfig struct {
	URL      string
	User     string
	Password string
	Database string
}

type Config struct {
	DatabaseURL     string
	ClickHouse      ClickHouseConfig
	LogLevel        string
	LogFormat       string
	BatchSize       int
	PollInterval    time.Duration
	BacklogInterval time.Duration
	MetricsPort     string
}

func Load() *Config {
	_ = godotenv.Load()

	batchSize := getEnvInt("OUTBOX_BATCH_SIZE", 500)

	if batchSize > MaxBatchSize {
		slog.Warn("OUTBOX_BATCH_SIZE exceeds safety limit. Clamping to maximum", "requested", batchSize, "limit", MaxBatchSize)
		batchSize = MaxBatchSize
	} else if batchSize < MinBatchSize {
		batchSize = MinBatchSize
	}

	return &Config{
		DatabaseURL: firstEnv("PG_CONNECTION_STRING", "DATABASE_URL", "POSTGRES_URL"),
		ClickHouse: ClickHouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
			User:     getEnv("CLICKHOUSE_USER", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "analytics"),
		},
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		LogFormat:       getEnv("LOG_FORMAT", "TEXT"),
		BatchSize:       batchSize,
		PollInterval:    time.Duration(getEnvInt("OUTBOX_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		BacklogInterval: time.Duration(getEnvInt("BACKLOG_INTERVAL_SEC", 30)) * time.Second,
		MetricsPort:     getEnv("METRICS_PORT", "9091"),
	}
}

// Validate reports configuration the relay cannot start without.
// Missing store location is fatal at startup, never retried.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("postgres connection string not set (PG_CONNECTION_STRING, DATABASE_URL or POSTGRES_URL)")
	}
	if c.ClickHouse.URL == "" {
		return errors.New("CLICKHOUSE_URL not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// firstEnv returns the first of the given variables that is set. The
// storefront's deployment tooling exports the Postgres DSN under
// several historical names.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
