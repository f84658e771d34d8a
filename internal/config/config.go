// Package config reads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the treasury daemon needs to start.
type Config struct {
	// Database selects the persistence backend: "memory" or "postgres".
	Database    string
	PostgresDSN string

	// Owner is the identity granted admin and reviewer on first start.
	Owner string

	LogLevel  string
	LogFormat string

	// MetricsAddr is the listen address for the Prometheus endpoint. Empty
	// disables the metrics server.
	MetricsAddr string

	// EventBufferSize bounds the in-memory event history.
	EventBufferSize int
}

// Load reads configuration from the environment. A .env file at envFile is
// merged in first when present; missing files are not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := Config{
		Database:        getEnv("TREASURY_DATABASE", "memory"),
		PostgresDSN:     os.Getenv("TREASURY_POSTGRES_DSN"),
		Owner:           os.Getenv("TREASURY_OWNER"),
		LogLevel:        getEnv("TREASURY_LOG_LEVEL", "info"),
		LogFormat:       getEnv("TREASURY_LOG_FORMAT", "json"),
		MetricsAddr:     getEnv("TREASURY_METRICS_ADDR", ":9090"),
		EventBufferSize: 0,
	}

	if raw := os.Getenv("TREASURY_EVENT_BUFFER"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid TREASURY_EVENT_BUFFER %q", raw)
		}
		cfg.EventBufferSize = n
	}

	switch cfg.Database {
	case "memory":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("TREASURY_POSTGRES_DSN required when TREASURY_DATABASE=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unsupported TREASURY_DATABASE %q", cfg.Database)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
