// Package config loads and validates the sampled server configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Config holds every runtime parameter of the sampled server. Storage and
// blob driver selection read their own SAMPLECORE_STORAGE_* and
// SAMPLECORE_BLOB_* variables at open time and are not duplicated here.
type Config struct {
	// HTTP listen port
	Port int
	// Log level (debug, info, warn, error)
	LogLevel logrus.Level
	// Log format (json, text)
	LogFormat string

	// Secret for HS256 bearer tokens. Required.
	JWTSecret string

	// HTTP server timeouts
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Load reads configuration from the environment, applying defaults and
// validating required fields.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// SAMPLECORE_PORT, default 8080
	cfg.Port, err = getEnvInt("SAMPLECORE_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SAMPLECORE_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SAMPLECORE_PORT: %d outside 1-65535", cfg.Port)
	}

	// SAMPLECORE_LOG_LEVEL, default info
	cfg.LogLevel, err = logrus.ParseLevel(getEnvDefault("SAMPLECORE_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SAMPLECORE_LOG_LEVEL: %w", err)
	}

	// SAMPLECORE_LOG_FORMAT, default json
	cfg.LogFormat = getEnvDefault("SAMPLECORE_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SAMPLECORE_LOG_FORMAT: invalid value %q, want json or text", cfg.LogFormat)
	}

	// SAMPLECORE_JWT_SECRET, required
	cfg.JWTSecret = os.Getenv("SAMPLECORE_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("SAMPLECORE_JWT_SECRET: required environment variable not set")
	}

	// SAMPLECORE_READ_HEADER_TIMEOUT, default 5s
	cfg.ReadHeaderTimeout, err = getEnvDuration("SAMPLECORE_READ_HEADER_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SAMPLECORE_READ_HEADER_TIMEOUT: %w", err)
	}

	// SAMPLECORE_SHUTDOWN_TIMEOUT, default 10s
	cfg.ShutdownTimeout, err = getEnvDuration("SAMPLECORE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SAMPLECORE_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// SetupLogger configures a logrus logger from the loaded config.
func SetupLogger(cfg *Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go syntax: 30s, 5m, 1h)", v)
	}
	return d, nil
}
