// Package config loads process configuration from the environment and trust
// policies from YAML files.
package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds CLI configuration.
type Config struct {
	Home         string
	DatabaseURL  string
	LogLevel     string
	LogFormat    string
	RedisAddr    string
	OTLPEndpoint string
	OTelEnabled  bool
	Workers      int

	// CredentialsKey is the hex AES-256 key for passphrases stored at rest.
	// Empty disables persistent passphrase storage.
	CredentialsKey string
}

// Load loads configuration from environment variables.
func Load() *Config {
	home := os.Getenv("CREV_HOME")
	if home == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			home = filepath.Join(dir, "crev")
		} else {
			home = ".crev"
		}
	}

	dbURL := os.Getenv("CREV_DB_URL")
	if dbURL == "" {
		dbURL = filepath.Join(home, "proofs.db")
	}

	logLevel := os.Getenv("CREV_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "WARN"
	}

	logFormat := strings.ToLower(os.Getenv("CREV_LOG_FORMAT"))
	if logFormat != "json" {
		logFormat = "text"
	}

	endpoint := os.Getenv("CREV_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	workers, err := strconv.Atoi(os.Getenv("CREV_WORKERS"))
	if err != nil || workers < 0 {
		workers = 0
	}

	return &Config{
		Home:         home,
		DatabaseURL:  dbURL,
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		RedisAddr:    os.Getenv("CREV_REDIS_ADDR"),
		OTLPEndpoint: endpoint,
		OTelEnabled:  os.Getenv("CREV_OTEL_ENABLED") == "true",
		Workers:      workers,

		CredentialsKey: os.Getenv("CREV_CREDENTIALS_KEY"),
	}
}

// IDPath is where the current locked identity is kept.
func (c *Config) IDPath() string {
	return filepath.Join(c.Home, "id.yaml")
}

// PolicyPath is the optional trust policy file.
func (c *Config) PolicyPath() string {
	return filepath.Join(c.Home, "policy.yaml")
}

// Logger builds a logger writing to w in the configured format. Unknown
// levels fall back to WARN.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
