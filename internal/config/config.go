// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads and validates the passkey server configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
)

// Config is the top-level server configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// TLS configures HTTPS serving.
	TLS TLSConfig `yaml:"tls"`

	// RateLimit configures per-client request throttling.
	RateLimit ratelimit.Config `yaml:"ratelimit"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Health configures health check endpoints.
	Health HealthConfig `yaml:"health"`

	// Passkey configures the relying party and ceremony behavior.
	Passkey passkey.Config `yaml:"passkey"`

	// Storage selects and configures the credential store.
	Storage StorageConfig `yaml:"storage"`

	// JWT configures session token issuance after authentication.
	JWT JWTConfig `yaml:"jwt"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `yaml:"level"`

	// Format is one of: json, text
	Format string `yaml:"format"`

	// Output is one of: stdout, stderr
	Output string `yaml:"output"`
}

// TLSConfig contains TLS settings for HTTPS serving.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig contains health check endpoint settings.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig selects the credential store backend.
type StorageConfig struct {
	// Backend is one of: memory, sqlite
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains sqlite storage settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// JWTConfig contains session token settings. Token issuance is disabled
// when Enabled is false.
type JWTConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TTL      time.Duration `yaml:"ttl"`

	// KeyFile is a PEM-encoded ECDSA P-256 private key. An ephemeral
	// key is generated when empty, which invalidates tokens on restart.
	KeyFile string `yaml:"key_file"`
}

// Storage backend identifiers.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		RateLimit: ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
			Path:    "/health",
		},
		Passkey: *passkey.DefaultConfig(),
		Storage: StorageConfig{
			Backend: StorageMemory,
			SQLite: SQLiteConfig{
				Path: "passkey.db",
			},
		},
		JWT: JWTConfig{
			Enabled: false,
			TTL:     time.Hour,
		},
	}
	return cfg
}

// Load reads configuration from a YAML file, applies environment variable
// overrides, and validates the result. A missing file is not an error;
// defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.Passkey.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies PASSKEY_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PASSKEY_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PASSKEY_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("PASSKEY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PASSKEY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PASSKEY_TLS_ENABLED"); v != "" {
		c.TLS.Enabled = parseBool(v)
	}
	if v := os.Getenv("PASSKEY_TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("PASSKEY_TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}
	if v := os.Getenv("PASSKEY_RP_ID"); v != "" {
		c.Passkey.RPID = v
	}
	if v := os.Getenv("PASSKEY_RP_DISPLAY_NAME"); v != "" {
		c.Passkey.RPDisplayName = v
	}
	if v := os.Getenv("PASSKEY_RP_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.Passkey.RPOrigins = origins
	}
	if v := os.Getenv("PASSKEY_CEREMONY_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			c.Passkey.CeremonyTTL = ttl
		}
	}
	if v := os.Getenv("PASSKEY_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("PASSKEY_SQLITE_PATH"); v != "" {
		c.Storage.SQLite.Path = v
	}
	if v := os.Getenv("PASSKEY_JWT_ENABLED"); v != "" {
		c.JWT.Enabled = parseBool(v)
	}
	if v := os.Getenv("PASSKEY_JWT_ISSUER"); v != "" {
		c.JWT.Issuer = v
	}
	if v := os.Getenv("PASSKEY_JWT_KEY_FILE"); v != "" {
		c.JWT.KeyFile = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics path is required when metrics are enabled")
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required for the sqlite storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s (must be memory or sqlite)", c.Storage.Backend)
	}

	if c.JWT.Enabled {
		if c.JWT.Issuer == "" {
			return fmt.Errorf("jwt issuer is required when token issuance is enabled")
		}
		if c.JWT.TTL <= 0 {
			return fmt.Errorf("jwt ttl must be positive, got %s", c.JWT.TTL)
		}
	}

	if err := c.Passkey.Validate(); err != nil {
		return err
	}

	return nil
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}
