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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoad_Success tests successful loading of a valid config file
func TestLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "0.0.0.0"
  port: 8443

logging:
  level: "debug"
  format: "text"

tls:
  enabled: true
  cert_file: "/path/to/cert.pem"
  key_file: "/path/to/key.pem"

ratelimit:
  enabled: true
  requests_per_minute: 120
  burst: 20

metrics:
  enabled: true
  path: "/metrics"

health:
  enabled: true
  path: "/health"

passkey:
  rp_id: "example.com"
  rp_display_name: "Example Corp"
  rp_origins:
    - "https://example.com"
    - "https://www.example.com"
  ceremony_ttl: 2m

storage:
  backend: "sqlite"
  sqlite:
    path: "/data/passkey/passkey.db"

jwt:
  enabled: true
  issuer: "https://example.com"
  audience: "example-api"
  ttl: 30m
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8443 {
		t.Errorf("Server.Port = %d, want 8443", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
	if !cfg.TLS.Enabled {
		t.Error("TLS.Enabled = false, want true")
	}
	if cfg.RateLimit.RequestsPerMinute != 120 {
		t.Errorf("RateLimit.RequestsPerMinute = %d, want 120", cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.Passkey.RPID != "example.com" {
		t.Errorf("Passkey.RPID = %s, want example.com", cfg.Passkey.RPID)
	}
	if len(cfg.Passkey.RPOrigins) != 2 {
		t.Errorf("len(Passkey.RPOrigins) = %d, want 2", len(cfg.Passkey.RPOrigins))
	}
	if cfg.Passkey.CeremonyTTL != 2*time.Minute {
		t.Errorf("Passkey.CeremonyTTL = %s, want 2m", cfg.Passkey.CeremonyTTL)
	}
	if cfg.Storage.Backend != StorageSQLite {
		t.Errorf("Storage.Backend = %s, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Storage.SQLite.Path != "/data/passkey/passkey.db" {
		t.Errorf("Storage.SQLite.Path = %s, want /data/passkey/passkey.db", cfg.Storage.SQLite.Path)
	}
	if !cfg.JWT.Enabled {
		t.Error("JWT.Enabled = false, want true")
	}
	if cfg.JWT.TTL != 30*time.Minute {
		t.Errorf("JWT.TTL = %s, want 30m", cfg.JWT.TTL)
	}
}

// TestLoad_MissingFileUsesDefaults tests that a missing config file falls
// back to defaults rather than failing.
func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Backend != StorageMemory {
		t.Errorf("Storage.Backend = %s, want memory", cfg.Storage.Backend)
	}
	if cfg.Passkey.RPID == "" {
		t.Error("Passkey.RPID is empty, want default")
	}
}

// TestLoad_PartialFileKeepsDefaults tests that fields absent from the file
// retain their default values.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
passkey:
  rp_id: "login.example.org"
  rp_display_name: "Example Login"
  rp_origins:
    - "https://login.example.org"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Passkey.RPID != "login.example.org" {
		t.Errorf("Passkey.RPID = %s, want login.example.org", cfg.Passkey.RPID)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s, want default info", cfg.Logging.Level)
	}
	if cfg.Passkey.CeremonyTTL != 5*time.Minute {
		t.Errorf("Passkey.CeremonyTTL = %s, want default 5m", cfg.Passkey.CeremonyTTL)
	}
}

// TestLoad_InvalidYAML tests that malformed YAML is rejected
func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() succeeded with malformed YAML, want error")
	}
}

// TestLoad_EnvOverrides tests PASSKEY_* environment variable overrides
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PASSKEY_SERVER_PORT", "9090")
	t.Setenv("PASSKEY_RP_ID", "env.example.com")
	t.Setenv("PASSKEY_RP_ORIGINS", "https://env.example.com, https://alt.example.com")
	t.Setenv("PASSKEY_STORAGE_BACKEND", "sqlite")
	t.Setenv("PASSKEY_SQLITE_PATH", "/tmp/env.db")
	t.Setenv("PASSKEY_CEREMONY_TTL", "90s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Passkey.RPID != "env.example.com" {
		t.Errorf("Passkey.RPID = %s, want env.example.com", cfg.Passkey.RPID)
	}
	if len(cfg.Passkey.RPOrigins) != 2 || cfg.Passkey.RPOrigins[1] != "https://alt.example.com" {
		t.Errorf("Passkey.RPOrigins = %v, want trimmed two-element list", cfg.Passkey.RPOrigins)
	}
	if cfg.Storage.Backend != StorageSQLite {
		t.Errorf("Storage.Backend = %s, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Storage.SQLite.Path != "/tmp/env.db" {
		t.Errorf("Storage.SQLite.Path = %s, want /tmp/env.db", cfg.Storage.SQLite.Path)
	}
	if cfg.Passkey.CeremonyTTL != 90*time.Second {
		t.Errorf("Passkey.CeremonyTTL = %s, want 90s", cfg.Passkey.CeremonyTTL)
	}
}

// TestValidate tests configuration validation rules
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "tls enabled without cert",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.KeyFile = "/path/key.pem"
			},
			wantErr: true,
		},
		{
			name: "tls enabled without key",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.CertFile = "/path/cert.pem"
			},
			wantErr: true,
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantErr: true,
		},
		{
			name: "sqlite backend without path",
			mutate: func(c *Config) {
				c.Storage.Backend = StorageSQLite
				c.Storage.SQLite.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "jwt enabled without issuer",
			mutate:  func(c *Config) { c.JWT.Enabled = true },
			wantErr: true,
		},
		{
			name: "jwt enabled with issuer",
			mutate: func(c *Config) {
				c.JWT.Enabled = true
				c.JWT.Issuer = "https://example.com"
			},
			wantErr: false,
		},
		{
			name:    "missing rp_id",
			mutate:  func(c *Config) { c.Passkey.RPID = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
