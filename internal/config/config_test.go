// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, duration parsing, and validation

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  read_header_timeout: "5s"

storage:
  backend: SQLite
  path: "/var/lib/light/data.db"
  sqlite_driver: sqlite3

backend:
  url: "http://gpu-box:11434"
  model: "mistral:7b"
  temperature: 0.2
  max_tokens: 128
  timeout: "3m"

chat:
  window: 10
  system_prompt: "Be terse."

auth:
  session_secret: "`+secret+`"
  allowed_emails:
    - "Me@Example.com"
    - " other@example.com "
  session_ttl: "24h"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.ReadHeaderTimeout != 5*time.Second {
		t.Errorf("Server.ReadHeaderTimeout = %v, want 5s", cfg.Server.ReadHeaderTimeout)
	}
	if cfg.Storage.Backend != StorageSQLite {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, StorageSQLite)
	}
	if cfg.Storage.SQLiteDriver != "sqlite3" {
		t.Errorf("Storage.SQLiteDriver = %q, want sqlite3", cfg.Storage.SQLiteDriver)
	}
	if cfg.Backend.Model != "mistral:7b" {
		t.Errorf("Backend.Model = %q", cfg.Backend.Model)
	}
	if cfg.Backend.Temperature != 0.2 {
		t.Errorf("Backend.Temperature = %v, want 0.2", cfg.Backend.Temperature)
	}
	if cfg.Backend.MaxTokens != 128 {
		t.Errorf("Backend.MaxTokens = %d, want 128", cfg.Backend.MaxTokens)
	}
	if cfg.Backend.Timeout != 3*time.Minute {
		t.Errorf("Backend.Timeout = %v, want 3m", cfg.Backend.Timeout)
	}
	if cfg.Chat.Window != 10 || cfg.Chat.SystemPrompt != "Be terse." {
		t.Errorf("Chat = %+v", cfg.Chat)
	}
	if len(cfg.Auth.AllowedEmails) != 2 || cfg.Auth.AllowedEmails[0] != "me@example.com" || cfg.Auth.AllowedEmails[1] != "other@example.com" {
		t.Errorf("Auth.AllowedEmails = %v", cfg.Auth.AllowedEmails)
	}
	if cfg.Auth.SessionTTL != 24*time.Hour {
		t.Errorf("Auth.SessionTTL = %v, want 24h", cfg.Auth.SessionTTL)
	}
	if lvl, _ := cfg.Logging.SlogLevel(); lvl != slog.LevelDebug {
		t.Errorf("Logging level = %v, want debug", lvl)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
auth:
  session_secret: "`+secret+`"
  allowed_emails: ["me@example.com"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:5050" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Storage.Backend != StorageFile {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Backend.URL != "http://localhost:11434" || cfg.Backend.Model != "llama3:8b" {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Backend.Temperature != 0.7 || cfg.Backend.MaxTokens != 256 {
		t.Errorf("Backend sampling = %v / %d", cfg.Backend.Temperature, cfg.Backend.MaxTokens)
	}
	if cfg.Backend.Timeout != 120*time.Second {
		t.Errorf("Backend.Timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Chat.Window != 20 {
		t.Errorf("Chat.Window = %d", cfg.Chat.Window)
	}
	if cfg.Auth.SessionTTL != 168*time.Hour {
		t.Errorf("Auth.SessionTTL = %v", cfg.Auth.SessionTTL)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
}

func TestLoad_ZeroTemperatureKept(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
backend:
  temperature: 0
auth:
  session_secret: "`+secret+`"
  allowed_emails: ["me@example.com"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Temperature != 0 {
		t.Errorf("Backend.Temperature = %v, want 0", cfg.Backend.Temperature)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[storage]
backend = "bolt"
path = "/tmp/light.bolt"

[backend]
model = "phi3"
timeout = "30s"

[auth]
session_secret = "`+secret+`"
allowed_emails = ["me@example.com"]

[tailscale]
enabled = true
hostname = "assistant"
ephemeral = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != StorageBolt || cfg.Storage.Path != "/tmp/light.bolt" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Backend.Model != "phi3" || cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if !cfg.Tailscale.Enabled || cfg.Tailscale.Hostname != "assistant" || !cfg.Tailscale.Ephemeral {
		t.Errorf("Tailscale = %+v", cfg.Tailscale)
	}
	// Untouched sections keep their defaults
	if cfg.Backend.URL != "http://localhost:11434" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("LIGHT_TEST_SECRET", secret)
	t.Setenv("LIGHT_TEST_MODEL", "llama3.1:8b")

	path := writeConfig(t, "config.yaml", `
backend:
  model: "${LIGHT_TEST_MODEL}"
auth:
  session_secret: "${LIGHT_TEST_SECRET}"
  allowed_emails: ["me@example.com"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.SessionSecret != secret {
		t.Errorf("Auth.SessionSecret = %q, want expanded value", cfg.Auth.SessionSecret)
	}
	if cfg.Backend.Model != "llama3.1:8b" {
		t.Errorf("Backend.Model = %q", cfg.Backend.Model)
	}
}

func TestExpandEnvVars_UnsetBecomesEmpty(t *testing.T) {
	got := expandEnvVars("a=${LIGHT_TEST_DEFINITELY_UNSET} b=$HOME")
	if got != "a= b=$HOME" {
		t.Errorf("expandEnvVars() = %q", got)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
backend:
  timeout: "soon"
auth:
  session_secret: "`+secret+`"
  allowed_emails: ["me@example.com"]
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "backend.timeout") {
		t.Errorf("Load() error = %v, want backend.timeout parse error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.Auth.SessionSecret = secret
	cfg.Auth.AllowedEmails = []string{"me@example.com"}
	if err := parseDurations(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"tailscale without addr", func(c *Config) {
			c.Server.HTTPAddr = ""
			c.Tailscale.Enabled = true
		}, ""},
		{"tailscale without hostname", func(c *Config) {
			c.Tailscale.Enabled = true
			c.Tailscale.Hostname = ""
		}, "tailscale.hostname"},
		{"bad storage", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"no storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad driver", func(c *Config) { c.Storage.SQLiteDriver = "pgx" }, "storage.sqlite_driver"},
		{"bad scheme", func(c *Config) { c.Backend.URL = "ftp://host" }, "backend.url"},
		{"no model", func(c *Config) { c.Backend.Model = "" }, "backend.model"},
		{"zero tokens", func(c *Config) { c.Backend.MaxTokens = 0 }, "backend.max_tokens"},
		{"hot temperature", func(c *Config) { c.Backend.Temperature = 3 }, "backend.temperature"},
		{"zero window", func(c *Config) { c.Chat.Window = 0 }, "chat.window"},
		{"short secret", func(c *Config) { c.Auth.SessionSecret = "short" }, "auth.session_secret"},
		{"no emails", func(c *Config) { c.Auth.AllowedEmails = nil }, "auth.allowed_emails"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/light/config.toml")
	if got := DefaultPath(); got != "/etc/light/config.toml" {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "light-assistant", "config.yaml") {
		t.Errorf("DefaultPath() = %q", got)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := validConfig()
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, err := Parse(data, false)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if back.Backend.Timeout != cfg.Backend.Timeout || back.Auth.SessionSecret != cfg.Auth.SessionSecret {
		t.Errorf("round trip lost fields: %+v", back)
	}
}
