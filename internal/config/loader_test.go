package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Queue.MaxSize != 1000 {
		t.Errorf("expected max_size 1000, got %d", cfg.Queue.MaxSize)
	}
	if cfg.Queue.DescriptionMinLen != 10 {
		t.Errorf("expected description_min_len 10, got %d", cfg.Queue.DescriptionMinLen)
	}
	if cfg.Persistence.Key != "task-queue" {
		t.Errorf("expected persistence key task-queue, got %s", cfg.Persistence.Key)
	}
	if cfg.Persistence.Debounce != 200*time.Millisecond {
		t.Errorf("expected debounce 200ms, got %v", cfg.Persistence.Debounce)
	}
	if cfg.Dispatch.AskTimeout != 30*time.Second {
		t.Errorf("expected ask timeout 30s, got %v", cfg.Dispatch.AskTimeout)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
queue:
  max_size: 50
dispatch:
  directive_budget: 4000
  ask_timeout: 5s
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Queue.MaxSize != 50 {
		t.Errorf("expected max_size 50, got %d", cfg.Queue.MaxSize)
	}
	if cfg.Dispatch.DirectiveBudget != 4000 {
		t.Errorf("expected directive budget 4000, got %d", cfg.Dispatch.DirectiveBudget)
	}
	if cfg.Dispatch.AskTimeout != 5*time.Second {
		t.Errorf("expected ask timeout 5s, got %v", cfg.Dispatch.AskTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Persistence.Backend != BackendMemory {
		t.Errorf("expected default backend, got %s", cfg.Persistence.Backend)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLMalformed(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("queue: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("TASKRELAY_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("NATS_URL", "nats://queue:4222")
	t.Setenv("TASKRELAY_QUEUE_MAX_SESSIONS", "4")
	t.Setenv("TASKRELAY_PG_MAX_CONNS", "25")
	t.Setenv("TASKRELAY_LOG_LEVEL", "warn")
	t.Setenv("TASKRELAY_PERSISTENCE_DEBOUNCE", "1s")
	t.Setenv("TASKRELAY_OTEL_SAMPLE_RATE", "0.25")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.NATS.URL != "nats://queue:4222" {
		t.Errorf("expected NATS URL override, got %s", cfg.NATS.URL)
	}
	if cfg.Queue.MaxSessions != 4 {
		t.Errorf("expected max_sessions 4, got %d", cfg.Queue.MaxSessions)
	}
	if cfg.Postgres.MaxConns != 25 {
		t.Errorf("expected max_conns 25, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Persistence.Debounce != time.Second {
		t.Errorf("expected debounce 1s, got %v", cfg.Persistence.Debounce)
	}
	if cfg.OTEL.SampleRate != 0.25 {
		t.Errorf("expected sample rate 0.25, got %v", cfg.OTEL.SampleRate)
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	cfg := Defaults()

	t.Setenv("TASKRELAY_QUEUE_MAX_SIZE", "lots")
	t.Setenv("TASKRELAY_ASK_TIMEOUT", "soon")

	loadEnv(&cfg)

	if cfg.Queue.MaxSize != 1000 {
		t.Errorf("unparseable int should keep default, got %d", cfg.Queue.MaxSize)
	}
	if cfg.Dispatch.AskTimeout != 30*time.Second {
		t.Errorf("unparseable duration should keep default, got %v", cfg.Dispatch.AskTimeout)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "zero max size",
			modify: func(c *Config) { c.Queue.MaxSize = 0 },
			errMsg: "queue.max_size must be >= 1",
		},
		{
			name:   "zero sessions",
			modify: func(c *Config) { c.Queue.MaxSessions = 0 },
			errMsg: "queue.max_sessions must be >= 1",
		},
		{
			name:   "zero ask timeout",
			modify: func(c *Config) { c.Dispatch.AskTimeout = 0 },
			errMsg: "dispatch.ask_timeout must be > 0",
		},
		{
			name:   "empty persistence key",
			modify: func(c *Config) { c.Persistence.Key = "" },
			errMsg: "persistence.key is required",
		},
		{
			name:   "nats backend without url",
			modify: func(c *Config) { c.Persistence.Backend = BackendNATS },
			errMsg: `persistence.backend "nats" requires nats.url`,
		},
		{
			name: "postgres zero max_conns",
			modify: func(c *Config) {
				c.Persistence.Backend = BackendPostgres
				c.Postgres.MaxConns = 0
			},
			errMsg: "postgres.max_conns must be >= 1",
		},
		{
			name:   "unknown backend",
			modify: func(c *Config) { c.Persistence.Backend = "redis" },
			errMsg: `persistence.backend "redis" is not one of memory, nats, postgres, sqlite, tiered`,
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
		{
			name:   "sample rate above one",
			modify: func(c *Config) { c.OTEL.SampleRate = 1.5 },
			errMsg: "otel.sample_rate must be within [0, 1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestOverridesWinOverEnv(t *testing.T) {
	t.Setenv("TASKRELAY_PORT", "7070")
	t.Setenv("TASKRELAY_LOG_LEVEL", "warn")

	port := "3333"
	level := "error"
	cfg, err := LoadWithOverrides("/nonexistent/taskrelay.yaml", Overrides{Port: &port, LogLevel: &level})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "3333" {
		t.Errorf("expected CLI port 3333 to override ENV 7070, got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected CLI log-level error to override ENV warn, got %s", cfg.Logging.Level)
	}
}

func TestOverridesNilLeavesConfig(t *testing.T) {
	cfg := Defaults()
	original := cfg

	applyOverrides(&cfg, Overrides{})

	if cfg.Server.Port != original.Server.Port {
		t.Errorf("port changed from %s to %s", original.Server.Port, cfg.Server.Port)
	}
	if cfg.Persistence.Backend != original.Persistence.Backend {
		t.Errorf("backend changed from %s to %s", original.Persistence.Backend, cfg.Persistence.Backend)
	}
}

func TestLoadWithOverridesValidates(t *testing.T) {
	backend := BackendPostgres
	dsn := ""
	_, err := LoadWithOverrides("/nonexistent/taskrelay.yaml", Overrides{Backend: &backend, DSN: &dsn})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "postgres.dsn") {
		t.Errorf("expected postgres.dsn in error, got %v", err)
	}
}
