package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "taskrelay.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TASKRELAY_PORT")
	setString(&cfg.Server.CORSOrigin, "TASKRELAY_CORS_ORIGIN")
	setString(&cfg.Server.BaseURL, "TASKRELAY_BASE_URL")
	setString(&cfg.Logging.Level, "TASKRELAY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TASKRELAY_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TASKRELAY_LOG_ASYNC")

	// Queue
	setInt(&cfg.Queue.MaxSize, "TASKRELAY_QUEUE_MAX_SIZE")
	setInt(&cfg.Queue.DescriptionMinLen, "TASKRELAY_QUEUE_DESCRIPTION_MIN_LEN")
	setInt(&cfg.Queue.MaxSessions, "TASKRELAY_QUEUE_MAX_SESSIONS")

	// Dispatch
	setInt(&cfg.Dispatch.DirectiveBudget, "TASKRELAY_DIRECTIVE_BUDGET")
	setDuration(&cfg.Dispatch.AskTimeout, "TASKRELAY_ASK_TIMEOUT")
	setInt(&cfg.Dispatch.AlertLogSize, "TASKRELAY_ALERT_LOG_SIZE")

	// Persistence
	setString(&cfg.Persistence.Backend, "TASKRELAY_PERSISTENCE_BACKEND")
	setString(&cfg.Persistence.Key, "TASKRELAY_PERSISTENCE_KEY")
	setDuration(&cfg.Persistence.Debounce, "TASKRELAY_PERSISTENCE_DEBOUNCE")
	setString(&cfg.Persistence.Bucket, "TASKRELAY_PERSISTENCE_BUCKET")
	setInt64(&cfg.Persistence.L1MaxSizeMB, "TASKRELAY_PERSISTENCE_L1_SIZE_MB")
	setString(&cfg.Persistence.SQLitePath, "TASKRELAY_SQLITE_PATH")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "TASKRELAY_NATS_STREAM")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TASKRELAY_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TASKRELAY_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TASKRELAY_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TASKRELAY_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TASKRELAY_PG_HEALTH_CHECK")

	setInt(&cfg.Breaker.MaxFailures, "TASKRELAY_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TASKRELAY_BREAKER_TIMEOUT")

	setBool(&cfg.MCP.Enabled, "TASKRELAY_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "TASKRELAY_MCP_ADDR")

	setString(&cfg.Auth.APIKeyHash, "TASKRELAY_API_KEY_HASH")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "TASKRELAY_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "TASKRELAY_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "TASKRELAY_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set and consistent.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Queue.MaxSize < 1 {
		return errors.New("queue.max_size must be >= 1")
	}
	if cfg.Queue.DescriptionMinLen < 1 {
		return errors.New("queue.description_min_len must be >= 1")
	}
	if cfg.Queue.MaxSessions < 1 {
		return errors.New("queue.max_sessions must be >= 1")
	}
	if cfg.Dispatch.AskTimeout <= 0 {
		return errors.New("dispatch.ask_timeout must be > 0")
	}
	if cfg.Persistence.Key == "" {
		return errors.New("persistence.key is required")
	}
	if cfg.Persistence.Debounce < 0 {
		return errors.New("persistence.debounce must be >= 0")
	}
	switch cfg.Persistence.Backend {
	case BackendMemory:
	case BackendNATS, BackendTiered:
		if cfg.NATS.URL == "" {
			return fmt.Errorf("persistence.backend %q requires nats.url", cfg.Persistence.Backend)
		}
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("persistence.backend \"postgres\" requires postgres.dsn")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case BackendSQLite:
		if cfg.Persistence.SQLitePath == "" {
			return errors.New("persistence.backend \"sqlite\" requires persistence.sqlite_path")
		}
	default:
		return fmt.Errorf("persistence.backend %q is not one of memory, nats, postgres, sqlite, tiered", cfg.Persistence.Backend)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be within [0, 1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Overrides holds command-line values that take precedence over every other
// layer. Nil fields leave the loaded value untouched.
type Overrides struct {
	Port     *string
	LogLevel *string
	Backend  *string
	NatsURL  *string
	DSN      *string
	MCPAddr  *string
	MaxSize  *int
	Debounce *time.Duration
}

// LoadWithOverrides loads the config hierarchy from yamlPath and applies CLI
// overrides last: defaults < YAML < ENV < CLI.
func LoadWithOverrides(yamlPath string, o Overrides) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyOverrides(&cfg, o)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Port != nil {
		cfg.Server.Port = *o.Port
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.Backend != nil {
		cfg.Persistence.Backend = *o.Backend
	}
	if o.NatsURL != nil {
		cfg.NATS.URL = *o.NatsURL
	}
	if o.DSN != nil {
		cfg.Postgres.DSN = *o.DSN
	}
	if o.MCPAddr != nil {
		cfg.MCP.Addr = *o.MCPAddr
	}
	if o.MaxSize != nil {
		cfg.Queue.MaxSize = *o.MaxSize
	}
	if o.Debounce != nil {
		cfg.Persistence.Debounce = *o.Debounce
	}
}
