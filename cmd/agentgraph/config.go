package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration parses YAML strings like "90s" or "2m" into a time.Duration.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

// Config is the service configuration: YAML file first, environment
// overrides on top. Every field has a sensible default so the binary
// starts with no config at all (memory store, mock model).
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		RequestTimeout duration `yaml:"request_timeout"`
	} `yaml:"server"`

	Store struct {
		// Backend selects the checkpoint store:
		// memory | sqlite | mysql | postgres | redis.
		Backend string `yaml:"backend"`

		// Path is the SQLite database file (sqlite backend).
		Path string `yaml:"path"`

		// DSN is the MySQL or PostgreSQL connection string.
		DSN string `yaml:"dsn"`

		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"store"`

	Model struct {
		// Provider selects the completion backend:
		// openai | anthropic | google | mock.
		Provider string `yaml:"provider"`

		// Name is the provider-specific model name; empty picks the
		// provider's default.
		Name string `yaml:"name"`

		// APIKey overrides the provider's environment variable.
		APIKey string `yaml:"api_key"`
	} `yaml:"model"`

	Telemetry struct {
		OTLPEndpoint string  `yaml:"otlp_endpoint"`
		Environment  string  `yaml:"environment"`
		SampleRate   float64 `yaml:"sample_rate"`
	} `yaml:"telemetry"`
}

// loadConfig reads the YAML file (optional) and applies env overrides.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.RequestTimeout = duration(2 * time.Minute)
	cfg.Store.Backend = "memory"
	cfg.Store.Path = "agentgraph.db"
	cfg.Store.Redis.Addr = "localhost:6379"
	cfg.Model.Provider = "mock"
	cfg.Telemetry.Environment = "development"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv layers environment variables over the file values.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "AGENTGRAPH_ADDR")
	setString(&cfg.Store.Backend, "AGENTGRAPH_STORE")
	setString(&cfg.Store.Path, "SQLITE_PATH")
	setString(&cfg.Model.Provider, "AGENTGRAPH_PROVIDER")
	setString(&cfg.Model.Name, "AGENTGRAPH_MODEL")
	setString(&cfg.Store.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Store.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	// Backend-specific DSN variables win over the generic field.
	switch cfg.Store.Backend {
	case "mysql":
		setString(&cfg.Store.DSN, "MYSQL_DSN")
	case "postgres":
		setString(&cfg.Store.DSN, "POSTGRES_DSN")
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
