// Package config loads service configuration from TOML files and
// MATCHFLOW_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/matchflow/pkg/database"
	"github.com/JaimeStill/matchflow/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvMatchflowEnv             = "MATCHFLOW_ENV"
	EnvMatchflowShutdownTimeout = "MATCHFLOW_SHUTDOWN_TIMEOUT"
	EnvMatchflowVersion         = "MATCHFLOW_VERSION"
)

var databaseEnv = &database.Env{
	DSN:             "MATCHFLOW_DB_DSN",
	Host:            "MATCHFLOW_DB_HOST",
	Port:            "MATCHFLOW_DB_PORT",
	Name:            "MATCHFLOW_DB_NAME",
	User:            "MATCHFLOW_DB_USER",
	Password:        "MATCHFLOW_DB_PASSWORD",
	SSLMode:         "MATCHFLOW_DB_SSL_MODE",
	ApplicationName: "MATCHFLOW_DB_APPLICATION_NAME",
	MaxOpenConns:    "MATCHFLOW_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "MATCHFLOW_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "MATCHFLOW_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "MATCHFLOW_DB_CONN_TIMEOUT",
	HealthInterval:  "MATCHFLOW_DB_HEALTH_INTERVAL",
}

var storageEnv = &storage.Env{
	Provider:         "MATCHFLOW_STORAGE_PROVIDER",
	ContainerName:    "MATCHFLOW_STORAGE_CONTAINER_NAME",
	ConnectionString: "MATCHFLOW_STORAGE_CONNECTION_STRING",
	AccountURL:       "MATCHFLOW_STORAGE_ACCOUNT_URL",
	Bucket:           "MATCHFLOW_STORAGE_BUCKET",
}

// Config is the root configuration for the matchflow service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	API             APIConfig       `toml:"api"`
	Logging         LoggingConfig   `toml:"logging"`
	Agents          AgentsConfig    `toml:"agents"`
	Workflow        WorkflowConfig  `toml:"workflow"`
	Store           StoreConfig     `toml:"store"`
	Events          EventsConfig    `toml:"events"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the MATCHFLOW_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvMatchflowEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// LoadDatabase resolves only the database section, for tools that must not
// require agent or storage settings.
func LoadDatabase() (*database.Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Database.Finalize(databaseEnv); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return &cfg.Database, nil
}

func read() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Logging.Merge(&overlay.Logging)
	c.Agents.Merge(&overlay.Agents)
	c.Workflow.Merge(&overlay.Workflow)
	c.Store.Merge(&overlay.Store)
	c.Events.Merge(&overlay.Events)
}

// Finalize applies defaults, environment overrides, and validation to every section.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Store.Finalize(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.Store.Provider == StoreProviderPostgres {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Logging.Finalize(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Agents.Finalize(); err != nil {
		return fmt.Errorf("agents: %w", err)
	}
	if err := c.Workflow.Finalize(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if err := c.Events.Finalize(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvMatchflowShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvMatchflowVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvMatchflowEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
