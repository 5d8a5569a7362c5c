// YAML config loader with CUE validation and environment overrides
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"skyarena/internal/logging"
)

// DatabaseConfig selects the history store engine.
type DatabaseConfig struct {
	Type string `yaml:"type" env:"SKYARENA_DB_TYPE"`
	Path string `yaml:"path" env:"SKYARENA_DB_PATH"`
	DSN  string `yaml:"dsn" env:"SKYARENA_DB_DSN"`
}

// GreptimeConfig enables the GreptimeDB mirror when Endpoint is set.
type GreptimeConfig struct {
	Endpoint    string `yaml:"endpoint" env:"SKYARENA_GREPTIME_ENDPOINT"`
	Database    string `yaml:"database" env:"SKYARENA_GREPTIME_DATABASE"`
	TablePrefix string `yaml:"table_prefix" env:"SKYARENA_GREPTIME_TABLE_PREFIX"`
}

// AuthConfig enables bearer keys when Secret is set.
type AuthConfig struct {
	Secret string `yaml:"secret" env:"SKYARENA_AUTH_SECRET"`
}

// Config is the root server configuration.
type Config struct {
	Listen           string        `yaml:"listen" env:"SKYARENA_LISTEN"`
	HomeTeam         int           `yaml:"home_team" env:"SKYARENA_HOME_TEAM"`
	RatePeriod       time.Duration `yaml:"rate_period" env:"SKYARENA_RATE_PERIOD"`
	Staleness        time.Duration `yaml:"staleness" env:"SKYARENA_STALENESS"`
	PruneFactor      int           `yaml:"prune_factor" env:"SKYARENA_PRUNE_FACTOR"`
	PersistQueue     int           `yaml:"persist_queue" env:"SKYARENA_PERSIST_QUEUE"`
	SubscriberBuffer int           `yaml:"subscriber_buffer" env:"SKYARENA_SUBSCRIBER_BUFFER"`
	Heartbeat        time.Duration `yaml:"heartbeat" env:"SKYARENA_HEARTBEAT"`
	RegistryRefresh  time.Duration `yaml:"registry_refresh" env:"SKYARENA_REGISTRY_REFRESH"`
	QRLat            float64       `yaml:"qr_lat" env:"SKYARENA_QR_LAT"`
	QRLon            float64       `yaml:"qr_lon" env:"SKYARENA_QR_LON"`
	// LogFile mirrors the history streams as JSON lines when set.
	LogFile  string          `yaml:"log_file" env:"SKYARENA_LOG_FILE"`
	Auth     AuthConfig      `yaml:"auth"`
	Database DatabaseConfig  `yaml:"database"`
	Greptime GreptimeConfig  `yaml:"greptime"`
	Logging  logging.Options `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:           ":10001",
		HomeTeam:         25,
		RatePeriod:       500 * time.Millisecond,
		Staleness:        5 * time.Second,
		PruneFactor:      10,
		PersistQueue:     4096,
		SubscriberBuffer: 64,
		Heartbeat:        15 * time.Second,
		RegistryRefresh:  2 * time.Second,
		QRLat:            41.51238882,
		QRLon:            36.11935778,
		Database:         DatabaseConfig{Type: "sqlite", Path: "skyarena.db"},
		Greptime:         GreptimeConfig{Database: "public", TablePrefix: "skyarena"},
		Logging:          logging.Options{Level: "info", Format: "text", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load starts from Default, overlays the YAML file at path (validated
// against the CUE schema at schemaPath, or the embedded one when empty)
// and then environment variables. An empty path skips the file.
func Load(path, schemaPath string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
		if len(bytes.TrimSpace(data)) > 0 {
			schema := embeddedSchema
			if schemaPath != "" {
				if schema, err = os.ReadFile(schemaPath); err != nil {
					return nil, fmt.Errorf("cannot read CUE schema: %w", err)
				}
			}
			if err := ValidateWithCue(path, data, schema); err != nil {
				return nil, err
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
			}
		}
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv overlays SKYARENA_* variables onto target. Unset variables keep
// the current value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks values that the schema cannot see, such as those set by
// flags or the environment.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen must be set"))
	}
	if c.RatePeriod < 0 {
		errs = append(errs, errors.New("rate_period must not be negative"))
	}
	if c.Staleness <= 0 {
		errs = append(errs, errors.New("staleness must be positive"))
	}
	if c.PruneFactor < 1 {
		errs = append(errs, errors.New("prune_factor must be at least 1"))
	}
	switch c.Database.Type {
	case "sqlite", "duckdb":
		if c.Database.Path == "" {
			errs = append(errs, fmt.Errorf("database.path required for %s", c.Database.Type))
		}
	case "pgx":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn required for pgx"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database type: %s", c.Database.Type))
	}
	return errors.Join(errs...)
}
