// Package config loads revkit configuration from an optional YAML file
// and REVKIT_* environment variables. Environment values win over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REVKIT"

// Default values.
const (
	DefaultDriver        = "sqlite3"
	DefaultPath          = "revkit.db"
	DefaultDeletionDelay = 72 * time.Hour
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

// Config is the complete configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Events   EventsConfig   `yaml:"events"`
	Engine   EngineConfig   `yaml:"engine"`
	Log      LogConfig      `yaml:"log"`
	Schema   SchemaConfig   `yaml:"schema"`
}

// DatabaseConfig selects and configures the storage driver.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

// EventsConfig configures event sinks.
type EventsConfig struct {
	Log   bool        `yaml:"log"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis Streams sink. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// EngineConfig holds revision engine options.
type EngineConfig struct {
	Simulation    bool     `yaml:"simulation"`
	DeletionDelay Duration `yaml:"deletion_delay"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchemaConfig lists entity type definition files.
type SchemaConfig struct {
	Paths []string `yaml:"paths"`
}

// Duration is a time.Duration written as "72h" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: DefaultDriver, Path: DefaultPath, Port: 5432, SSLMode: "disable"},
		Engine:   EngineConfig{DeletionDelay: Duration(DefaultDeletionDelay)},
		Log:      LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.LoadFromEnv(EnvPrefix)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML over cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadFromEnv applies PREFIX_* environment overrides.
func (c *Config) LoadFromEnv(prefix string) {
	c.Database.LoadFromEnv(prefix + "_DATABASE")
	c.Events.Redis.LoadFromEnv(prefix + "_REDIS")

	if v, ok := envBool(prefix + "_SIMULATION"); ok {
		c.Engine.Simulation = v
	}
	if v := os.Getenv(prefix + "_DELETION_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.DeletionDelay = Duration(d)
		}
	}
	if v := os.Getenv(prefix + "_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(prefix + "_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(prefix + "_SCHEMA_PATHS"); v != "" {
		c.Schema.Paths = strings.Split(v, string(os.PathListSeparator))
	}
}

// LoadFromEnv applies database overrides.
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	if v := os.Getenv(prefix + "_DRIVER"); v != "" {
		c.Driver = v
	}
	if v := os.Getenv(prefix + "_PATH"); v != "" {
		c.Path = v
	}
	if v := os.Getenv(prefix + "_DSN"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv(prefix + "_HOST"); v != "" {
		c.Host = v
	}
	if v, ok := envInt(prefix + "_PORT"); ok {
		c.Port = v
	}
	if v := os.Getenv(prefix + "_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv(prefix + "_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv(prefix + "_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv(prefix + "_SSLMODE"); v != "" {
		c.SSLMode = v
	}
	if v, ok := envInt(prefix + "_MAX_CONNS"); ok {
		c.MaxConns = v
	}
}

// LoadFromEnv applies Redis overrides.
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if v := os.Getenv(prefix + "_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(prefix + "_PASSWORD"); v != "" {
		c.Password = v
	}
	if v, ok := envInt(prefix + "_DB"); ok {
		c.DB = v
	}
	if v := os.Getenv(prefix + "_STREAM"); v != "" {
		c.Stream = v
	}
}

// GetDSN returns the postgres connection string: DSN when set, otherwise
// one built from the individual fields.
func (c DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// DataSource returns the driver name and data source for store.Open.
func (c DatabaseConfig) DataSource() (driver, dsn string) {
	if c.Driver == "postgres" {
		return c.Driver, c.GetDSN()
	}
	return c.Driver, c.Path
}

// SlogLevel maps Level to a slog level; unknown values are Info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite3"))
		}
	case "postgres":
		if c.Database.DSN == "" && c.Database.Host == "" {
			errs = append(errs, errors.New("database.dsn or database.host is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want sqlite3 or postgres", c.Database.Driver))
	}
	if c.Database.MaxConns < 0 {
		errs = append(errs, errors.New("database.max_conns must not be negative"))
	}
	if c.Engine.DeletionDelay < 0 {
		errs = append(errs, errors.New("engine.deletion_delay must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
