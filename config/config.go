// Package config provides configuration management for the application.
//
// Values are resolved in this order, later sources winning:
// built-in defaults, config.yaml (with ${VAR} and ${VAR:-default}
// placeholders expanded), then environment variables. A .env file in the
// working directory is loaded into the environment first, without
// overriding variables that are already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when CONFIG_FILE is not set.
const DefaultConfigFile = "config.yaml"

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Batcher BatcherConfig `yaml:"batcher"`
	Table   TableConfig   `yaml:"table"`
	Chart   ChartConfig   `yaml:"chart"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
	Sources []Source      `yaml:"sources"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// APIKey protects the write endpoints when set
	APIKey        string `yaml:"api_key"`
	BodySizeLimit int64  `yaml:"body_size_limit"`
}

// CacheConfig holds request cache configuration
type CacheConfig struct {
	// Backend is "local" (default), "redis", "sqlite", "postgresql" or "mongodb"
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	// SnapshotFile persists the local backend across restarts (optional)
	SnapshotFile string `yaml:"snapshot_file"`
	RedisURL     string `yaml:"redis_url"`
	RedisPrefix  string `yaml:"redis_prefix"`
	SQLitePath   string `yaml:"sqlite_path"`
	PostgresURL  string `yaml:"postgres_url"`
	// PostgresMaxConns sizes the pool (default: 10)
	PostgresMaxConns int    `yaml:"postgres_max_conns"`
	MongoURL         string `yaml:"mongo_url"`
	MongoDatabase    string `yaml:"mongo_database"`
}

// BatcherConfig holds update batcher configuration
type BatcherConfig struct {
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// TableConfig holds table renderer configuration
type TableConfig struct {
	VisibleRows int `yaml:"visible_rows"`
}

// ChartConfig holds chart engine configuration
type ChartConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig holds log output configuration
type LoggingConfig struct {
	// Format is "auto" (default), "json" or "text"
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Source is a remote JSON resource refreshed into a container.
type Source struct {
	ID       string        `yaml:"id"`
	URL      string        `yaml:"url"`
	Kind     string        `yaml:"kind"` // "table" or "chart"
	Interval time.Duration `yaml:"interval"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Cache: CacheConfig{
			Backend:    "local",
			TTL:        5 * time.Minute,
			MaxEntries: 50,
		},
		Batcher: BatcherConfig{FrameInterval: time.Second / 60},
		Table:   TableConfig{VisibleRows: 50},
		Chart:   ChartConfig{Width: 800, Height: 400},
		Metrics: MetricsConfig{Enabled: false, Endpoint: "/metrics"},
		Logging: LoggingConfig{Format: "auto", Level: "info"},
	}
}

// Load reads configuration from .env, the config file and the environment.
func Load() (*Config, error) {
	// Optional, won't fail if not found
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config file path. A missing file is not
// an error.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := expandString(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case "local", "":
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url is required for the redis backend"))
		}
	case "sqlite":
	case "postgresql":
		if c.Cache.PostgresURL == "" {
			errs = append(errs, errors.New("cache.postgres_url is required for the postgresql backend"))
		}
	case "mongodb":
		if c.Cache.MongoURL == "" {
			errs = append(errs, errors.New("cache.mongo_url is required for the mongodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" || s.URL == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: id and url are required", i))
		}
		if s.Kind != "table" && s.Kind != "chart" {
			errs = append(errs, fmt.Errorf("sources[%d]: kind must be table or chart, got %q", i, s.Kind))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
	}
	return errors.Join(errs...)
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// An unset VAR without a default expands to the empty string.
func expandString(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[3]
	})
}

// applyEnvOverrides overlays well-known environment variables.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	setString("PORT", &cfg.Server.Port)
	setString("API_KEY", &cfg.Server.APIKey)
	setString("CACHE_BACKEND", &cfg.Cache.Backend)
	setDuration("CACHE_TTL", &cfg.Cache.TTL)
	setInt("CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)
	setString("CACHE_SNAPSHOT_FILE", &cfg.Cache.SnapshotFile)
	setString("REDIS_URL", &cfg.Cache.RedisURL)
	setString("REDIS_PREFIX", &cfg.Cache.RedisPrefix)
	setString("SQLITE_PATH", &cfg.Cache.SQLitePath)
	setString("POSTGRES_URL", &cfg.Cache.PostgresURL)
	setString("MONGODB_URL", &cfg.Cache.MongoURL)
	setDuration("FRAME_INTERVAL", &cfg.Batcher.FrameInterval)
	setInt("TABLE_VISIBLE_ROWS", &cfg.Table.VisibleRows)
	setBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	setString("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)
	setString("LOG_FORMAT", &cfg.Logging.Format)
	setString("LOG_LEVEL", &cfg.Logging.Level)

	return errors.Join(errs...)
}
