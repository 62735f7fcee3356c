// Package config loads notifmon configuration.
// Precedence, lowest first: built-in defaults, YAML file, .env file, environment (NOTIFMON_*).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/notif_mon/internal/infra"
)

// EnvPrefix is the prefix of every environment override, e.g. NOTIFMON_STORE_BACKEND.
const EnvPrefix = "notifmon"

// Store backends.
const (
	BackendSQLCipher = "sqlcipher"
	BackendFile      = "file"
	BackendRedis     = "redis"
)

// Config holds all application configuration.
// Env tags carry no defaults so unset variables never clobber file values.
type Config struct {
	DataDir  string         `yaml:"data_dir" envconfig:"DATA_DIR"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Listener ListenerConfig `yaml:"listener"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL"`
	File  string `yaml:"file" envconfig:"FILE"` // Daemon log file; empty means <data_dir>/notifmon.log
}

// StoreConfig selects the preference backend.
type StoreConfig struct {
	Backend     string `yaml:"backend" envconfig:"BACKEND"`
	RedisURL    string `yaml:"redis_url" envconfig:"REDIS_URL"`
	RedisPrefix string `yaml:"redis_prefix" envconfig:"REDIS_PREFIX"`
}

// ListenerConfig holds listener runtime settings.
type ListenerConfig struct {
	ReconnectInterval time.Duration `yaml:"reconnect_interval" envconfig:"RECONNECT_INTERVAL"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL"`
	SettingsCommand   string        `yaml:"settings_command" envconfig:"SETTINGS_COMMAND"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Addr string `yaml:"addr" envconfig:"ADDR"` // Empty disables the metrics server
}

// Options controls where Load looks.
type Options struct {
	// File is an explicit config path; it must exist. When empty,
	// <data dir>/config.yaml is used if present.
	File string

	// DataDir overrides the data directory. Only its config.yaml is consulted.
	DataDir string

	// EnvFiles are dotenv files loaded when present. Existing environment wins.
	EnvFiles []string
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		DataDir: infra.DetectExecMode().DataDir,
		Log: LogConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Backend:     BackendSQLCipher,
			RedisPrefix: "notifmon:",
		},
		Listener: ListenerConfig{
			ReconnectInterval: 5 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			SettingsCommand:   infra.DefaultSettingsCommand,
		},
	}
}

// DefaultFile returns the config file consulted when none is given.
func DefaultFile() string {
	return filepath.Join(infra.DetectExecMode().DataDir, "config.yaml")
}

// Load builds the configuration.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	file, required := opts.File, true
	if file == "" && opts.DataDir != "" {
		file, required = filepath.Join(opts.DataDir, "config.yaml"), false
	} else if file == "" {
		file, required = DefaultFile(), false
	}
	if err := loadFile(cfg, file, required); err != nil {
		return nil, err
	}

	for _, f := range opts.EnvFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	if _, err := c.ZapLevel(); err != nil {
		errs = append(errs, err)
	}

	switch c.Store.Backend {
	case BackendSQLCipher, BackendFile:
	case BackendRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q (want %s, %s or %s)",
			c.Store.Backend, BackendSQLCipher, BackendFile, BackendRedis))
	}

	if c.Listener.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("listener.reconnect_interval must be positive"))
	}
	if c.Listener.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("listener.heartbeat_interval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ZapLevel parses Log.Level.
func (c *Config) ZapLevel() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return lvl, nil
}

// LogFile returns the daemon log path.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "notifmon.log")
}
