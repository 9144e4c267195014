// Package config loads runtime configuration from a YAML file, environment
// variables prefixed DOCKET_, and an optional .env file, in that order of
// increasing precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Store         StoreConfig         `mapstructure:"store"`
	Server        ServerConfig        `mapstructure:"server"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Connectivity  ConnectivityConfig  `mapstructure:"connectivity"`
	Logger        LoggerConfig        `mapstructure:"logger"`
}

// StoreConfig selects and tunes the document store backend.
type StoreConfig struct {
	// Backend is one of memory, sqlite, remote.
	Backend string `mapstructure:"backend"`

	// Path is the sqlite database file.
	Path string `mapstructure:"path"`

	// RemoteURL is the server root for the remote backend.
	RemoteURL string `mapstructure:"remote_url"`

	// PollInterval is the sqlite subscription poll cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ServerConfig tunes the serve daemon's HTTP listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SchedulerConfig tunes the reminder scanner.
type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Snooze   time.Duration `mapstructure:"snooze"`
}

// NotificationsConfig tunes reminder delivery.
type NotificationsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Icon    string `mapstructure:"icon"`
}

// ConnectivityConfig tunes the startup probe against the store.
type ConnectivityConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// LoggerConfig tunes log output and rotation.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout or file
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DOCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docket")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/docket")
	}
	return v
}

// Load reads configuration. An empty path searches the working directory and
// $HOME/.config/docket for docket.yaml; a missing file is not an error and
// leaves the defaults in place.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", "docket.db")
	v.SetDefault("store.remote_url", "http://localhost:8487")
	v.SetDefault("store.poll_interval", "250ms")

	v.SetDefault("server.addr", ":8487")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("scheduler.interval", "30s")
	v.SetDefault("scheduler.snooze", "10m")

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.icon", "")

	v.SetDefault("connectivity.attempts", 3)
	v.SetDefault("connectivity.backoff", "1s")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.filename", "docket.log")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 28)
	v.SetDefault("logger.compress", true)
}

// Validate rejects values nothing downstream can work with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "remote":
	default:
		return fmt.Errorf("config: unknown store backend %q (want memory, sqlite, or remote)", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("config: sqlite backend needs store.path")
	}
	if c.Store.Backend == "remote" && strings.TrimSpace(c.Store.RemoteURL) == "" {
		return fmt.Errorf("config: remote backend needs store.remote_url")
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("config: scheduler.interval %s is below 1s", c.Scheduler.Interval)
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown logger format %q (want json or console)", c.Logger.Format)
	}
	switch c.Logger.Output {
	case "stdout", "file":
	default:
		return fmt.Errorf("config: unknown logger output %q (want stdout or file)", c.Logger.Output)
	}
	return nil
}
