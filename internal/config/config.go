// Package config loads pipeline configuration from file, environment
// and defaults, in that order of increasing precedence for the
// environment and decreasing for defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	State     StateConfig     `mapstructure:"state"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Records   RecordsConfig   `mapstructure:"records"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // auto, text, json
}

// StateConfig controls run state persistence.
type StateConfig struct {
	Dir        string `mapstructure:"dir"`
	HistoryCap int    `mapstructure:"history_cap"`
}

// WorkflowConfig holds run defaults.
type WorkflowConfig struct {
	DefaultType string        `mapstructure:"default_type"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RecordsConfig points at the record store backing the title queue.
type RecordsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Table   string        `mapstructure:"table"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PublishConfig toggles target platforms.
type PublishConfig struct {
	YouTube   bool `mapstructure:"youtube"`
	WordPress bool `mapstructure:"wordpress"`
	Instagram bool `mapstructure:"instagram"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SchedulerConfig configures the serve-mode poller.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// Load reads configuration from the given file (optional), the
// environment (REELFORGE_ prefix) and built-in defaults.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("reelforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/reelforge")
		if err := v.ReadInConfig(); err != nil {
			// A missing default config is fine; defaults and env apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch reloads the config file on change and invokes the callback
// with the fresh configuration. Invalid edits are logged by the caller
// and the previous config stays active.
func Watch(path string, onChange func(*Config, error)) error {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			onChange(nil, fmt.Errorf("unmarshaling config: %w", err))
			return
		}
		if err := cfg.Validate(); err != nil {
			onChange(nil, err)
			return
		}
		onChange(&cfg, nil)
	})
	v.WatchConfig()
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("REELFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("state.dir", "data/state")
	v.SetDefault("state.history_cap", 10)
	v.SetDefault("workflow.default_type", "standard")
	v.SetDefault("workflow.timeout", 45*time.Minute)
	v.SetDefault("records.table", "videos")
	v.SetDefault("records.timeout", 30*time.Second)
	v.SetDefault("publish.youtube", true)
	v.SetDefault("publish.wordpress", true)
	v.SetDefault("publish.instagram", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron", "@every 30m")
}

// Validate rejects configurations that would fail at runtime anyway.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir must not be empty")
	}
	if c.State.HistoryCap <= 0 {
		return fmt.Errorf("state.history_cap must be positive")
	}
	switch c.Workflow.DefaultType {
	case "standard", "wow", "test":
	default:
		return fmt.Errorf("invalid workflow.default_type %q", c.Workflow.DefaultType)
	}
	if c.Workflow.Timeout <= 0 {
		return fmt.Errorf("workflow.timeout must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.cron must be set when the scheduler is enabled")
	}
	return nil
}
