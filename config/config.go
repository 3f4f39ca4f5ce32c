// Package config loads vimy-colony settings from defaults, an optional YAML
// file and VIMY_COLONY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nstehr/vimy/vimy-colony/adaptive"
	"github.com/nstehr/vimy/vimy-colony/agent"
	"github.com/nstehr/vimy/vimy-colony/colony"
	"github.com/nstehr/vimy/vimy-colony/counter"
	"github.com/nstehr/vimy/vimy-colony/events"
	"github.com/nstehr/vimy/vimy-colony/explore"
	"github.com/nstehr/vimy/vimy-colony/memory"
	"github.com/nstehr/vimy/vimy-colony/monitor"
	"github.com/nstehr/vimy/vimy-colony/store"
	"github.com/nstehr/vimy/vimy-colony/trigger"
)

// EnvPrefix prefixes every environment override, e.g.
// VIMY_COLONY_SERVER_SOCKET.
const EnvPrefix = "VIMY_COLONY"

// Config holds all configuration for vimy-colony.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   store.Config  `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`

	Events   events.Config      `mapstructure:"events"`
	Memory   memory.Config      `mapstructure:"memory"`
	Monitor  monitor.Config     `mapstructure:"monitor"`
	Adaptive adaptive.Config    `mapstructure:"adaptive"`
	Trigger  trigger.Config     `mapstructure:"trigger"`
	Counter  counter.Config     `mapstructure:"counter"`
	Explore  explore.Config     `mapstructure:"explore"`
	Colony   colony.Config      `mapstructure:"colony"`
	Runner   agent.RunnerConfig `mapstructure:"runner"`

	// Seed feeds every random source. Zero picks one from the clock.
	Seed int64 `mapstructure:"seed"`
}

// ServerConfig holds the game-host socket settings.
type ServerConfig struct {
	Socket       string        `mapstructure:"socket"`
	ReplyTimeout time.Duration `mapstructure:"reply_timeout"`
}

// LoggingConfig holds structured logging settings. File, when set, receives
// a rotated copy of everything written to stderr.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Socket: "/tmp/vimy-colony.sock", ReplyTimeout: 2 * time.Second},
		Store:  store.DefaultConfig(),
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Events:   events.DefaultConfig(),
		Memory:   memory.DefaultConfig(),
		Monitor:  monitor.DefaultConfig(),
		Adaptive: adaptive.DefaultConfig(),
		Trigger:  trigger.DefaultConfig(),
		Counter:  counter.DefaultConfig(),
		Explore:  explore.DefaultConfig(),
		Colony:   colony.DefaultConfig(),
		Runner:   agent.DefaultRunnerConfig(),
	}
}

// Load reads configuration from path (or vimy-colony.yaml in the working
// directory and ~/.vimy-colony when path is empty) and the environment.
// Settings absent from both keep their Default value. Map-valued engine
// tables (memory categories, trigger weights) replace whole entries, so an
// override must list every field of the entry it touches.
func Load(path string) (*Config, error) {
	v := viper.New()
	d := Default()

	v.SetDefault("server.socket", d.Server.Socket)
	v.SetDefault("server.reply_timeout", d.Server.ReplyTimeout)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.busy_timeout", d.Store.BusyTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)

	v.SetDefault("events.poll_interval", d.Events.PollInterval)
	v.SetDefault("events.max_attempts", d.Events.MaxAttempts)
	v.SetDefault("events.max_history", d.Events.MaxHistory)

	v.SetDefault("runner.workers", d.Runner.Workers)
	v.SetDefault("runner.ticks_per_second", d.Runner.TicksPerSecond)
	v.SetDefault("runner.burst", d.Runner.Burst)

	v.SetDefault("seed", d.Seed)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vimy-colony")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(homeDir(), ".vimy-colony"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := d
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Socket == "" {
		return errors.New("server.socket must not be empty")
	}
	if c.Server.ReplyTimeout <= 0 {
		return errors.New("server.reply_timeout must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		return errors.New("logging.max_size_mb must be positive")
	}

	sections := []struct {
		name     string
		validate func() error
	}{
		{"store", c.Store.Validate},
		{"events", c.Events.Validate},
		{"memory", c.Memory.Validate},
		{"monitor", c.Monitor.Validate},
		{"adaptive", c.Adaptive.Validate},
		{"trigger", c.Trigger.Validate},
		{"counter", c.Counter.Validate},
		{"explore", c.Explore.Validate},
		{"colony", c.Colony.Validate},
		{"runner", c.Runner.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
