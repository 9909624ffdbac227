package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/waapi-kit/waapi-kit/internal/undo"
	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Undo       UndoConfig       `yaml:"undo"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Mock       MockConfig       `yaml:"mock"`
}

type ConnectionConfig struct {
	Host           string        `yaml:"host" env:"WAAPI_HOST"`
	Port           int           `yaml:"port" env:"WAAPI_PORT"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"WAAPI_CONNECT_TIMEOUT"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type UndoConfig struct {
	GraceWindow       time.Duration `yaml:"grace_window" env:"WAAPI_GRACE_WINDOW"`
	ChangeTopics      []string      `yaml:"change_topics"`
	WatchedProperties []string      `yaml:"watched_properties" env:"WAAPI_WATCHED_PROPERTIES"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"WAAPI_LOG_LEVEL"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"WAAPI_METRICS_ADDR"`
}

type MockConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	EventInterval time.Duration `yaml:"event_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Host:           "127.0.0.1",
			Port:           waapi.DefaultPort,
			ConnectTimeout: 5 * time.Second,
			PingInterval:   30 * time.Second,
		},
		Undo: UndoConfig{
			GraceWindow:       undo.DefaultGraceWindow,
			ChangeTopics:      waapi.ChangeTopics(),
			WatchedProperties: waapi.WatchedProperties(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Mock: MockConfig{
			Host: "127.0.0.1",
			Port: waapi.DefaultPort,
		},
	}
}

// Default returns the built-in configuration with environment overrides applied.
func Default() (*Config, error) {
	cfg := defaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Load reads a YAML file over the defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file (or an empty path) yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default()
	}
	return cfg, err
}

func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if p := c.Connection.Port; p < 1 || p > 65535 {
		return fmt.Errorf("connection.port %d out of range", p)
	}
	if c.Connection.ConnectTimeout <= 0 {
		return fmt.Errorf("connection.connect_timeout must be positive")
	}
	if c.Connection.CallTimeout < 0 {
		return fmt.Errorf("connection.call_timeout must not be negative")
	}
	if c.Undo.GraceWindow < 0 {
		return fmt.Errorf("undo.grace_window must not be negative")
	}
	if p := c.Mock.Port; p < 1 || p > 65535 {
		return fmt.Errorf("mock.port %d out of range", p)
	}
	return nil
}

// Client returns the session settings for waapi.New.
func (c *Config) Client() waapi.Config {
	wc := waapi.DefaultConfig()
	wc.ConnectTimeout = c.Connection.ConnectTimeout
	wc.CallTimeout = c.Connection.CallTimeout
	wc.PingInterval = c.Connection.PingInterval
	return wc
}
