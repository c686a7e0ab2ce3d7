package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/linestream"
)

// Config holds the linestream process configuration.
type Config struct {
	Addr        string        `yaml:"addr"`
	Mode        string        `yaml:"mode"`
	BufferSize  int           `yaml:"buffer_size"`
	StrictEOF   bool          `yaml:"strict_eof"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
	MetricsAddr string        `yaml:"metrics_addr"`
	LogLevel    string        `yaml:"log_level"`
	LogNoColor  bool          `yaml:"log_no_color"`

	Send SendConfig `yaml:"send"`
}

// SendConfig configures the send command.
type SendConfig struct {
	Count int    `yaml:"count"`
	Text  string `yaml:"text"`
	N     uint32 `yaml:"n"`
}

func defaultConfig() *Config {
	return &Config{
		Addr:       "127.0.0.1:5555",
		Mode:       string(linestream.ModeNext),
		BufferSize: linestream.DefaultBufferSize,
		Heartbeat:  30 * time.Second,
		LogLevel:   "info",
		Send: SendConfig{
			Count: 100000,
			Text:  "Hello",
			N:     12,
		},
	}
}

// Load reads the configuration from the given YAML file path.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := linestream.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.BufferSize < 2 {
		return errors.Errorf("buffer_size must be at least 2, got %d", c.BufferSize)
	}
	if c.Heartbeat <= 0 {
		return errors.Errorf("heartbeat must be positive, got %s", c.Heartbeat)
	}
	return nil
}
