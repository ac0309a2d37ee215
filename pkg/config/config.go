// Package config loads dicelink settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"

	appDir = "dicelink"
)

// Config holds user settings. Command-line flags override it.
type Config struct {
	LogLevel          string        `yaml:"log_level" default:"info"`
	Backend           string        `yaml:"backend" default:"goble"`
	InitTimeout       time.Duration `yaml:"init_timeout" default:"20s"`
	ScanTimeout       time.Duration `yaml:"scan_timeout" default:"10s"`
	BondStore         string        `yaml:"bond_store"`
	PreviewRollDelay  time.Duration `yaml:"preview_roll_delay" default:"3s"`
	DiagnosticsBuffer uint32        `yaml:"diagnostics_buffer" default:"256"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if cfg.BondStore == "" {
		dir, err := Dir()
		if err == nil {
			cfg.BondStore = filepath.Join(dir, "bonds.yaml")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	switch c.Backend {
	case BackendGoBLE, BackendTinyGo:
	default:
		return fmt.Errorf("invalid backend %q: expected %s or %s", c.Backend, BackendGoBLE, BackendTinyGo)
	}
	if c.InitTimeout <= 0 {
		return fmt.Errorf("init_timeout must be positive, got %s", c.InitTimeout)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout)
	}
	if c.PreviewRollDelay < 0 {
		return fmt.Errorf("preview_roll_delay must not be negative, got %s", c.PreviewRollDelay)
	}
	if c.DiagnosticsBuffer == 0 {
		return fmt.Errorf("diagnostics_buffer must be positive")
	}
	return nil
}
