// Package cfg is the session's YAML configuration, grounded on the
// teacher's internal/config.LoginServer/GameServer: a flat struct with
// yaml tags, optional fields defaulted in code, and a Load that reads a
// file and unmarshals it with gopkg.in/yaml.v3.
package cfg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level session configuration.
type Config struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	OutputDir string `yaml:"output_dir"`
	Autostart bool   `yaml:"autostart"`

	PingIntervalSeconds int `yaml:"ping_interval_seconds"`
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds"`
	LoginTimeoutSeconds int `yaml:"login_timeout_seconds"`

	LogLevel string `yaml:"log_level"`

	Controller       string         `yaml:"controller"`
	ControllerParams map[string]any `yaml:"controller_params"`
}

// PingInterval returns the configured ping interval, or zero if unset
// (comm.New then applies the transport default).
func (c Config) PingInterval() time.Duration {
	if c.PingIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout, or zero if unset
// (comm.New then applies the transport default).
func (c Config) IdleTimeout() time.Duration {
	if c.IdleTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// LoginTimeout returns the configured login timeout, or zero if unset
// (comm.New then applies its 5-second default).
func (c Config) LoginTimeout() time.Duration {
	if c.LoginTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.LoginTimeoutSeconds) * time.Second
}

// Load reads and parses path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cfg: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("cfg: parse %s: %w", path, err)
	}
	if c.Port == 0 {
		c.Port = 9123
	}
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0"
	}
	return c, nil
}
