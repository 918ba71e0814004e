// Package config loads the runtime configuration shared by the host tools
// and the firmware build.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/spf13/afero"

	"gotiki/core"
)

// Config is the JSON runtime configuration. Durations are given in wall
// units and converted to ticks by Core.
type Config struct {
	TicksPerSecond  uint32 `json:"ticks_per_second"`
	LateFireSlackMs uint32 `json:"late_fire_slack_ms"`
	BlockCeilingS   uint32 `json:"block_ceiling_s"`
	KeepaliveMs     uint32 `json:"keepalive_ms"`
	MaxEvents       int    `json:"max_events"`
	LogLevel        string `json:"log_level"`
}

// LoadConfig parses a JSON configuration and returns it with defaults
// applied.
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile reads and parses the configuration file at path.
func LoadFile(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadConfig(data)
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *Config) {
	if config.TicksPerSecond == 0 {
		config.TicksPerSecond = uint32(core.DefaultTickRate)
	}
	if config.LateFireSlackMs == 0 {
		config.LateFireSlackMs = 20
	}
	if config.BlockCeilingS == 0 {
		config.BlockCeilingS = 1800 // 30 minutes
	}
	if config.KeepaliveMs == 0 {
		config.KeepaliveMs = 60000
	}
	if config.MaxEvents == 0 {
		config.MaxEvents = 32
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// Default returns the default configuration.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.MaxEvents < 0 {
		return fmt.Errorf("config: max_events must not be negative, got %d", c.MaxEvents)
	}
	rate := core.TickRate(c.TicksPerSecond)
	if c.BlockCeilingS > core.MaxDelta/uint32(rate) {
		return fmt.Errorf("config: block_ceiling_s %d overflows the tick range", c.BlockCeilingS)
	}
	if rate.Ms(c.KeepaliveMs) > core.MaxDelta {
		return fmt.Errorf("config: keepalive_ms %d overflows the tick range", c.KeepaliveMs)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Core converts the configuration to runtime constants in ticks.
func (c *Config) Core() core.Config {
	rate := core.TickRate(c.TicksPerSecond)
	return core.Config{
		Rate:          rate,
		LateFireSlack: rate.Ms(c.LateFireSlackMs),
		BlockCeiling:  rate.Sec(c.BlockCeilingS),
		Keepalive:     rate.Ms(c.KeepaliveMs),
	}
}

// Level returns the parsed log level.
func (c *Config) Level() logiface.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel parses a syslog-style level name, as written by the logger.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return logiface.LevelTrace, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "info", "informational":
		return logiface.LevelInformational, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "warn", "warning":
		return logiface.LevelWarning, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "emerg", "emergency":
		return logiface.LevelEmergency, nil
	case "off", "disabled":
		return logiface.LevelDisabled, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("config: unknown log level %q", s)
}
