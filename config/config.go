// Copyright (c) 2025 Frabely
// Licensed under the MIT License

// Package config provides configuration management for the KEBA home API.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Frabely/keba-home-api/pkg/errors"
)

const (
	defaultUDPPort    = 7090
	defaultModbusPort = 502
)

// Config represents the application configuration
type Config struct {
	Stations []StationConfig `yaml:"stations" validate:"required,min=1,dive"`
	Poll     PollConfig      `yaml:"poll"`
	Database DatabaseConfig  `yaml:"database"`
	HTTP     HTTPConfig      `yaml:"http"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// StationConfig describes one charging station to monitor
type StationConfig struct {
	Name         string `yaml:"name" validate:"required"`
	Host         string `yaml:"host" validate:"required"`
	Port         int    `yaml:"port" validate:"min=0,max=65535"`
	Source       string `yaml:"source" validate:"oneof=udp modbus"`
	ModbusUnitID int    `yaml:"modbus_unit_id" validate:"min=0,max=255"`
	EnergyUnit   string `yaml:"energy_unit" validate:"oneof=tenths_wh kwh"`
}

// PollConfig holds station polling settings
type PollConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Timeout         time.Duration `yaml:"timeout"`
	DebounceSamples int           `yaml:"debounce_samples" validate:"min=0,max=10"`
}

// DatabaseConfig holds session store settings
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// HTTPConfig holds the read API listener settings
type HTTPConfig struct {
	Bind string `yaml:"bind" validate:"required"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

var validate = validator.New()

// Load reads configuration from a YAML file and applies environment
// variable overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() {
	if path := os.Getenv("KEBA_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if bind := os.Getenv("KEBA_HTTP_BIND"); bind != "" {
		c.HTTP.Bind = bind
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if interval := os.Getenv("KEBA_POLL_INTERVAL"); interval != "" {
		duration, parseErr := time.ParseDuration(interval)
		if parseErr == nil {
			c.Poll.Interval = duration
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse KEBA_POLL_INTERVAL '%s': %v\n", interval, parseErr)
		}
	}
	if samples := os.Getenv("KEBA_DEBOUNCE_SAMPLES"); samples != "" {
		n, parseErr := strconv.Atoi(samples)
		if parseErr == nil {
			c.Poll.DebounceSamples = n
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse KEBA_DEBOUNCE_SAMPLES '%s': %v\n", samples, parseErr)
		}
	}
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	for i := range c.Stations {
		st := &c.Stations[i]
		if st.Source == "" {
			st.Source = "udp"
		}
		if st.Port == 0 {
			if st.Source == "modbus" {
				st.Port = defaultModbusPort
			} else {
				st.Port = defaultUDPPort
			}
		}
		if st.EnergyUnit == "" {
			st.EnergyUnit = "tenths_wh"
		}
		if st.ModbusUnitID == 0 && st.Source == "modbus" {
			st.ModbusUnitID = 255
		}
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = time.Second
	}
	if c.Poll.Timeout == 0 {
		c.Poll.Timeout = 2 * time.Second
	}
	if c.Poll.DebounceSamples == 0 {
		c.Poll.DebounceSamples = 2
	}
	if c.Database.Path == "" {
		c.Database.Path = "keba-sessions.db"
	}
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "0.0.0.0:8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// invalidConfig wraps a validation failure as a ConfigError carrying
// the ErrInvalidConfig sentinel.
func invalidConfig(field, value, format string, args ...any) error {
	return apperrors.NewConfigError(field, value,
		fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, fmt.Sprintf(format, args...)))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return invalidConfig(fe.Namespace(), "", "failed %s validation", fe.Tag())
		}
		return err
	}

	if err := c.validateStations(); err != nil {
		return err
	}
	if err := c.validatePoll(); err != nil {
		return err
	}
	return c.validateLogging()
}

// validateStations validates the station list beyond struct tags
func (c *Config) validateStations() error {
	seen := make(map[string]bool, len(c.Stations))
	for _, st := range c.Stations {
		if seen[st.Name] {
			return invalidConfig("stations", st.Name, "duplicate station name")
		}
		seen[st.Name] = true
	}
	return nil
}

// validatePoll validates the polling configuration
func (c *Config) validatePoll() error {
	if c.Poll.Interval < 100*time.Millisecond {
		return invalidConfig("poll.interval", c.Poll.Interval.String(), "must be at least 100ms")
	}
	if c.Poll.Interval > time.Hour {
		return invalidConfig("poll.interval", c.Poll.Interval.String(), "must not exceed 1 hour")
	}
	if c.Poll.Timeout < 50*time.Millisecond {
		return invalidConfig("poll.timeout", c.Poll.Timeout.String(), "must be at least 50ms")
	}
	if c.Poll.DebounceSamples < 1 || c.Poll.DebounceSamples > 10 {
		return invalidConfig("poll.debounce_samples", strconv.Itoa(c.Poll.DebounceSamples),
			"must be between 1 and 10")
	}
	return nil
}

// validateLogging validates the logging configuration
func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return invalidConfig("logging.level", c.Logging.Level,
			"must be one of: debug, info, warn, error, fatal, panic")
	}
	return nil
}
