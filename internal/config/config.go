// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package config loads the mistral configuration with viper and validates it.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Thermoquad/mistral/internal/logger"
	"github.com/Thermoquad/mistral/pkg/climate"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// EnvPrefix prefixes every environment override, e.g. MISTRAL_BRIDGE_PORT
const EnvPrefix = "MISTRAL"

// DefaultConfigName is the config file searched for when none is given
const DefaultConfigName = "mistral"

// NoPin marks an unwired GPIO
const NoPin = -1

// Config is the typed configuration record
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Climate ClimateConfig `mapstructure:"climate"`
	Storage StorageConfig `mapstructure:"storage"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
}

// DeviceConfig identifies the unit and its direct GPIO wiring
type DeviceConfig struct {
	ID                string `mapstructure:"id"`
	Name              string `mapstructure:"name"`
	GPIOChip          string `mapstructure:"gpio_chip"`
	ReceiverPin       int    `mapstructure:"receiver_pin"`
	ReceiverActiveLow bool   `mapstructure:"receiver_active_low"`
	TransmitterPin    int    `mapstructure:"transmitter_pin"`
}

// BridgeConfig selects the IR bridge link: a serial port or a WebSocket URL
type BridgeConfig struct {
	Port        string `mapstructure:"port"`
	Baud        int    `mapstructure:"baud"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"no_ssl_verify"`
}

// ClimateConfig holds the capability table and timing
type ClimateConfig struct {
	MinTemperature   float64       `mapstructure:"min_temperature"`
	MaxTemperature   float64       `mapstructure:"max_temperature"`
	TemperatureStep  float64       `mapstructure:"temperature_step"`
	Swing            bool          `mapstructure:"swing"`
	TransmitTimeout  time.Duration `mapstructure:"transmit_timeout"`
	TolerancePercent int           `mapstructure:"tolerance_percent"`
	FrameGap         time.Duration `mapstructure:"frame_gap"`
}

// StorageConfig locates the SQLite database
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig configures the API listener
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers the default of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("device.id", "fujitsu_legacy")
	v.SetDefault("device.name", "Air Conditioner")
	v.SetDefault("device.gpio_chip", "gpiochip0")
	v.SetDefault("device.receiver_pin", NoPin)
	v.SetDefault("device.receiver_active_low", true)
	v.SetDefault("device.transmitter_pin", NoPin)

	v.SetDefault("bridge.port", "")
	v.SetDefault("bridge.baud", 115200)
	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.username", "")
	v.SetDefault("bridge.no_ssl_verify", false)

	v.SetDefault("climate.min_temperature", float64(fujitsu.MinCelsius))
	v.SetDefault("climate.max_temperature", float64(fujitsu.MaxCelsius))
	v.SetDefault("climate.temperature_step", 1.0)
	v.SetDefault("climate.swing", true)
	v.SetDefault("climate.transmit_timeout", climate.DefaultTransmitTimeout)
	v.SetDefault("climate.tolerance_percent", fujitsu.DefaultTolerancePercent)
	v.SetDefault("climate.frame_gap", 12*time.Millisecond)

	v.SetDefault("storage.path", "mistral.db")
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("log.level", logger.InfoLevel)
}

// Load reads configuration into v and returns the validated record.
// With file empty, mistral.yaml is searched in . and /etc/mistral and may be absent.
// Environment variables override the file.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mistral")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the record and returns every problem found, joined
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Device.ID) == "" {
		add("device.id is required")
	}
	if c.Device.ReceiverPin < NoPin {
		add("device.receiver_pin must be %d (unwired) or a GPIO number, got %d", NoPin, c.Device.ReceiverPin)
	}
	if c.Device.TransmitterPin < NoPin {
		add("device.transmitter_pin must be %d (unwired) or a GPIO number, got %d", NoPin, c.Device.TransmitterPin)
	}
	if c.Device.ReceiverPin >= 0 && c.Device.ReceiverPin == c.Device.TransmitterPin {
		add("device.receiver_pin and device.transmitter_pin are both GPIO %d", c.Device.ReceiverPin)
	}
	if (c.Device.ReceiverPin >= 0 || c.Device.TransmitterPin >= 0) && strings.TrimSpace(c.Device.GPIOChip) == "" {
		add("device.gpio_chip is required when a GPIO pin is wired")
	}

	if c.Bridge.Port != "" && c.Bridge.URL != "" {
		add("bridge.port and bridge.url are mutually exclusive")
	}
	if c.Bridge.Port != "" && c.Bridge.Baud <= 0 {
		add("bridge.baud must be positive, got %d", c.Bridge.Baud)
	}
	if c.Bridge.URL != "" && !strings.HasPrefix(c.Bridge.URL, "ws://") && !strings.HasPrefix(c.Bridge.URL, "wss://") {
		add("bridge.url must start with ws:// or wss://, got %q", c.Bridge.URL)
	}

	if _, err := c.Capabilities(); err != nil {
		add("climate: %v", err)
	}
	if c.Climate.TransmitTimeout <= 0 {
		add("climate.transmit_timeout must be positive, got %s", c.Climate.TransmitTimeout)
	}
	if c.Climate.TolerancePercent < 1 || c.Climate.TolerancePercent > 50 {
		add("climate.tolerance_percent must be within 1-50, got %d", c.Climate.TolerancePercent)
	}
	// The frame gap must outlast the 8 ms gap between messages of one frame
	if c.Climate.FrameGap <= time.Duration(fujitsu.TrailerSpace)*time.Microsecond {
		add("climate.frame_gap must exceed %dus, got %s", fujitsu.TrailerSpace, c.Climate.FrameGap)
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		add("storage.path is required")
	}
	if !slices.Contains(logger.Levels, c.Log.Level) {
		add("log.level must be one of %s, got %q", strings.Join(logger.Levels, ", "), c.Log.Level)
	}

	return errors.Join(errs...)
}

// HasBridge reports whether an IR bridge link is configured
func (c *Config) HasBridge() bool {
	return c.Bridge.Port != "" || c.Bridge.URL != ""
}

// Capabilities returns the capability table described by the climate section
func (c *Config) Capabilities() (climate.Capabilities, error) {
	caps := climate.DefaultCapabilities()
	caps.MinTemperature = fujitsu.Celsius(c.Climate.MinTemperature)
	caps.MaxTemperature = fujitsu.Celsius(c.Climate.MaxTemperature)
	caps.TemperatureStep = fujitsu.Celsius(c.Climate.TemperatureStep)
	caps.SupportsSwing = c.Climate.Swing
	if err := caps.Check(); err != nil {
		return climate.Capabilities{}, err
	}
	return caps, nil
}

// ControllerConfig returns the construction record for the climate controller
func (c *Config) ControllerConfig() (climate.Config, error) {
	caps, err := c.Capabilities()
	if err != nil {
		return climate.Config{}, err
	}
	return climate.Config{
		ID:               c.Device.ID,
		Name:             c.Device.Name,
		Capabilities:     caps,
		TransmitTimeout:  c.Climate.TransmitTimeout,
		TolerancePercent: c.Climate.TolerancePercent,
	}, nil
}
