// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads arduinoctl settings from defaults, an optional config
// file, ARDUINOCTL_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. ARDUINOCTL_SERIAL_PORT
const EnvPrefix = "ARDUINOCTL"

// SerialConfig selects and configures the serial port
type SerialConfig struct {
	Port     string `mapstructure:"port"`
	Baud     int    `mapstructure:"baud"`
	Parity   string `mapstructure:"parity"`
	StopBits string `mapstructure:"stopBits"`
	DataBits int    `mapstructure:"dataBits"`
}

// LinkConfig holds exchange timings
type LinkConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	QuietPeriod  time.Duration `mapstructure:"quietPeriod"`
	DrainTimeout time.Duration `mapstructure:"drainTimeout"`
}

// WSConfig configures a WebSocket serial bridge
type WSConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"noSSLVerify"`
}

// LumberjackConfig configures the rolling log file
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures diagnostic logging. Command output is not logging.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the /metrics listener
}

type CaptureConfig struct {
	File string `mapstructure:"file"`
}

// SimConfig replaces the hardware with the in-memory board
type SimConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Latency time.Duration `mapstructure:"latency"`
}

// Config is the top-level configuration
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Link    LinkConfig    `mapstructure:"link"`
	WS      WSConfig      `mapstructure:"ws"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Capture CaptureConfig `mapstructure:"capture"`
	Sim     SimConfig     `mapstructure:"sim"`
}

// flagKeys maps persistent flag names to config keys
var flagKeys = map[string]string{
	"port":          "serial.port",
	"baud":          "serial.baud",
	"parity":        "serial.parity",
	"stop-bits":     "serial.stopBits",
	"data-bits":     "serial.dataBits",
	"timeout":       "link.timeout",
	"url":           "ws.url",
	"username":      "ws.username",
	"no-ssl-verify": "ws.noSSLVerify",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"log-file":      "logging.file.filename",
	"metrics-addr":  "metrics.addr",
	"capture":       "capture.file",
	"sim":           "sim.enabled",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 115200)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.stopBits", "1")
	v.SetDefault("serial.dataBits", 8)

	v.SetDefault("link.timeout", "1s")
	v.SetDefault("link.pollInterval", "50ms")
	v.SetDefault("link.quietPeriod", "50ms")
	v.SetDefault("link.drainTimeout", "500ms")

	v.SetDefault("ws.url", "")
	v.SetDefault("ws.username", "")
	v.SetDefault("ws.noSSLVerify", false)

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("capture.file", "")
	v.SetDefault("sim.enabled", false)
	v.SetDefault("sim.latency", "0s")
}

// Load reads configuration. An explicit path must exist; without one, an
// arduinoctl.{yaml,toml,json} in the working directory or
// $HOME/.config/arduinoctl is used if present. Flags in fs that were set on
// the command line override everything else.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("arduinoctl")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/arduinoctl")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Running without a config file is normal
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Link.Timeout <= 0 {
		return fmt.Errorf("link.timeout must be positive, got %v", c.Link.Timeout)
	}
	if c.Link.PollInterval <= 0 {
		return fmt.Errorf("link.pollInterval must be positive, got %v", c.Link.PollInterval)
	}
	if c.Link.QuietPeriod <= 0 || c.Link.DrainTimeout < c.Link.QuietPeriod {
		return fmt.Errorf("link.drainTimeout (%v) must be at least link.quietPeriod (%v), which must be positive",
			c.Link.DrainTimeout, c.Link.QuietPeriod)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
