// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, 8, cfg.Serial.DataBits)
	assert.Equal(t, "none", cfg.Serial.Parity)
	assert.Equal(t, time.Second, cfg.Link.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Link.QuietPeriod)
	assert.Equal(t, 500*time.Millisecond, cfg.Link.DrainTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.Sim.Enabled)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial:
  port: /dev/ttyACM0
  baud: 9600
link:
  timeout: 2s
logging:
  format: json
`), 0o644))

	t.Setenv("ARDUINOCTL_SERIAL_BAUD", "57600")
	t.Setenv("ARDUINOCTL_LINK_QUIETPERIOD", "80ms")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("port", "", "")
	fs.Duration("timeout", time.Second, "")
	require.NoError(t, fs.Parse([]string{"--port", "/dev/ttyUSB1"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port, "flag beats file")
	assert.Equal(t, 57600, cfg.Serial.Baud, "env beats file")
	assert.Equal(t, 2*time.Second, cfg.Link.Timeout, "unset flag does not beat file")
	assert.Equal(t, 80*time.Millisecond, cfg.Link.QuietPeriod)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Serial:  SerialConfig{Baud: 115200},
			Link:    LinkConfig{Timeout: time.Second, PollInterval: 10 * time.Millisecond, QuietPeriod: 50 * time.Millisecond, DrainTimeout: time.Second},
			Logging: LoggingConfig{Format: "console"},
		}
	}
	require.NoError(t, valid().Validate())

	c := valid()
	c.Serial.Baud = 0
	assert.ErrorContains(t, c.Validate(), "serial.baud")

	c = valid()
	c.Link.DrainTimeout = time.Millisecond
	assert.ErrorContains(t, c.Validate(), "drainTimeout")

	c = valid()
	c.Logging.Format = "xml"
	assert.ErrorContains(t, c.Validate(), "logging.format")
}
