// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/beyarkay/chat-with-arduino/internal/config"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("link opened", zap.String("session", "abc"))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "link opened", entry["msg"])
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, "arduinoctl", entry["logger"])
}

func TestNew_RollingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arduinoctl.log")
	var console bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{
		Level:  "debug",
		Format: "console",
		File:   config.LumberjackConfig{Filename: path, MaxSizeMB: 1},
	}, &console)
	require.NoError(t, err)

	logger.Warn("link resynchronized", zap.Int("discarded", 2))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "link resynchronized")
	assert.Contains(t, console.String(), "link resynchronized")
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "verbose"})
	assert.Error(t, err)
}
