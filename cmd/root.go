// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beyarkay/chat-with-arduino/internal/config"
	"github.com/beyarkay/chat-with-arduino/internal/logging"
	"github.com/beyarkay/chat-with-arduino/pkg/link"
)

var (
	configPath string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "arduinoctl",
	Short: "Control microcontroller pins over a framed serial protocol",
	Long: `arduinoctl - drive a microcontroller's pins over a serial link.

Each command sends one framed request to the board and waits for its reply:
digital and analog I/O, pin modes, tones, delays and the board clock.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200] [--parity none] [--stop-bits 1]
  WebSocket: --url ws://host/path [--username user]
  Simulated: --sim

Settings can also come from a config file (--config, or arduinoctl.yaml in the
working directory or ~/.config/arduinoctl) and ARDUINOCTL_* environment
variables, e.g. ARDUINOCTL_SERIAL_PORT=/dev/ttyUSB0.

For WebSocket authentication, the password is read from the ARDUINOCTL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Exit codes:
  0 - Success
  1 - The board rejected the command, replied badly, or did not reply
  2 - Connection error`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		l, err := logging.New(loaded.Logging)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (yaml, toml or json)")

	// Serial connection flags
	pf.StringP("port", "p", "", "Serial port device")
	pf.IntP("baud", "b", 115200, "Baud rate (serial only)")
	pf.String("parity", "none", "Parity: none, odd, even, mark, space (serial only)")
	pf.String("stop-bits", "1", "Stop bits: 1, 1.5, 2 (serial only)")
	pf.Int("data-bits", 8, "Data bits: 5-8 (serial only)")

	// WebSocket connection flags
	pf.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.String("username", "", "Username for HTTP Basic auth")
	pf.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	pf.Bool("sim", false, "Use a simulated board instead of hardware")
	pf.Duration("timeout", link.DefaultTimeout, "Time to wait for each reply")

	// Diagnostics
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console or json")
	pf.String("log-file", "", "Also write logs to this rolling file")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	pf.String("capture", "", "Append every exchange to this CBOR capture file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
