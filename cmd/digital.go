// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

var digitalReadCmd = &cobra.Command{
	Use:   "digital_read PIN",
	Short: "Read the logic level of a pin",
	Example: `  arduinoctl digital_read 7 --port /dev/ttyACM0
  DIGITAL_READ: HIGH`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := parsePin(args[0])
		if err != nil {
			return err
		}
		return runOne(cmd, pinproto.DigitalRead{Pin: pin})
	},
}

var digitalWriteCmd = &cobra.Command{
	Use:   "digital_write PIN LEVEL",
	Short: "Drive a pin HIGH or LOW",
	Long: `Drive a pin HIGH or LOW. LEVEL accepts HIGH/LOW, ON/OFF, TRUE/FALSE or 1/0.

The pin should be configured as OUTPUT first (see pin_mode).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := parsePin(args[0])
		if err != nil {
			return err
		}
		level, err := pinproto.ParseLevel(args[1])
		if err != nil {
			return err
		}
		return runOne(cmd, pinproto.DigitalWrite{Pin: pin, Level: level})
	},
}

var pinModeCmd = &cobra.Command{
	Use:   "pin_mode PIN MODE",
	Short: "Configure a pin's electrical mode",
	Long: `Configure a pin's electrical mode.

Modes: INPUT, OUTPUT, INPUT_PULLUP, INPUT_PULLDOWN, OUTPUT_OPENDRAIN
(case-insensitive, or the numbers 0-4).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := parsePin(args[0])
		if err != nil {
			return err
		}
		mode, err := pinproto.ParsePinMode(args[1])
		if err != nil {
			return err
		}
		return runOne(cmd, pinproto.SetPinMode{Pin: pin, Mode: mode})
	},
}

func init() {
	rootCmd.AddCommand(digitalReadCmd, digitalWriteCmd, pinModeCmd)
}
