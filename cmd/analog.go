// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

var analogReadCmd = &cobra.Command{
	Use:   "analog_read PIN",
	Short: "Read the ADC value of a pin (0-1023)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := parsePin(args[0])
		if err != nil {
			return err
		}
		return runOne(cmd, pinproto.AnalogRead{Pin: pin})
	},
}

var analogWriteCmd = &cobra.Command{
	Use:   "analog_write PIN VALUE",
	Short: "Set the PWM duty cycle of a pin (0-255)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := parsePin(args[0])
		if err != nil {
			return err
		}
		value, err := parseNumber("value", args[1])
		if err != nil {
			return err
		}
		return runOne(cmd, pinproto.AnalogWrite{Pin: pin, Value: int(value)})
	},
}

func init() {
	rootCmd.AddCommand(analogReadCmd, analogWriteCmd)
}
