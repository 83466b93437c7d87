// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

var toneDuration int64

var toneCmd = &cobra.Command{
	Use:   "tone PIN FREQUENCY",
	Short: "Play a square wave on a pin",
	Long: `Play a square wave of FREQUENCY Hz (31-65535) on PIN.

With --duration 0 (the default) the tone plays until no_tone.`,
	Example: `  arduinoctl tone 8 440 --duration 500 --sim`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := parsePin(args[0])
		if err != nil {
			return err
		}
		freq, err := parseNumber("frequency", args[1])
		if err != nil {
			return err
		}
		return runOne(cmd, pinproto.Tone{Pin: pin, Frequency: int(freq), Duration: toneDuration})
	},
}

var noToneCmd = &cobra.Command{
	Use:   "no_tone PIN",
	Short: "Stop a tone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := parsePin(args[0])
		if err != nil {
			return err
		}
		return runOne(cmd, pinproto.NoTone{Pin: pin})
	},
}

func init() {
	rootCmd.AddCommand(toneCmd, noToneCmd)
	toneCmd.Flags().Int64VarP(&toneDuration, "duration", "d", 0, "Duration in milliseconds (0 plays until no_tone)")
}
