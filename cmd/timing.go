// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

var delayCmd = &cobra.Command{
	Use:   "delay MILLISECONDS",
	Short: "Make the board pause before replying",
	Long: `Make the board pause for MILLISECONDS before replying.

The reply timeout is extended by the delay, so long delays do not time out.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := parseNumber("milliseconds", args[0])
		if err != nil {
			return err
		}
		return runOne(cmd, pinproto.Delay{Milliseconds: ms})
	},
}

var millisCmd = &cobra.Command{
	Use:     "millis",
	Aliases: []string{"read_clock"},
	Short:   "Read the board's milliseconds since boot",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOne(cmd, pinproto.ReadClock{})
	},
}

func init() {
	rootCmd.AddCommand(delayCmd, millisCmd)
}
