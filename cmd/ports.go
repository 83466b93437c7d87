// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beyarkay/chat-with-arduino/pkg/transport"
)

var portsAll bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List serial ports on this machine. Ports that look like microcontroller
boards (by USB vendor ID) are marked with *. Use --all to include ports
without USB details.`,
	Args: cobra.NoArgs,
	// Listing ports needs no connection or config
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		shown := 0
		for _, p := range ports {
			if !p.IsUSB && !portsAll {
				continue
			}
			mark := " "
			if vendor, ok := p.LikelyBoard(); ok {
				mark = "*"
				fmt.Fprintf(out, "%s %s  [%s]\n", mark, p.Description(), vendor)
			} else {
				fmt.Fprintf(out, "%s %s\n", mark, p.Description())
			}
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, "No serial ports found")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVarP(&portsAll, "all", "a", false, "Include non-USB ports")
}
