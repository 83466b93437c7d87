// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/beyarkay/chat-with-arduino/pkg/capture"
)

var captureLogErrorsOnly bool

var captureLogCmd = &cobra.Command{
	Use:   "capture_log FILE",
	Short: "Display a capture file in human-readable format",
	Long: `Decode and display exchanges recorded with --capture, one per line,
showing timestamp, opcode, raw request and reply bytes, and the result.`,
	Args: cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		out := cmd.OutOrStdout()
		r := capture.NewReader(f)
		total, failed := 0, 0
		for {
			rec, err := r.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				fmt.Fprintf(out, "[ERROR] %v\n", err)
				break
			}
			total++
			if !rec.OK {
				failed++
			} else if captureLogErrorsOnly {
				continue
			}
			fmt.Fprintln(out, capture.FormatRecord(rec))
		}
		fmt.Fprintf(out, "\n%d exchanges, %d failed\n", total, failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(captureLogCmd)
	captureLogCmd.Flags().BoolVarP(&captureLogErrorsOnly, "errors", "e", false, "Show failed exchanges only")
}
