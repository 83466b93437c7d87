// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/beyarkay/chat-with-arduino/pkg/link"
)

var (
	ackCount    int
	ackInterval time.Duration
	ackStats    bool
)

var ackCmd = &cobra.Command{
	Use:   "ack",
	Short: "Check the board is alive by sending ACKNOWLEDGE",
	Long: `Send ACKNOWLEDGE requests and wait for each echo.

This is useful for verifying:
  - The port or bridge is reachable
  - The board firmware is running and in sync
  - Round trip time of the link

Exit codes:
  0 - All acknowledgements received
  1 - One or more requests failed or timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runAck,
}

func init() {
	rootCmd.AddCommand(ackCmd)
	ackCmd.Flags().IntVarP(&ackCount, "count", "n", 1, "Number of requests to send")
	ackCmd.Flags().DurationVar(&ackInterval, "interval", 100*time.Millisecond, "Pause between requests")
	ackCmd.Flags().BoolVar(&ackStats, "stats", false, "Print link statistics at the end")
}

func runAck(cmd *cobra.Command, args []string) error {
	if ackCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if ackCount > 1 {
		fmt.Fprintf(out, "Connection: %s\n", s.info)
	}

	var lastErr error
	successCount := 0
	for i := 1; i <= ackCount; i++ {
		start := time.Now()
		err := s.link.Acknowledge(ctx)
		rtt := time.Since(start)

		switch {
		case err == nil:
			successCount++
			if ackCount > 1 {
				fmt.Fprintf(out, "ACK %d/%d: rtt=%v\n", i, ackCount, rtt.Round(time.Microsecond))
			} else {
				fmt.Fprintf(out, "ACKNOWLEDGE: OK (rtt=%v)\n", rtt.Round(time.Microsecond))
			}
		case errors.Is(err, link.ErrNotConnected), errors.Is(err, link.ErrIO):
			return err
		default:
			lastErr = err
			fmt.Fprintf(out, "ACK %d/%d: FAILED: %v\n", i, ackCount, err)
		}

		if i < ackCount {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ackInterval):
			}
		}
	}

	if ackCount > 1 {
		snap := s.stats.Snapshot()
		fmt.Fprintf(out, "\n--- Acknowledge statistics ---\n")
		fmt.Fprintf(out, "%d requests sent, %d acknowledged, %.0f%% loss\n",
			ackCount, successCount, float64(ackCount-successCount)/float64(ackCount)*100)
		if snap.Succeeded > 0 {
			fmt.Fprintf(out, "rtt min/avg/max = %v/%v/%v\n",
				snap.MinRTT.Round(time.Microsecond), snap.AvgRTT().Round(time.Microsecond), snap.MaxRTT.Round(time.Microsecond))
		}
	}
	if ackStats {
		fmt.Fprint(out, s.stats.String())
	}

	if lastErr != nil {
		return fmt.Errorf("%d of %d requests failed: %w", ackCount-successCount, ackCount, lastErr)
	}
	return nil
}
