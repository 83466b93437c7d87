// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// arduinoctl - microcontroller pin control over a framed serial protocol
//
// A CLI tool for driving and monitoring the pins of a board running the
// pin-control firmware, over a serial port or a WebSocket serial bridge.

package main

import (
	"fmt"
	"os"

	"github.com/beyarkay/chat-with-arduino/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cmd.ExitCode(err))
	}
}
