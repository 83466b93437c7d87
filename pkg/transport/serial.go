// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides byte transports for a link: serial ports and
// WebSocket bridges.
package transport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the board firmware
const DefaultBaudRate = 115200

// SerialSettings describes how to open a serial port.
type SerialSettings struct {
	Port     string
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// DefaultSerialSettings returns 8N1 at DefaultBaudRate on port.
func DefaultSerialSettings(port string) SerialSettings {
	return SerialSettings{
		Port:     port,
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func (s SerialSettings) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		Parity:   s.Parity,
		StopBits: s.StopBits,
	}
}

// String describes the settings for status lines, e.g. "/dev/ttyACM0 @ 115200 8N1"
func (s SerialSettings) String() string {
	return fmt.Sprintf("%s @ %d %d%s%s", s.Port, s.BaudRate, s.DataBits, parityLetter(s.Parity), stopBitsName(s.StopBits))
}

// ParseParity accepts none/odd/even/mark/space or their first letter.
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n", "none":
		return serial.NoParity, nil
	case "o", "odd":
		return serial.OddParity, nil
	case "e", "even":
		return serial.EvenParity, nil
	case "m", "mark":
		return serial.MarkParity, nil
	case "s", "space":
		return serial.SpaceParity, nil
	}
	return serial.NoParity, fmt.Errorf("invalid parity %q (use none, odd, even, mark or space)", s)
}

// ParseStopBits accepts 1, 1.5 or 2.
func ParseStopBits(s string) (serial.StopBits, error) {
	switch strings.TrimSpace(s) {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	}
	return serial.OneStopBit, fmt.Errorf("invalid stop bits %q (use 1, 1.5 or 2)", s)
}

// ValidateDataBits checks the data bits setting.
func ValidateDataBits(n int) error {
	if n < 5 || n > 8 {
		return fmt.Errorf("invalid data bits %d (use 5-8)", n)
	}
	return nil
}

func parityLetter(p serial.Parity) string {
	switch p {
	case serial.OddParity:
		return "O"
	case serial.EvenParity:
		return "E"
	case serial.MarkParity:
		return "M"
	case serial.SpaceParity:
		return "S"
	default:
		return "N"
	}
}

func stopBitsName(s serial.StopBits) string {
	switch s {
	case serial.OnePointFiveStopBits:
		return "1.5"
	case serial.TwoStopBits:
		return "2"
	default:
		return "1"
	}
}

// Serial wraps a serial port. Reads return (0, nil) when the read timeout
// elapses.
type Serial struct {
	port     serial.Port
	settings SerialSettings
}

// OpenSerial opens a serial port connection
func OpenSerial(settings SerialSettings) (*Serial, error) {
	if err := ValidateDataBits(settings.DataBits); err != nil {
		return nil, err
	}
	port, err := serial.Open(settings.Port, settings.mode())
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", settings.Port, err)
	}
	// Discard anything the board printed before we arrived
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset serial port %s: %w", settings.Port, err)
	}
	return &Serial{port: port, settings: settings}, nil
}

func (s *Serial) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *Serial) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *Serial) Close() error {
	return s.port.Close()
}

// SetReadTimeout bounds the next reads.
func (s *Serial) SetReadTimeout(t time.Duration) error {
	return s.port.SetReadTimeout(t)
}

// ResetInputBuffer drops bytes buffered by the OS driver.
func (s *Serial) ResetInputBuffer() error {
	return s.port.ResetInputBuffer()
}

// Settings returns the settings the port was opened with.
func (s *Serial) Settings() SerialSettings {
	return s.settings
}
