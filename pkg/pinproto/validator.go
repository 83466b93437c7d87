// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pinproto

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate checks every field of cmd against the catalog's ranges.
// Returns the first *ValidationError in wire field order, or nil.
func Validate(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("nil command")
	}
	e, ok := catalog[cmd.Opcode()]
	if !ok {
		return fmt.Errorf("unknown opcode 0x%02X", byte(cmd.Opcode()))
	}
	vals := cmd.values()
	if len(vals) != len(e.request) {
		return fmt.Errorf("%s: expected %d fields, got %d", e.name, len(e.request), len(vals))
	}
	for i, f := range e.request {
		if vals[i] < f.min || vals[i] > f.max {
			return &ValidationError{
				Kind:    FieldOutOfRange,
				Field:   f.name,
				Value:   vals[i],
				Allowed: f.describe(),
			}
		}
	}
	return nil
}

// String returns the canonical mode name
func (m PinMode) String() string {
	if m >= 0 && int(m) < len(pinModeNames) {
		return pinModeNames[m]
	}
	return fmt.Sprintf("MODE(%d)", int(m))
}

// ParsePinMode looks up a mode by name (case-insensitive, '-' or '_'
// separators) or by its numeric value.
func ParsePinMode(s string) (PinMode, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for i, n := range pinModeNames {
		if name == n {
			return PinMode(i), nil
		}
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 0 && n < len(pinModeNames) {
		return PinMode(n), nil
	}
	return 0, &ValidationError{
		Kind:    UnknownEnum,
		Field:   "mode",
		Value:   s,
		Allowed: strings.Join(pinModeNames, ", "),
	}
}

// String returns HIGH or LOW
func (l Level) String() string {
	switch l {
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel accepts HIGH/LOW, ON/OFF, TRUE/FALSE or 1/0.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "HIGH", "ON", "TRUE":
		return High, nil
	case "0", "LOW", "OFF", "FALSE":
		return Low, nil
	}
	return 0, &ValidationError{
		Kind:    UnknownEnum,
		Field:   "level",
		Value:   s,
		Allowed: "HIGH, LOW, 1, 0",
	}
}
