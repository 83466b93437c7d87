// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
)

// parseNumber parses a decimal or 0x-prefixed argument. Range checks are left
// to command validation so every field reports its limits the same way.
func parseNumber(name, s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: not a number", name, s)
	}
	return v, nil
}

func parsePin(s string) (int, error) {
	v, err := parseNumber("pin", s)
	return int(v), err
}

// parsePinList parses "2,3,13" into pins
func parsePinList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var pins []int
	for _, part := range strings.Split(s, ",") {
		pin, err := parsePin(part)
		if err != nil {
			return nil, err
		}
		pins = append(pins, pin)
	}
	return pins, nil
}
