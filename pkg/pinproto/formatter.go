// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pinproto

import (
	"fmt"
	"strings"
)

// FormatOpcode returns the human-readable name for an opcode
func FormatOpcode(op Opcode) string {
	if op == OpNak {
		return "NAK"
	}
	if e, ok := catalog[op]; ok {
		return e.name
	}
	return "UNKNOWN"
}

// String implements fmt.Stringer
func (op Opcode) String() string {
	return FormatOpcode(op)
}

// FormatCommand formats a command and its fields on one line
func FormatCommand(cmd Command) string {
	switch c := cmd.(type) {
	case Acknowledge, ReadClock:
		return FormatOpcode(c.Opcode())
	case DigitalRead:
		return fmt.Sprintf("DIGITAL_READ pin=%d", c.Pin)
	case DigitalWrite:
		return fmt.Sprintf("DIGITAL_WRITE pin=%d level=%s", c.Pin, c.Level)
	case SetPinMode:
		return fmt.Sprintf("SET_PIN_MODE pin=%d mode=%s", c.Pin, c.Mode)
	case AnalogRead:
		return fmt.Sprintf("ANALOG_READ pin=%d", c.Pin)
	case AnalogWrite:
		return fmt.Sprintf("ANALOG_WRITE pin=%d value=%d", c.Pin, c.Value)
	case Tone:
		return fmt.Sprintf("TONE pin=%d frequency=%d Hz duration=%d ms", c.Pin, c.Frequency, c.Duration)
	case NoTone:
		return fmt.Sprintf("NO_TONE pin=%d", c.Pin)
	case Delay:
		return fmt.Sprintf("DELAY %d ms", c.Milliseconds)
	case nil:
		return "<nil>"
	default:
		return FormatOpcode(cmd.Opcode())
	}
}

// FormatReply formats a decoded reply value in the units of its opcode
func FormatReply(r *Reply) string {
	switch r.Opcode {
	case OpDigitalRead:
		return fmt.Sprintf("%s: %s", FormatOpcode(r.Opcode), Level(r.Value))
	case OpAnalogRead:
		return fmt.Sprintf("%s: %d (%.1f%%)", FormatOpcode(r.Opcode), r.Value, float64(r.Value)*100/MaxAnalogRead)
	case OpReadClock:
		return fmt.Sprintf("%s: %d ms (%s)", FormatOpcode(r.Opcode), r.Value, FormatDuration(uint64(r.Value)))
	default:
		return fmt.Sprintf("%s: OK", FormatOpcode(r.Opcode))
	}
}

// FormatFrame renders raw frame bytes as a hex dump with the opcode name
func FormatFrame(frame []byte) string {
	var sb strings.Builder
	for i, b := range frame {
		if i > 0 {
			if i%16 == 0 {
				sb.WriteString("\n")
			} else {
				sb.WriteString(" ")
			}
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	if len(frame) >= 2 && frame[0] == byte(StartMarker) {
		fmt.Fprintf(&sb, "  (%s)", FormatOpcode(Opcode(frame[1])))
	}
	return sb.String()
}

// FormatDuration converts milliseconds to human-readable duration
func FormatDuration(ms uint64) string {
	seconds := ms / 1000
	if seconds == 0 {
		return fmt.Sprintf("%d ms", ms)
	}

	const (
		secondsPerMinute = 60
		secondsPerHour   = 60 * secondsPerMinute
		secondsPerDay    = 24 * secondsPerHour
	)

	days := seconds / secondsPerDay
	seconds %= secondsPerDay

	hours := seconds / secondsPerHour
	seconds %= secondsPerHour

	minutes := seconds / secondsPerMinute
	seconds %= secondsPerMinute

	parts := []string{}
	parts = appendUnit(parts, days, "day")
	parts = appendUnit(parts, hours, "hour")
	parts = appendUnit(parts, minutes, "minute")
	parts = appendUnit(parts, seconds, "second")

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		last := parts[len(parts)-1]
		rest := parts[:len(parts)-1]
		return strings.Join(rest, ", ") + ", and " + last
	}
}

func appendUnit(parts []string, n uint64, unit string) []string {
	switch {
	case n == 0:
		return parts
	case n == 1:
		return append(parts, "1 "+unit)
	default:
		return append(parts, fmt.Sprintf("%d %ss", n, unit))
	}
}
