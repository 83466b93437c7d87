// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pinproto implements the framed pin-control protocol spoken between
// a host and a microcontroller over a serial link.
//
// A frame is [StartMarker, opcode, payload..., EndMarker]. The payload length
// is fixed per opcode and known to both ends, so the end marker is an
// integrity check rather than the delimiter: payload bytes may legally equal
// either marker. Multi-byte fields are big-endian.
package pinproto

// FrameMarker is a reserved framing byte. It is a distinct type from Opcode
// so the two can never be swapped without an explicit conversion.
type FrameMarker byte

// Protocol framing bytes
const (
	StartMarker FrameMarker = 0xFE
	EndMarker   FrameMarker = 0xFF
)

// Frame overhead: start marker, opcode, end marker
const frameOverhead = 3

// Opcode identifies a command in the catalog. Replies echo the opcode of the
// request they answer.
type Opcode byte

// Opcodes
const (
	OpNak          Opcode = 0x00 // explicit error reply, never a request
	OpAcknowledge  Opcode = 0x01
	OpDigitalRead  Opcode = 0x02
	OpDigitalWrite Opcode = 0x03
	OpSetPinMode   Opcode = 0x04
	OpAnalogRead   Opcode = 0x05
	OpAnalogWrite  Opcode = 0x06
	OpTone         Opcode = 0x07
	OpNoTone       Opcode = 0x08
	OpDelay        Opcode = 0x09
	OpReadClock    Opcode = 0x0A
	OpReserved     Opcode = 0x0B
)

// Field limits
const (
	MaxPin         = 255
	MaxAnalogWrite = 255
	MaxAnalogRead  = 1023
	MinToneFreq    = 31
	MaxToneFreq    = 0xFFFF
	MaxDuration    = 0xFFFFFFFF
)

// PinMode is the electrical configuration of a pin.
type PinMode int

// Pin mode values
const (
	ModeInput PinMode = iota
	ModeOutput
	ModeInputPullup
	ModeInputPulldown
	ModeOutputOpenDrain
)

var pinModeNames = []string{"INPUT", "OUTPUT", "INPUT_PULLUP", "INPUT_PULLDOWN", "OUTPUT_OPENDRAIN"}

// Level is a digital pin level.
type Level int

// Level values
const (
	Low  Level = 0
	High Level = 1
)
