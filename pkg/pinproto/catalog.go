// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pinproto

import (
	"fmt"
	"sort"
)

// fieldSpec describes one request field: its wire width in bytes and the
// inclusive range of accepted values.
type fieldSpec struct {
	name    string
	width   int
	min     int64
	max     int64
	allowed string // overrides the generated range description
}

func (f fieldSpec) describe() string {
	if f.allowed != "" {
		return f.allowed
	}
	return fmt.Sprintf("[%d, %d]", f.min, f.max)
}

// replySpec describes the payload of a successful reply.
type replySpec struct {
	width   int    // payload bytes
	checked bool   // whether max is enforced
	max     uint32 // inclusive upper bound on the decoded value
	allowed string
}

type entry struct {
	name    string
	request []fieldSpec
	reply   replySpec
	build   func(v []int64) Command
}

var (
	pinField = fieldSpec{name: "pin", width: 1, min: 0, max: MaxPin}
	msField  = fieldSpec{name: "milliseconds", width: 4, min: 0, max: MaxDuration}
)

var catalog = map[Opcode]entry{
	OpAcknowledge: {
		name:  "ACKNOWLEDGE",
		build: func([]int64) Command { return Acknowledge{} },
	},
	OpDigitalRead: {
		name:    "DIGITAL_READ",
		request: []fieldSpec{pinField},
		reply:   replySpec{width: 1, checked: true, max: 1, allowed: "{0, 1}"},
		build:   func(v []int64) Command { return DigitalRead{Pin: int(v[0])} },
	},
	OpDigitalWrite: {
		name: "DIGITAL_WRITE",
		request: []fieldSpec{
			pinField,
			{name: "level", width: 1, min: 0, max: 1, allowed: "{0, 1}"},
		},
		build: func(v []int64) Command { return DigitalWrite{Pin: int(v[0]), Level: Level(v[1])} },
	},
	OpSetPinMode: {
		name: "SET_PIN_MODE",
		request: []fieldSpec{
			pinField,
			{name: "mode", width: 1, min: 0, max: int64(ModeOutputOpenDrain), allowed: "0-4 (INPUT, OUTPUT, INPUT_PULLUP, INPUT_PULLDOWN, OUTPUT_OPENDRAIN)"},
		},
		build: func(v []int64) Command { return SetPinMode{Pin: int(v[0]), Mode: PinMode(v[1])} },
	},
	OpAnalogRead: {
		name:    "ANALOG_READ",
		request: []fieldSpec{pinField},
		reply:   replySpec{width: 2, checked: true, max: MaxAnalogRead, allowed: "[0, 1023]"},
		build:   func(v []int64) Command { return AnalogRead{Pin: int(v[0])} },
	},
	OpAnalogWrite: {
		name: "ANALOG_WRITE",
		request: []fieldSpec{
			pinField,
			{name: "value", width: 1, min: 0, max: MaxAnalogWrite},
		},
		build: func(v []int64) Command { return AnalogWrite{Pin: int(v[0]), Value: int(v[1])} },
	},
	OpTone: {
		name: "TONE",
		request: []fieldSpec{
			pinField,
			{name: "frequency", width: 2, min: MinToneFreq, max: MaxToneFreq},
			{name: "duration", width: 4, min: 0, max: MaxDuration},
		},
		build: func(v []int64) Command { return Tone{Pin: int(v[0]), Frequency: int(v[1]), Duration: v[2]} },
	},
	OpNoTone: {
		name:    "NO_TONE",
		request: []fieldSpec{pinField},
		build:   func(v []int64) Command { return NoTone{Pin: int(v[0])} },
	},
	OpDelay: {
		name:    "DELAY",
		request: []fieldSpec{msField},
		build:   func(v []int64) Command { return Delay{Milliseconds: v[0]} },
	},
	OpReadClock: {
		name:  "READ_CLOCK",
		reply: replySpec{width: 4},
		build: func([]int64) Command { return ReadClock{} },
	},
}

// Known reports whether op is a request opcode in the catalog.
func Known(op Opcode) bool {
	_, ok := catalog[op]
	return ok
}

// Opcodes returns the catalog's request opcodes in ascending order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, len(catalog))
	for op := range catalog {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// RequestLen returns the total frame length of a request with the given
// opcode, or 0 if the opcode is unknown.
func RequestLen(op Opcode) int {
	e, ok := catalog[op]
	if !ok {
		return 0
	}
	n := frameOverhead
	for _, f := range e.request {
		n += f.width
	}
	return n
}

// ReplyLen returns the total frame length of a successful reply to op, or 0
// if the opcode is unknown.
func ReplyLen(op Opcode) int {
	e, ok := catalog[op]
	if !ok {
		return 0
	}
	return frameOverhead + e.reply.width
}

// NakLen is the frame length of a NAK reply: [start, 0x00, opcode, end].
const NakLen = frameOverhead + 1

// CheckReply applies the per-opcode semantic check to a reply payload and
// returns the decoded big-endian value.
func CheckReply(op Opcode, payload []byte) (uint32, error) {
	e, ok := catalog[op]
	if !ok {
		return 0, fmt.Errorf("unknown opcode 0x%02X", byte(op))
	}
	if len(payload) != e.reply.width {
		return 0, &FrameError{Kind: FrameTruncated, Opcode: op, Received: frameOverhead + len(payload), Expected: ReplyLen(op)}
	}
	value := getUint(payload)
	if e.reply.checked && value > e.reply.max {
		return 0, &ProtocolError{Kind: InvalidValue, Opcode: op, Value: value, Allowed: e.reply.allowed}
	}
	return value, nil
}

// getUint reads an unsigned big-endian integer of 0-4 bytes.
func getUint(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// putUint appends v as a big-endian integer of the given width.
func putUint(dst []byte, v uint32, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}
