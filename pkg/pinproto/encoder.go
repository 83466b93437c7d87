// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pinproto

import "fmt"

// Encode validates cmd and returns its wire frame.
// An invalid command yields a *ValidationError and no bytes.
func Encode(cmd Command) ([]byte, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	e := catalog[cmd.Opcode()]

	frame := make([]byte, 0, RequestLen(cmd.Opcode()))
	frame = append(frame, byte(StartMarker), byte(cmd.Opcode()))
	for i, v := range cmd.values() {
		frame = putUint(frame, uint32(v), e.request[i].width)
	}
	frame = append(frame, byte(EndMarker))
	return frame, nil
}

// MustEncode encodes cmd and panics on validation failure.
// Intended for constant commands in tests and tools.
func MustEncode(cmd Command) []byte {
	frame, err := Encode(cmd)
	if err != nil {
		panic(fmt.Sprintf("pinproto: encode error: %v", err))
	}
	return frame
}

// DecodeCommand parses a complete request frame back into a Command.
// This is the device side of Encode.
func DecodeCommand(frame []byte) (Command, error) {
	if len(frame) < frameOverhead {
		return nil, &FrameError{Kind: FrameTruncated, Received: len(frame), Expected: frameOverhead}
	}
	if frame[0] != byte(StartMarker) {
		return nil, &FrameError{Kind: FrameBadStart, Got: frame[0]}
	}
	op := Opcode(frame[1])
	e, ok := catalog[op]
	if !ok {
		return nil, fmt.Errorf("unknown request opcode 0x%02X", byte(op))
	}
	want := RequestLen(op)
	if len(frame) < want {
		return nil, &FrameError{Kind: FrameTruncated, Opcode: op, Received: len(frame), Expected: want}
	}
	if frame[want-1] != byte(EndMarker) {
		return nil, &FrameError{Kind: FrameBadEnd, Opcode: op, Got: frame[want-1]}
	}

	vals := make([]int64, len(e.request))
	offset := 2
	for i, f := range e.request {
		vals[i] = int64(getUint(frame[offset : offset+f.width]))
		offset += f.width
	}
	cmd := e.build(vals)
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// EncodeReply builds a successful reply frame for op carrying value in the
// catalog's reply width. The value is not range-checked, so a device
// simulator can produce deliberately invalid replies.
func EncodeReply(op Opcode, value uint32) ([]byte, error) {
	e, ok := catalog[op]
	if !ok {
		return nil, fmt.Errorf("unknown opcode 0x%02X", byte(op))
	}
	frame := make([]byte, 0, ReplyLen(op))
	frame = append(frame, byte(StartMarker), byte(op))
	frame = putUint(frame, value, e.reply.width)
	frame = append(frame, byte(EndMarker))
	return frame, nil
}

// EncodeNak builds the explicit error reply for a rejected request.
func EncodeNak(op Opcode) []byte {
	return []byte{byte(StartMarker), byte(OpNak), byte(op), byte(EndMarker)}
}
