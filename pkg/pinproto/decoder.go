// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pinproto

import (
	"fmt"
	"time"
)

// Reply is a decoded, validated reply frame.
type Reply struct {
	Opcode    Opcode
	Payload   []byte
	Value     uint32 // payload as a big-endian unsigned integer (0 if empty)
	Timestamp time.Time
}

// Decoder states (internal)
const (
	stateStart = iota
	stateOpcode
	statePayload
	stateEnd
	stateDone
	stateFailed
)

// ReplyDecoder is a byte-at-a-time state machine for the reply to one request.
//
// The decoder knows the expected opcode, and therefore the exact frame
// length, up front. It never scans for the end marker: payload bytes equal to
// a marker value are consumed as payload.
type ReplyDecoder struct {
	expected Opcode
	state    int
	nak      bool
	want     int // payload bytes for the frame being decoded
	payload  []byte
	raw      []byte // Accumulate raw bytes including framing
}

// NewReplyDecoder creates a decoder for the reply to a request with the given
// opcode.
func NewReplyDecoder(expected Opcode) *ReplyDecoder {
	d := &ReplyDecoder{
		expected: expected,
		raw:      make([]byte, 0, ReplyLen(expected)+1),
	}
	d.Reset()
	return d
}

// Reset returns the decoder to its initial state, keeping the expected opcode.
func (d *ReplyDecoder) Reset() {
	d.state = stateStart
	d.nak = false
	d.want = 0
	d.payload = nil
	d.raw = d.raw[:0]
}

// Expected returns the opcode this decoder is waiting for.
func (d *ReplyDecoder) Expected() Opcode {
	return d.expected
}

// Received returns how many bytes have been consumed since the last Reset.
func (d *ReplyDecoder) Received() int {
	return len(d.raw)
}

// Remaining returns how many more bytes are needed to complete the frame,
// given what has been seen so far. It is 0 once the decoder has finished or
// failed.
func (d *ReplyDecoder) Remaining() int {
	switch d.state {
	case stateDone, stateFailed:
		return 0
	}
	total := ReplyLen(d.expected)
	if d.nak {
		total = NakLen
	}
	if n := total - len(d.raw); n > 0 {
		return n
	}
	return 0
}

// GetRawBytes returns the bytes consumed since the last Reset
func (d *ReplyDecoder) GetRawBytes() []byte {
	return d.raw
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed reply, or nil if the frame is incomplete.
// Returns a *FrameError or *ProtocolError if decoding fails; the decoder then
// stays in a failed state until Reset.
func (d *ReplyDecoder) DecodeByte(b byte) (*Reply, error) {
	switch d.state {
	case stateDone, stateFailed:
		return nil, fmt.Errorf("reply decoder finished; reset before reuse")
	}
	d.raw = append(d.raw, b)

	switch d.state {
	case stateStart:
		if b != byte(StartMarker) {
			return d.fail(&FrameError{Kind: FrameBadStart, Opcode: d.expected, Got: b})
		}
		d.state = stateOpcode
		return nil, nil

	case stateOpcode:
		switch Opcode(b) {
		case d.expected:
			d.want = catalog[d.expected].reply.width
		case OpNak:
			d.nak = true
			d.want = 1
		default:
			return d.fail(&FrameError{Kind: FrameOpcodeMismatch, Opcode: d.expected, Got: b})
		}
		d.payload = make([]byte, 0, d.want)
		if d.want == 0 {
			d.state = stateEnd
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		if d.nak && Opcode(b) != d.expected {
			// A rejection of some other request
			return d.fail(&FrameError{Kind: FrameOpcodeMismatch, Opcode: d.expected, Got: b})
		}
		d.payload = append(d.payload, b)
		if len(d.payload) >= d.want {
			d.state = stateEnd
		}
		return nil, nil

	case stateEnd:
		if b != byte(EndMarker) {
			return d.fail(&FrameError{Kind: FrameBadEnd, Opcode: d.expected, Got: b})
		}
		if d.nak {
			return d.fail(&ProtocolError{Kind: Rejected, Opcode: d.expected})
		}
		value, err := CheckReply(d.expected, d.payload)
		if err != nil {
			return d.fail(err)
		}
		d.state = stateDone
		return &Reply{
			Opcode:    d.expected,
			Payload:   d.payload,
			Value:     value,
			Timestamp: time.Now(),
		}, nil

	default:
		return d.fail(fmt.Errorf("invalid state: %d", d.state))
	}
}

func (d *ReplyDecoder) fail(err error) (*Reply, error) {
	d.state = stateFailed
	return nil, err
}

// DecodeReply decodes a complete reply to a request with opcode op.
// Fewer bytes than the frame needs yields a *FrameError of kind
// FrameTruncated. Bytes after a complete frame are ignored.
func DecodeReply(op Opcode, raw []byte) (*Reply, error) {
	if !Known(op) {
		return nil, fmt.Errorf("unknown opcode 0x%02X", byte(op))
	}
	d := NewReplyDecoder(op)
	for _, b := range raw {
		reply, err := d.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if reply != nil {
			return reply, nil
		}
	}
	return nil, &FrameError{
		Kind:     FrameTruncated,
		Opcode:   op,
		Received: d.Received(),
		Expected: d.Received() + d.Remaining(),
	}
}
