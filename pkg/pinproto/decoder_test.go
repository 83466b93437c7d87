// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pinproto

import (
	"errors"
	"testing"
)

// ============================================================
// Reply Decoding Tests
// ============================================================

func TestDecodeReply_DigitalWriteScenario(t *testing.T) {
	frame := MustEncode(DigitalWrite{Pin: 13, Level: High})
	if want := []byte{0xFE, 3, 13, 1, 0xFF}; string(frame) != string(want) {
		t.Fatalf("request = % X, want % X", frame, want)
	}

	reply, err := DecodeReply(OpDigitalWrite, []byte{0xFE, 3, 0xFF})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if reply.Opcode != OpDigitalWrite || len(reply.Payload) != 0 {
		t.Errorf("unexpected reply: %+v", reply)
	}

	_, err = DecodeReply(OpDigitalWrite, []byte{0xFE, 3, 0x00})
	if !errors.Is(err, ErrBadEnd) {
		t.Errorf("expected ErrBadEnd, got %v", err)
	}
}

func TestDecodeReply_AnalogReadScenario(t *testing.T) {
	frame := MustEncode(AnalogRead{Pin: 0})
	if want := []byte{0xFE, 5, 0, 0xFF}; string(frame) != string(want) {
		t.Fatalf("request = % X, want % X", frame, want)
	}

	// Payload bytes equal to the end marker must not terminate the frame
	reply, err := DecodeReply(OpAnalogRead, []byte{0xFE, 5, 0x03, 0xFF, 0xFF})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if reply.Value != 1023 {
		t.Errorf("Value = %d, want 1023", reply.Value)
	}

	_, err = DecodeReply(OpAnalogRead, []byte{0xFE, 5, 0x04, 0x00, 0xFF})
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProtocolError, got %v", err)
	}
	if perr.Kind != InvalidValue || perr.Value != 1024 {
		t.Errorf("unexpected protocol error: %+v", perr)
	}
}

func TestDecodeReply_Errors(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		raw  []byte
		want error
	}{
		{"empty", OpAcknowledge, nil, ErrTruncated},
		{"start only", OpAcknowledge, []byte{0xFE}, ErrTruncated},
		{"partial payload", OpReadClock, []byte{0xFE, 0x0A, 0x00, 0x01}, ErrTruncated},
		{"bad start", OpAcknowledge, []byte{0x01, 0x01, 0xFF}, ErrBadStart},
		{"opcode mismatch", OpDigitalRead, []byte{0xFE, 0x05, 0x00, 0x01, 0xFF}, ErrOpcodeMismatch},
		{"bad end after payload", OpDigitalRead, []byte{0xFE, 0x02, 0x01, 0xFE}, ErrBadEnd},
		{"digital read value 2", OpDigitalRead, []byte{0xFE, 0x02, 0x02, 0xFF}, ErrInvalidValue},
		{"nak", OpTone, []byte{0xFE, 0x00, 0x07, 0xFF}, ErrRejected},
		{"nak bad end", OpTone, []byte{0xFE, 0x00, 0x07, 0x00}, ErrBadEnd},
		{"nak for another opcode", OpTone, []byte{0xFE, 0x00, 0x02, 0xFF}, ErrOpcodeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := DecodeReply(tt.op, tt.raw)
			if reply != nil {
				t.Errorf("expected nil reply, got %+v", reply)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeReply_TruncatedCounts(t *testing.T) {
	_, err := DecodeReply(OpReadClock, []byte{0xFE, 0x0A, 0x00})
	var ferr *FrameError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FrameError, got %v", err)
	}
	if ferr.Received != 3 || ferr.Expected != 7 {
		t.Errorf("Received/Expected = %d/%d, want 3/7", ferr.Received, ferr.Expected)
	}
}

func TestDecodeReply_Values(t *testing.T) {
	tests := []struct {
		op   Opcode
		raw  []byte
		want uint32
	}{
		{OpDigitalRead, []byte{0xFE, 0x02, 0x00, 0xFF}, 0},
		{OpDigitalRead, []byte{0xFE, 0x02, 0x01, 0xFF}, 1},
		{OpAnalogRead, []byte{0xFE, 0x05, 0x00, 0x00, 0xFF}, 0},
		{OpAnalogRead, []byte{0xFE, 0x05, 0x02, 0x00, 0xFF}, 512},
		{OpReadClock, []byte{0xFE, 0x0A, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 0xFFFFFFFF},
		{OpReadClock, []byte{0xFE, 0x0A, 0x00, 0x01, 0x00, 0xFE, 0xFF}, 0x000100FE},
	}
	for _, tt := range tests {
		reply, err := DecodeReply(tt.op, tt.raw)
		if err != nil {
			t.Fatalf("%s % X: %v", tt.op, tt.raw, err)
		}
		if reply.Value != tt.want {
			t.Errorf("%s % X: Value = %d, want %d", tt.op, tt.raw, reply.Value, tt.want)
		}
	}
}

// ============================================================
// Incremental Decoder Tests
// ============================================================

func TestReplyDecoder_Remaining(t *testing.T) {
	d := NewReplyDecoder(OpAnalogRead)
	if d.Remaining() != 5 {
		t.Fatalf("Remaining() = %d, want 5", d.Remaining())
	}
	d.DecodeByte(0xFE)
	d.DecodeByte(0x00) // NAK shortens the frame
	if d.Remaining() != 2 {
		t.Errorf("Remaining() after NAK opcode = %d, want 2", d.Remaining())
	}

	d.Reset()
	if d.Received() != 0 || d.Remaining() != 5 {
		t.Errorf("after Reset: Received=%d Remaining=%d", d.Received(), d.Remaining())
	}
	for _, b := range []byte{0xFE, 0x05, 0x01} {
		if reply, err := d.DecodeByte(b); reply != nil || err != nil {
			t.Fatalf("unexpected early result: %v %v", reply, err)
		}
	}
	if d.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2", d.Remaining())
	}
	d.DecodeByte(0x00)
	reply, err := d.DecodeByte(0xFF)
	if err != nil || reply == nil || reply.Value != 256 {
		t.Fatalf("expected value 256, got %v %v", reply, err)
	}
	if d.Remaining() != 0 {
		t.Errorf("Remaining() after completion = %d", d.Remaining())
	}
	if _, err := d.DecodeByte(0xFE); err == nil {
		t.Error("expected error decoding after completion")
	}
	if got := d.GetRawBytes(); len(got) != 5 {
		t.Errorf("GetRawBytes() length = %d, want 5", len(got))
	}
}

func TestReplyDecoder_MismatchReportedAtOpcode(t *testing.T) {
	d := NewReplyDecoder(OpReadClock)
	d.DecodeByte(0xFE)
	_, err := d.DecodeByte(byte(OpAcknowledge))
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Kind != FrameOpcodeMismatch {
		t.Fatalf("expected opcode mismatch, got %v", err)
	}
	if ferr.Got != byte(OpAcknowledge) || ferr.Opcode != OpReadClock {
		t.Errorf("unexpected error fields: %+v", ferr)
	}
	if d.Remaining() != 0 {
		t.Errorf("Remaining() after failure = %d, want 0", d.Remaining())
	}
}

func TestReplyDecoder_NakNamesOtherRequest(t *testing.T) {
	d := NewReplyDecoder(OpDigitalRead)
	d.DecodeByte(0xFE)
	d.DecodeByte(byte(OpNak))
	_, err := d.DecodeByte(byte(OpAnalogWrite))
	var ferr *FrameError
	if !errors.As(err, &ferr) || ferr.Kind != FrameOpcodeMismatch {
		t.Fatalf("expected opcode mismatch, got %v", err)
	}
	if ferr.Got != byte(OpAnalogWrite) || ferr.Opcode != OpDigitalRead {
		t.Errorf("unexpected error fields: %+v", ferr)
	}
	if errors.Is(err, ErrRejected) {
		t.Error("a NAK for another request must not read as a rejection")
	}
}

func TestDecodeReply_Idempotent(t *testing.T) {
	raw := []byte{0xFE, 0x02, 0x01, 0xFF}
	first, err1 := DecodeReply(OpDigitalRead, raw)
	second, err2 := DecodeReply(OpDigitalRead, raw)
	if err1 != nil || err2 != nil {
		t.Fatalf("decode errors: %v, %v", err1, err2)
	}
	if first.Value != second.Value || first.Opcode != second.Opcode {
		t.Errorf("decodes differ: %+v vs %+v", first, second)
	}
}
