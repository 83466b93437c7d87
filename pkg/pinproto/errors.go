// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pinproto

import "fmt"

// ValidationKind classifies a rejected command field.
type ValidationKind int

const (
	FieldOutOfRange ValidationKind = iota
	UnknownEnum
)

func (k ValidationKind) String() string {
	switch k {
	case FieldOutOfRange:
		return "field out of range"
	case UnknownEnum:
		return "unknown enum value"
	default:
		return "validation error"
	}
}

// ValidationError reports a caller-supplied field that cannot be encoded.
// Commands that fail validation never reach the encoder.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Value   interface{}
	Allowed string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	if v.Kind == UnknownEnum {
		if v.Allowed != "" {
			return fmt.Sprintf("%s: unknown value %q (allowed: %s)", v.Field, fmt.Sprint(v.Value), v.Allowed)
		}
		return fmt.Sprintf("%s: unknown value %q", v.Field, fmt.Sprint(v.Value))
	}
	return fmt.Sprintf("%s: value %v out of range (allowed: %s)", v.Field, v.Value, v.Allowed)
}

// Is matches another *ValidationError of the same kind. An empty Field in the
// target matches any field.
func (v *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Kind == v.Kind && (t.Field == "" || t.Field == v.Field)
}

// FrameErrorKind classifies a malformed or incomplete reply frame.
type FrameErrorKind int

const (
	FrameTruncated FrameErrorKind = iota
	FrameBadStart
	FrameOpcodeMismatch
	FrameBadEnd
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameTruncated:
		return "truncated frame"
	case FrameBadStart:
		return "bad start marker"
	case FrameOpcodeMismatch:
		return "opcode mismatch"
	case FrameBadEnd:
		return "bad end marker"
	default:
		return "frame error"
	}
}

// FrameError reports bytes from the transport that do not form the expected
// reply frame.
type FrameError struct {
	Kind     FrameErrorKind
	Opcode   Opcode // opcode of the request being answered
	Got      byte   // offending byte for BadStart/OpcodeMismatch/BadEnd
	Received int    // bytes received for Truncated
	Expected int    // bytes expected for Truncated
}

// Error implements the error interface
func (f *FrameError) Error() string {
	switch f.Kind {
	case FrameTruncated:
		return fmt.Sprintf("%s reply: truncated frame: received %d of %d bytes", FormatOpcode(f.Opcode), f.Received, f.Expected)
	case FrameBadStart:
		return fmt.Sprintf("%s reply: bad start marker 0x%02X (want 0x%02X)", FormatOpcode(f.Opcode), f.Got, byte(StartMarker))
	case FrameOpcodeMismatch:
		return fmt.Sprintf("%s reply: opcode mismatch: got 0x%02X (%s)", FormatOpcode(f.Opcode), f.Got, FormatOpcode(Opcode(f.Got)))
	case FrameBadEnd:
		return fmt.Sprintf("%s reply: bad end marker 0x%02X (want 0x%02X)", FormatOpcode(f.Opcode), f.Got, byte(EndMarker))
	default:
		return fmt.Sprintf("%s reply: %s", FormatOpcode(f.Opcode), f.Kind)
	}
}

// Is matches another *FrameError of the same kind.
func (f *FrameError) Is(target error) bool {
	t, ok := target.(*FrameError)
	return ok && t.Kind == f.Kind
}

// ProtocolErrorKind classifies a well-formed reply with unusable content.
type ProtocolErrorKind int

const (
	InvalidValue ProtocolErrorKind = iota
	Rejected
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case InvalidValue:
		return "invalid value"
	case Rejected:
		return "rejected"
	default:
		return "protocol error"
	}
}

// ProtocolError reports a reply frame whose payload violates the catalog.
type ProtocolError struct {
	Kind    ProtocolErrorKind
	Opcode  Opcode
	Value   uint32
	Allowed string
}

// Error implements the error interface
func (p *ProtocolError) Error() string {
	switch p.Kind {
	case InvalidValue:
		return fmt.Sprintf("%s reply: invalid value %d (allowed: %s)", FormatOpcode(p.Opcode), p.Value, p.Allowed)
	case Rejected:
		return fmt.Sprintf("%s rejected by device (NAK)", FormatOpcode(p.Opcode))
	default:
		return fmt.Sprintf("%s reply: %s", FormatOpcode(p.Opcode), p.Kind)
	}
}

// Is matches another *ProtocolError of the same kind.
func (p *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == p.Kind
}

// Sentinel values for errors.Is
var (
	ErrFieldOutOfRange = &ValidationError{Kind: FieldOutOfRange}
	ErrUnknownEnum     = &ValidationError{Kind: UnknownEnum}

	ErrTruncated      = &FrameError{Kind: FrameTruncated}
	ErrBadStart       = &FrameError{Kind: FrameBadStart}
	ErrOpcodeMismatch = &FrameError{Kind: FrameOpcodeMismatch}
	ErrBadEnd         = &FrameError{Kind: FrameBadEnd}

	ErrInvalidValue = &ProtocolError{Kind: InvalidValue}
	ErrRejected     = &ProtocolError{Kind: Rejected}
)
