// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"time"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

// ErrorKind classifies link-level failures.
type ErrorKind int

const (
	NotConnected ErrorKind = iota
	Busy
	Timeout
	IO
	Canceled
)

func (k ErrorKind) String() string {
	switch k {
	case NotConnected:
		return "not connected"
	case Busy:
		return "link busy"
	case Timeout:
		return "timed out"
	case IO:
		return "transport I/O failure"
	case Canceled:
		return "canceled"
	default:
		return "link error"
	}
}

// Error reports a failure of the link rather than of the frame contents.
// Err carries the underlying transport or context error when there is one.
type Error struct {
	Kind    ErrorKind
	Opcode  pinproto.Opcode
	Timeout time.Duration // set for Timeout
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := "link"
	if e.Opcode != pinproto.OpNak {
		prefix = fmt.Sprintf("link: %s", pinproto.FormatOpcode(e.Opcode))
	}
	switch {
	case e.Kind == Timeout:
		return fmt.Sprintf("%s: no reply within %v", prefix, e.Timeout)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Kind)
	}
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel values for errors.Is
var (
	ErrNotConnected = &Error{Kind: NotConnected}
	ErrBusy         = &Error{Kind: Busy}
	ErrTimeout      = &Error{Kind: Timeout}
	ErrIO           = &Error{Kind: IO}
	ErrCanceled     = &Error{Kind: Canceled}
)
