// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"time"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
	"github.com/google/uuid"
)

// Exchange describes one completed request/reply round trip, successful or
// not. Observers receive it after the link has been released.
type Exchange struct {
	Session  uuid.UUID // changes on every Open
	Seq      uint64    // per-session sequence number, starting at 1
	Command  pinproto.Command
	Request  []byte
	Response []byte // raw reply bytes consumed, possibly partial
	Reply    *pinproto.Reply
	Err      error
	Drained  int // stale bytes discarded before this exchange
	Started  time.Time
	Duration time.Duration
}

// Observer receives completed exchanges on the calling goroutine, before Do
// returns. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveExchange(ex Exchange)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(ex Exchange)

// ObserveExchange calls f(ex)
func (f ObserverFunc) ObserveExchange(ex Exchange) {
	f(ex)
}
