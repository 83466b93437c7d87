// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link dispatches pinproto commands over a byte transport, one
// exchange at a time.
//
// A Link owns its transport for as long as it is connected. Callers that
// arrive while an exchange is in flight queue for the link; if their context
// ends while queued they get an error of kind Busy. Any failure that leaves
// the framing position unknown marks the link dirty, including a timeout and
// a caller cancelling mid-exchange. The next exchange first drains the line
// until it is quiet.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport is a full-duplex byte stream with bounded reads.
//
// Read must return (0, nil) when the read timeout elapses with no data, the
// way go.bug.st/serial ports behave. Any returned error is treated as fatal
// for the connection.
type Transport interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// inputResetter is implemented by transports that can discard their OS-level
// receive buffer.
type inputResetter interface {
	ResetInputBuffer() error
}

// State is the connection state of a Link.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Default timings
const (
	DefaultTimeout      = 1 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
	DefaultQuietPeriod  = 50 * time.Millisecond
	DefaultDrainTimeout = 500 * time.Millisecond
)

// Link is the only component that reads from or writes to its transport.
type Link struct {
	slot chan struct{} // held for the duration of one exchange

	mu        sync.Mutex
	transport Transport
	state     State
	dirty     bool
	session   uuid.UUID
	seq       uint64

	timeout      time.Duration
	pollInterval time.Duration
	quietPeriod  time.Duration
	drainTimeout time.Duration
	logger       *zap.Logger
	observers    []Observer
}

// Option configures a Link
type Option func(*Link)

// WithTimeout sets how long an exchange waits for a complete reply.
func WithTimeout(d time.Duration) Option {
	return func(l *Link) { l.timeout = d }
}

// WithPollInterval bounds each individual transport read so cancellation is
// noticed promptly.
func WithPollInterval(d time.Duration) Option {
	return func(l *Link) { l.pollInterval = d }
}

// WithQuietPeriod sets how long the line must be silent for a resync drain to
// finish.
func WithQuietPeriod(d time.Duration) Option {
	return func(l *Link) { l.quietPeriod = d }
}

// WithDrainTimeout caps the total time spent draining.
func WithDrainTimeout(d time.Duration) Option {
	return func(l *Link) { l.drainTimeout = d }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// WithObserver registers an observer for completed exchanges.
func WithObserver(o Observer) Option {
	return func(l *Link) { l.observers = append(l.observers, o) }
}

// New creates a disconnected link.
func New(opts ...Option) *Link {
	l := &Link{
		slot:         make(chan struct{}, 1),
		state:        Disconnected,
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		quietPeriod:  DefaultQuietPeriod,
		drainTimeout: DefaultDrainTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pollInterval <= 0 {
		l.pollInterval = DefaultPollInterval
	}
	return l
}

// Open takes ownership of t and moves the link to Connected.
func (l *Link) Open(t Transport) error {
	if t == nil {
		return fmt.Errorf("link: nil transport")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Connected {
		return fmt.Errorf("link: already connected")
	}
	l.transport = t
	l.state = Connected
	l.dirty = false
	l.session = uuid.New()
	l.seq = 0
	l.logger.Info("link opened", zap.String("session", l.session.String()))
	return nil
}

// Close releases the transport and moves the link to Disconnected. Closing a
// disconnected link is a no-op.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked("closed")
}

func (l *Link) closeLocked(reason string) error {
	if l.state == Disconnected {
		return nil
	}
	err := l.transport.Close()
	l.logger.Info("link "+reason, zap.String("session", l.session.String()))
	l.transport = nil
	l.state = Disconnected
	l.dirty = false
	return err
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Session returns the identifier of the current connection, or uuid.Nil
// before the first Open.
func (l *Link) Session() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Do validates, sends cmd and waits for its reply.
//
// Validation errors are returned before any I/O. On a disconnected link Do
// returns an *Error of kind NotConnected without touching any transport. A
// context that has ended by the time the link is free yields an *Error of kind
// Canceled, again without I/O. Errors are never retried.
func (l *Link) Do(ctx context.Context, cmd pinproto.Command) (*pinproto.Reply, error) {
	frame, err := pinproto.Encode(cmd)
	if err != nil {
		return nil, err
	}
	op := cmd.Opcode()
	if l.State() != Connected {
		return nil, &Error{Kind: NotConnected, Opcode: op}
	}

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, &Error{Kind: Busy, Opcode: op, Err: ctx.Err()}
	}
	ex, err := l.roundTrip(ctx, cmd, frame)
	<-l.slot
	if err != nil {
		return nil, err
	}

	// Observers run with the link released
	return ex.Reply, l.finish(ex)
}

// roundTrip performs one exchange. The caller holds the slot. A non-nil error
// means nothing was written and no exchange is reported.
func (l *Link) roundTrip(ctx context.Context, cmd pinproto.Command, frame []byte) (Exchange, error) {
	op := cmd.Opcode()
	if err := ctx.Err(); err != nil {
		return Exchange{}, &Error{Kind: Canceled, Opcode: op, Err: err}
	}

	l.mu.Lock()
	t := l.transport
	dirty := l.dirty
	session := l.session
	if t != nil {
		l.seq++
	}
	seq := l.seq
	l.mu.Unlock()
	if t == nil {
		// closed while queued
		return Exchange{}, &Error{Kind: NotConnected, Opcode: op}
	}

	timeout := l.timeout
	if d, ok := cmd.(pinproto.Delay); ok {
		timeout += time.Duration(d.Milliseconds) * time.Millisecond
	}

	ex := Exchange{
		Session: session,
		Seq:     seq,
		Command: cmd,
		Request: frame,
		Started: time.Now(),
	}
	if dirty {
		n, err := l.drain(t)
		ex.Drained = n
		if err != nil {
			ex.Err = l.fail(t, op, err)
			ex.Duration = time.Since(ex.Started)
			return ex, nil
		}
		l.mu.Lock()
		if l.transport == t {
			l.dirty = false
		}
		l.mu.Unlock()
	}

	ex.Reply, ex.Response, ex.Err = l.exchange(ctx, t, op, frame, timeout)
	ex.Duration = time.Since(ex.Started)
	return ex, nil
}

// exchange writes one frame and reads its reply.
func (l *Link) exchange(ctx context.Context, t Transport, op pinproto.Opcode, frame []byte, timeout time.Duration) (*pinproto.Reply, []byte, error) {
	if _, err := t.Write(frame); err != nil {
		return nil, nil, l.fail(t, op, err)
	}

	deadline := time.Now().Add(timeout)
	decoder := pinproto.NewReplyDecoder(op)
	size := pinproto.ReplyLen(op)
	if size < pinproto.NakLen {
		size = pinproto.NakLen
	}
	buf := make([]byte, size)

	for {
		if err := ctx.Err(); err != nil {
			l.markDirty(t)
			return nil, copyBytes(decoder.GetRawBytes()), &Error{Kind: Canceled, Opcode: op, Err: err}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			// A late reply may still arrive
			l.markDirty(t)
			if decoder.Received() == 0 {
				return nil, nil, &Error{Kind: Timeout, Opcode: op, Timeout: timeout}
			}
			return nil, copyBytes(decoder.GetRawBytes()), &pinproto.FrameError{
				Kind:     pinproto.FrameTruncated,
				Opcode:   op,
				Received: decoder.Received(),
				Expected: decoder.Received() + decoder.Remaining(),
			}
		}
		if remaining > l.pollInterval {
			remaining = l.pollInterval
		}
		if err := t.SetReadTimeout(remaining); err != nil {
			return nil, copyBytes(decoder.GetRawBytes()), l.fail(t, op, err)
		}

		// Never read past the end of the expected frame
		n, err := t.Read(buf[:decoder.Remaining()])
		if err != nil {
			return nil, copyBytes(decoder.GetRawBytes()), l.fail(t, op, err)
		}
		for i := 0; i < n; i++ {
			reply, derr := decoder.DecodeByte(buf[i])
			if derr != nil {
				var ferr *pinproto.FrameError
				if errors.As(derr, &ferr) {
					l.markDirty(t)
				}
				return nil, copyBytes(decoder.GetRawBytes()), derr
			}
			if reply != nil {
				return reply, copyBytes(decoder.GetRawBytes()), nil
			}
		}
	}
}

// drain discards bytes until the line has been quiet for quietPeriod or
// drainTimeout elapses.
func (l *Link) drain(t Transport) (int, error) {
	buf := make([]byte, 64)
	deadline := time.Now().Add(l.drainTimeout)
	total := 0
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			break
		}
		if wait > l.quietPeriod {
			wait = l.quietPeriod
		}
		if err := t.SetReadTimeout(wait); err != nil {
			return total, err
		}
		n, err := t.Read(buf)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	if r, ok := t.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return total, err
		}
	}
	l.logger.Warn("link resynchronized", zap.Int("discarded", total))
	return total, nil
}

// markDirty flags the line for draining before the next exchange, provided t
// is still the active transport.
func (l *Link) markDirty(t Transport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.transport == t {
		l.dirty = true
	}
}

// fail tears the connection down after a transport error.
func (l *Link) fail(t Transport, op pinproto.Opcode, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.transport == t {
		l.logger.Warn("transport failure", zap.Stringer("opcode", op), zap.Error(err))
		l.closeLocked("lost")
	}
	return &Error{Kind: IO, Opcode: op, Err: err}
}

// finish logs a completed exchange and notifies observers.
func (l *Link) finish(ex Exchange) error {
	l.logger.Debug("exchange",
		zap.String("session", ex.Session.String()),
		zap.Uint64("seq", ex.Seq),
		zap.Stringer("opcode", ex.Command.Opcode()),
		zap.Binary("request", ex.Request),
		zap.Binary("response", ex.Response),
		zap.Duration("took", ex.Duration),
		zap.Error(ex.Err),
	)
	for _, o := range l.observers {
		o.ObserveExchange(ex)
	}
	return ex.Err
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
