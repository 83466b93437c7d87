// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim implements an in-memory board that speaks pinproto. A Board is
// a link.Transport, so every command can be exercised without hardware.
package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

// ErrClosed is returned by I/O on a closed board
var ErrClosed = errors.New("sim: board closed")

// Fault alters the board's next reply.
type Fault int

const (
	FaultNone        Fault = iota
	FaultDrop              // no reply at all
	FaultTruncate          // send only the start marker and opcode
	FaultWrongOpcode       // reply with another opcode's frame
	FaultBadEnd            // corrupt the end marker
	FaultNak               // reject the command
	FaultGarbage           // prefix the reply with stray bytes
)

// Pin is the simulated state of one pin.
type Pin struct {
	Mode   pinproto.PinMode
	Level  pinproto.Level // driven output or external input level
	Analog uint16         // external analog input
	PWM    uint8
	Tone   int // frequency in Hz, 0 when silent
}

// Board is a simulated microcontroller.
type Board struct {
	mu      sync.Mutex
	pins    [pinproto.MaxPin + 1]Pin
	rx      []byte // unparsed request bytes
	tx      []byte // reply bytes ready to read
	faults  []Fault
	timeout time.Duration
	latency time.Duration
	boot    time.Time
	now     func() time.Time
	closed  bool
	ready   chan struct{}

	busyUntil time.Time // replies leave in order, after any Delay in progress
}

// Option configures a Board
type Option func(*Board)

// WithLatency delays every reply.
func WithLatency(d time.Duration) Option {
	return func(b *Board) { b.latency = d }
}

// WithClock replaces time.Now for the board's millisecond clock.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// NewBoard creates a board with every pin an INPUT reading LOW.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		timeout: time.Second,
		now:     time.Now,
		ready:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.boot = b.now()
	return b
}

// InjectFault queues a fault for an upcoming reply. Faults apply in order,
// one per command.
func (b *Board) InjectFault(f Fault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = append(b.faults, f)
}

// SetInput sets the externally driven level of pin. Pins outside
// [0, pinproto.MaxPin] are ignored.
func (b *Board) SetInput(pin int, level pinproto.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if validPin(pin) {
		b.pins[pin].Level = level
	}
}

// SetAnalog sets the voltage on pin as an ADC reading. Pins outside
// [0, pinproto.MaxPin] are ignored.
func (b *Board) SetAnalog(pin int, value uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if validPin(pin) {
		b.pins[pin].Analog = value
	}
}

// Pin returns the state of pin, or the zero Pin if there is no such pin.
func (b *Board) Pin(pin int) Pin {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !validPin(pin) {
		return Pin{}
	}
	return b.pins[pin]
}

func validPin(pin int) bool {
	return pin >= 0 && pin <= pinproto.MaxPin
}

// Write accepts request bytes. Complete frames are executed immediately and
// their replies queued for Read.
func (b *Board) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	b.rx = append(b.rx, p...)
	b.process()
	return len(p), nil
}

// process parses as many complete frames from rx as possible. Caller holds mu.
func (b *Board) process() {
	for len(b.rx) > 0 {
		// Skip line noise up to the next start marker
		if b.rx[0] != byte(pinproto.StartMarker) {
			b.rx = b.rx[1:]
			continue
		}
		if len(b.rx) < 2 {
			return
		}
		op := pinproto.Opcode(b.rx[1])
		if !pinproto.Known(op) {
			b.rx = b.rx[2:]
			b.send(pinproto.EncodeNak(op), 0)
			continue
		}
		n := pinproto.RequestLen(op)
		if len(b.rx) < n {
			return
		}
		frame := b.rx[:n]
		b.rx = b.rx[n:]

		cmd, err := pinproto.DecodeCommand(frame)
		if err != nil {
			b.send(pinproto.EncodeNak(op), 0)
			continue
		}
		b.execute(cmd)
	}
}

// execute applies cmd to the pins and queues its reply. Caller holds mu.
func (b *Board) execute(cmd pinproto.Command) {
	var value uint32
	var delay time.Duration

	switch c := cmd.(type) {
	case pinproto.DigitalRead:
		value = uint32(b.pins[c.Pin].Level)
	case pinproto.DigitalWrite:
		b.pins[c.Pin].Level = c.Level
	case pinproto.SetPinMode:
		b.pins[c.Pin].Mode = c.Mode
		if c.Mode == pinproto.ModeInputPullup {
			b.pins[c.Pin].Level = pinproto.High
		}
	case pinproto.AnalogRead:
		value = uint32(b.pins[c.Pin].Analog)
	case pinproto.AnalogWrite:
		b.pins[c.Pin].PWM = uint8(c.Value)
	case pinproto.Tone:
		b.pins[c.Pin].Tone = c.Frequency
	case pinproto.NoTone:
		b.pins[c.Pin].Tone = 0
	case pinproto.Delay:
		delay = time.Duration(c.Milliseconds) * time.Millisecond
	case pinproto.ReadClock:
		value = uint32(b.now().Sub(b.boot).Milliseconds())
	}

	reply, err := pinproto.EncodeReply(cmd.Opcode(), value)
	if err != nil {
		reply = pinproto.EncodeNak(cmd.Opcode())
	}
	b.send(reply, delay)
}

// send applies the next queued fault and schedules the reply. Caller holds mu.
func (b *Board) send(reply []byte, delay time.Duration) {
	fault := FaultNone
	if len(b.faults) > 0 {
		fault = b.faults[0]
		b.faults = b.faults[1:]
	}
	out := append([]byte(nil), reply...)
	switch fault {
	case FaultDrop:
		return
	case FaultTruncate:
		out = out[:2]
	case FaultWrongOpcode:
		other := pinproto.OpAnalogRead
		if pinproto.Opcode(reply[1]) == other {
			other = pinproto.OpReadClock
		}
		out, _ = pinproto.EncodeReply(other, 0x0102)
	case FaultBadEnd:
		out[len(out)-1] = 0x00
	case FaultNak:
		out = pinproto.EncodeNak(pinproto.Opcode(reply[1]))
	case FaultGarbage:
		out = append([]byte{0x13, 0x37}, out...)
	}

	start := time.Now()
	if b.busyUntil.After(start) {
		start = b.busyUntil
	}
	due := start.Add(delay + b.latency)
	b.busyUntil = due

	wait := time.Until(due)
	if wait <= 0 {
		b.tx = append(b.tx, out...)
		b.signal()
		return
	}
	time.AfterFunc(wait, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		b.tx = append(b.tx, out...)
		b.signal()
	})
}

func (b *Board) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Read returns queued reply bytes, waiting up to the read timeout. It returns
// (0, nil) if nothing arrives in time.
func (b *Board) Read(p []byte) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	if len(b.tx) == 0 {
		timeout := b.timeout
		b.mu.Unlock()
		timer := time.NewTimer(timeout)
		select {
		case <-b.ready:
		case <-timer.C:
		}
		timer.Stop()
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return 0, ErrClosed
		}
	}
	n := copy(p, b.tx)
	b.tx = b.tx[n:]
	b.mu.Unlock()
	return n, nil
}

// SetReadTimeout bounds the next reads.
func (b *Board) SetReadTimeout(t time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = t
	return nil
}

// ResetInputBuffer discards replies not yet read.
func (b *Board) ResetInputBuffer() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tx = nil
	return nil
}

// Close stops the board. Replies still scheduled are dropped.
func (b *Board) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	b.signal()
	return nil
}
