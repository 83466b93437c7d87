// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pinproto

// Command is one request in the catalog. The set of implementations is
// closed: only the types in this file satisfy it.
//
// Field values are held in wide integer types so that out-of-range input from
// a caller is representable and can be rejected by Validate rather than
// silently truncated.
type Command interface {
	Opcode() Opcode
	// values returns the request fields in wire order, matching the catalog
	// entry's field specs.
	values() []int64
}

// Acknowledge asks the device to echo an empty reply. Used as a liveness probe.
type Acknowledge struct{}

// DigitalRead reads the level of a digital pin.
type DigitalRead struct {
	Pin int
}

// DigitalWrite drives a digital pin low or high.
type DigitalWrite struct {
	Pin   int
	Level Level
}

// SetPinMode configures a pin's direction and pull resistors.
type SetPinMode struct {
	Pin  int
	Mode PinMode
}

// AnalogRead samples an ADC pin. The reply is 10 bits wide.
type AnalogRead struct {
	Pin int
}

// AnalogWrite sets a PWM duty cycle (0-255).
type AnalogWrite struct {
	Pin   int
	Value int
}

// Tone generates a square wave on a pin. Duration is in milliseconds;
// zero plays until NoTone.
type Tone struct {
	Pin       int
	Frequency int
	Duration  int64
}

// NoTone stops tone generation on a pin.
type NoTone struct {
	Pin int
}

// Delay blocks the device's command loop for the given number of milliseconds
// before it replies.
type Delay struct {
	Milliseconds int64
}

// ReadClock reads the device's millisecond uptime counter.
type ReadClock struct{}

func (Acknowledge) Opcode() Opcode  { return OpAcknowledge }
func (DigitalRead) Opcode() Opcode  { return OpDigitalRead }
func (DigitalWrite) Opcode() Opcode { return OpDigitalWrite }
func (SetPinMode) Opcode() Opcode   { return OpSetPinMode }
func (AnalogRead) Opcode() Opcode   { return OpAnalogRead }
func (AnalogWrite) Opcode() Opcode  { return OpAnalogWrite }
func (Tone) Opcode() Opcode         { return OpTone }
func (NoTone) Opcode() Opcode       { return OpNoTone }
func (Delay) Opcode() Opcode        { return OpDelay }
func (ReadClock) Opcode() Opcode    { return OpReadClock }

func (Acknowledge) values() []int64    { return nil }
func (c DigitalRead) values() []int64  { return []int64{int64(c.Pin)} }
func (c DigitalWrite) values() []int64 { return []int64{int64(c.Pin), int64(c.Level)} }
func (c SetPinMode) values() []int64   { return []int64{int64(c.Pin), int64(c.Mode)} }
func (c AnalogRead) values() []int64   { return []int64{int64(c.Pin)} }
func (c AnalogWrite) values() []int64  { return []int64{int64(c.Pin), int64(c.Value)} }
func (c Tone) values() []int64         { return []int64{int64(c.Pin), int64(c.Frequency), c.Duration} }
func (c NoTone) values() []int64       { return []int64{int64(c.Pin)} }
func (c Delay) values() []int64        { return []int64{c.Milliseconds} }
func (ReadClock) values() []int64      { return nil }
