// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"

	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

// Acknowledge checks that the board is alive and in sync.
func (l *Link) Acknowledge(ctx context.Context) error {
	_, err := l.Do(ctx, pinproto.Acknowledge{})
	return err
}

// DigitalRead returns the logic level of pin.
func (l *Link) DigitalRead(ctx context.Context, pin int) (pinproto.Level, error) {
	reply, err := l.Do(ctx, pinproto.DigitalRead{Pin: pin})
	if err != nil {
		return pinproto.Low, err
	}
	return pinproto.Level(reply.Value), nil
}

// DigitalWrite drives pin to level.
func (l *Link) DigitalWrite(ctx context.Context, pin int, level pinproto.Level) error {
	_, err := l.Do(ctx, pinproto.DigitalWrite{Pin: pin, Level: level})
	return err
}

// SetPinMode sets the direction and pull resistor of pin.
func (l *Link) SetPinMode(ctx context.Context, pin int, mode pinproto.PinMode) error {
	_, err := l.Do(ctx, pinproto.SetPinMode{Pin: pin, Mode: mode})
	return err
}

// AnalogRead returns the ADC reading of pin, in [0, 1023].
func (l *Link) AnalogRead(ctx context.Context, pin int) (uint16, error) {
	reply, err := l.Do(ctx, pinproto.AnalogRead{Pin: pin})
	if err != nil {
		return 0, err
	}
	return uint16(reply.Value), nil
}

// AnalogWrite sets the PWM duty cycle of pin.
func (l *Link) AnalogWrite(ctx context.Context, pin, value int) error {
	_, err := l.Do(ctx, pinproto.AnalogWrite{Pin: pin, Value: value})
	return err
}

// Tone starts a square wave on pin. A zero duration plays until NoTone.
func (l *Link) Tone(ctx context.Context, pin, frequency int, durationMs int64) error {
	_, err := l.Do(ctx, pinproto.Tone{Pin: pin, Frequency: frequency, Duration: durationMs})
	return err
}

// NoTone stops any tone playing on pin.
func (l *Link) NoTone(ctx context.Context, pin int) error {
	_, err := l.Do(ctx, pinproto.NoTone{Pin: pin})
	return err
}

// Delay asks the board to pause. The reply deadline is extended by ms.
func (l *Link) Delay(ctx context.Context, ms int64) error {
	_, err := l.Do(ctx, pinproto.Delay{Milliseconds: ms})
	return err
}

// ReadClock returns the board's milliseconds since boot.
func (l *Link) ReadClock(ctx context.Context) (uint32, error) {
	reply, err := l.Do(ctx, pinproto.ReadClock{})
	if err != nil {
		return 0, err
	}
	return reply.Value, nil
}
