// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/beyarkay/chat-with-arduino/pkg/link"
	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for driving pins",
	Long: `Drive the board's pins from an interactive terminal UI.

Pick an operation from the list, type its arguments (for example "13 HIGH"
for DIGITAL_WRITE) and press Enter to send it. Replies, errors and link
statistics are shown as they arrive.

Tab switches between the operation list, the argument field and the send
button. If the connection is lost, control reopens it automatically with
exponential backoff.`,
	Example: `  arduinoctl control --port /dev/ttyACM0
  arduinoctl control --sim`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// operation is one entry of the control list
type operation struct {
	op    pinproto.Opcode
	usage string
	hint  string
}

// Implement list.Item interface
func (o operation) Title() string       { return o.op.String() }
func (o operation) Description() string { return o.usage }
func (o operation) FilterValue() string { return o.op.String() }

var operations = []operation{
	{pinproto.OpDigitalWrite, "PIN LEVEL", "13 HIGH"},
	{pinproto.OpDigitalRead, "PIN", "13"},
	{pinproto.OpSetPinMode, "PIN MODE", "13 OUTPUT"},
	{pinproto.OpAnalogRead, "PIN", "0"},
	{pinproto.OpAnalogWrite, "PIN VALUE", "9 128"},
	{pinproto.OpTone, "PIN FREQ [MS]", "8 440 500"},
	{pinproto.OpNoTone, "PIN", "8"},
	{pinproto.OpDelay, "MS", "100"},
	{pinproto.OpReadClock, "", ""},
	{pinproto.OpAcknowledge, "", ""},
}

// buildCommand turns typed arguments into a command for op. The result is
// not validated.
func buildCommand(op pinproto.Opcode, input string) (pinproto.Command, error) {
	args := strings.Fields(input)
	want := map[pinproto.Opcode][2]int{
		pinproto.OpAcknowledge:  {0, 0},
		pinproto.OpReadClock:    {0, 0},
		pinproto.OpDigitalRead:  {1, 1},
		pinproto.OpAnalogRead:   {1, 1},
		pinproto.OpNoTone:       {1, 1},
		pinproto.OpDelay:        {1, 1},
		pinproto.OpDigitalWrite: {2, 2},
		pinproto.OpSetPinMode:   {2, 2},
		pinproto.OpAnalogWrite:  {2, 2},
		pinproto.OpTone:         {2, 3},
	}
	n, ok := want[op]
	if !ok {
		return nil, fmt.Errorf("unsupported operation %s", op)
	}
	if len(args) < n[0] || len(args) > n[1] {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", op, n[1], len(args))
	}

	switch op {
	case pinproto.OpAcknowledge:
		return pinproto.Acknowledge{}, nil
	case pinproto.OpReadClock:
		return pinproto.ReadClock{}, nil
	case pinproto.OpDelay:
		ms, err := parseNumber("milliseconds", args[0])
		if err != nil {
			return nil, err
		}
		return pinproto.Delay{Milliseconds: ms}, nil
	}

	pin, err := parsePin(args[0])
	if err != nil {
		return nil, err
	}
	switch op {
	case pinproto.OpDigitalRead:
		return pinproto.DigitalRead{Pin: pin}, nil
	case pinproto.OpAnalogRead:
		return pinproto.AnalogRead{Pin: pin}, nil
	case pinproto.OpNoTone:
		return pinproto.NoTone{Pin: pin}, nil
	case pinproto.OpDigitalWrite:
		level, err := pinproto.ParseLevel(args[1])
		if err != nil {
			return nil, err
		}
		return pinproto.DigitalWrite{Pin: pin, Level: level}, nil
	case pinproto.OpSetPinMode:
		mode, err := pinproto.ParsePinMode(args[1])
		if err != nil {
			return nil, err
		}
		return pinproto.SetPinMode{Pin: pin, Mode: mode}, nil
	case pinproto.OpAnalogWrite:
		value, err := parseNumber("value", args[1])
		if err != nil {
			return nil, err
		}
		return pinproto.AnalogWrite{Pin: pin, Value: int(value)}, nil
	default: // OpTone
		freq, err := parseNumber("frequency", args[1])
		if err != nil {
			return nil, err
		}
		var duration int64
		if len(args) == 3 {
			if duration, err = parseNumber("duration", args[2]); err != nil {
				return nil, err
			}
		}
		return pinproto.Tone{Pin: pin, Frequency: int(freq), Duration: duration}, nil
	}
}

// Messages from background work to the control UI
type controlResultMsg struct {
	command pinproto.Command
	reply   *pinproto.Reply
	err     error
	rtt     time.Duration
	stats   link.StatsSnapshot
}

// sendCommand performs c off the UI goroutine
func sendCommand(ctx context.Context, s *session, c pinproto.Command) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		reply, err := s.link.Do(ctx, c)
		return controlResultMsg{
			command: c,
			reply:   reply,
			err:     err,
			rtt:     time.Since(start),
			stats:   s.stats.Snapshot(),
		}
	}
}

// reconnectCmd reopens the session in the background
func reconnectCmd(ctx context.Context, s *session) tea.Cmd {
	return func() tea.Msg {
		if !s.reconnect(ctx) {
			return nil
		}
		return reconnectedMsg{connInfo: s.info}
	}
}

// linkLost reports whether err means the transport is gone
func linkLost(err error) bool {
	return errors.Is(err, link.ErrIO) || errors.Is(err, link.ErrNotConnected)
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	m := newControlModel(ctx, s)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
