// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/beyarkay/chat-with-arduino/pkg/link"
	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

var (
	watchDigital  string
	watchAnalog   string
	watchInterval time.Duration
	watchNoClock  bool
	watchPlain    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live monitor of pin values and link health",
	Long: `Poll digital and analog pins and the board clock, and show them live in a
terminal UI together with link statistics and an event log.

If the connection is lost, watch reopens it automatically with exponential
backoff (1s up to 30s).

Use --plain for one line per sweep instead of the TUI, e.g. for piping.`,
	Example: `  arduinoctl watch --digital 2,3 --analog 0,1 --port /dev/ttyACM0
  arduinoctl watch --analog 0 --interval 1s --plain --sim`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchDigital, "digital", "d", "", "Comma-separated digital pins to read")
	watchCmd.Flags().StringVarP(&watchAnalog, "analog", "a", "", "Comma-separated analog pins to read")
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 250*time.Millisecond, "Time between sweeps")
	watchCmd.Flags().BoolVar(&watchNoClock, "no-clock", false, "Do not read the board clock")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print samples as lines instead of the TUI")
}

// Messages sent from the poller to the UI
type sampleMsg struct {
	at       time.Time
	digital  map[int]pinproto.Level
	analog   map[int]uint16
	clock    uint32
	hasClock bool
	errs     []error
	stats    link.StatsSnapshot
}
type connectionLostMsg struct {
	err error
}
type reconnectedMsg struct {
	connInfo string
}

// watcher polls the board and reports through send
type watcher struct {
	s       *session
	digital []int
	analog  []int
	clock   bool
	limiter *rate.Limiter
	send    func(tea.Msg)
}

func newWatcher(s *session, digital, analog []int, clock bool, interval time.Duration, send func(tea.Msg)) *watcher {
	return &watcher{
		s:       s,
		digital: digital,
		analog:  analog,
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		send:    send,
	}
}

// sweep reads every watched value once. Failed reads are reported in errs and
// leave their value out of the sample.
func (w *watcher) sweep(ctx context.Context) sampleMsg {
	msg := sampleMsg{
		at:      time.Now(),
		digital: make(map[int]pinproto.Level, len(w.digital)),
		analog:  make(map[int]uint16, len(w.analog)),
	}
	l := w.s.link
	for _, pin := range w.digital {
		level, err := l.DigitalRead(ctx, pin)
		if err != nil {
			msg.errs = append(msg.errs, fmt.Errorf("D%d: %w", pin, err))
			continue
		}
		msg.digital[pin] = level
	}
	for _, pin := range w.analog {
		v, err := l.AnalogRead(ctx, pin)
		if err != nil {
			msg.errs = append(msg.errs, fmt.Errorf("A%d: %w", pin, err))
			continue
		}
		msg.analog[pin] = v
	}
	if w.clock {
		ms, err := l.ReadClock(ctx)
		if err != nil {
			msg.errs = append(msg.errs, fmt.Errorf("clock: %w", err))
		} else {
			msg.clock = ms
			msg.hasClock = true
		}
	}
	msg.stats = w.s.stats.Snapshot()
	return msg
}

// run polls until ctx ends, reopening the link when it is lost.
func (w *watcher) run(ctx context.Context) {
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		if w.s.link.State() == link.Disconnected {
			w.send(connectionLostMsg{})
			if !w.s.reconnect(ctx) {
				return
			}
			w.send(reconnectedMsg{connInfo: w.s.info})
			continue
		}
		w.send(w.sweep(ctx))
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	digital, err := parsePinList(watchDigital)
	if err != nil {
		return err
	}
	analog, err := parsePinList(watchAnalog)
	if err != nil {
		return err
	}
	if len(digital) == 0 && len(analog) == 0 && watchNoClock {
		return fmt.Errorf("nothing to watch: give --digital or --analog, or drop --no-clock")
	}
	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	for _, pin := range digital {
		if err := pinproto.Validate(pinproto.DigitalRead{Pin: pin}); err != nil {
			return err
		}
	}
	for _, pin := range analog {
		if err := pinproto.Validate(pinproto.AnalogRead{Pin: pin}); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if watchPlain {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Connection: %s\n", s.info)
		w := newWatcher(s, digital, analog, !watchNoClock, watchInterval, func(msg tea.Msg) {
			printWatchMsg(out, msg)
		})
		w.run(ctx)
		return nil
	}

	m := newWatchModel(s.info, digital, analog, watchInterval)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	w := newWatcher(s, digital, analog, !watchNoClock, watchInterval, p.Send)

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.run(pollCtx)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// printWatchMsg renders poller messages for --plain
func printWatchMsg(out io.Writer, msg tea.Msg) {
	switch msg := msg.(type) {
	case sampleMsg:
		fmt.Fprintln(out, formatSample(msg))
	case connectionLostMsg:
		fmt.Fprintf(out, "%s connection lost, reconnecting\n", time.Now().Format("15:04:05.000"))
	case reconnectedMsg:
		fmt.Fprintf(out, "%s reconnected (%s)\n", time.Now().Format("15:04:05.000"), msg.connInfo)
	}
}

// formatSample renders one sweep on a single line, e.g.
// "12:00:00.250 D2=HIGH A0=512 clock=61000"
func formatSample(msg sampleMsg) string {
	parts := []string{msg.at.Format("15:04:05.000")}
	for _, pin := range sortedKeys(msg.digital) {
		parts = append(parts, fmt.Sprintf("D%d=%s", pin, msg.digital[pin]))
	}
	for _, pin := range sortedKeys(msg.analog) {
		parts = append(parts, fmt.Sprintf("A%d=%d", pin, msg.analog[pin]))
	}
	if msg.hasClock {
		parts = append(parts, fmt.Sprintf("clock=%d", msg.clock))
	}
	for _, err := range msg.errs {
		parts = append(parts, fmt.Sprintf("ERROR(%v)", err))
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
