// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/beyarkay/chat-with-arduino/pkg/link"
	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// pinRow is the latest known value of one watched pin
type pinRow struct {
	label   string
	value   string
	updated time.Time
	history []float64 // recent analog values for the bar
}

type watchModel struct {
	connInfo     string
	interval     time.Duration
	digital      []int
	analog       []int
	rows         map[string]*pinRow
	table        table.Model
	spinner      spinner.Model
	connected    bool
	clock        uint32
	hasClock     bool
	stats        link.StatsSnapshot
	eventLog     []eventLogEntry
	maxLogLength int
	width        int
	height       int
	quitting     bool
}

func newWatchModel(connInfo string, digital, analog []int, interval time.Duration) watchModel {
	columns := []table.Column{
		{Title: "Pin", Width: 6},
		{Title: "Value", Width: 8},
		{Title: "Level", Width: 22},
		{Title: "Age", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(len(digital)+len(analog)+3),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	m := watchModel{
		connInfo:     connInfo,
		interval:     interval,
		digital:      digital,
		analog:       analog,
		rows:         make(map[string]*pinRow),
		table:        t,
		spinner:      sp,
		connected:    true,
		eventLog:     make([]eventLogEntry, 0),
		maxLogLength: 100,
		width:        80,
		height:       24,
	}
	for _, pin := range digital {
		m.rows[digitalLabel(pin)] = &pinRow{label: digitalLabel(pin), value: "-"}
	}
	for _, pin := range analog {
		m.rows[analogLabel(pin)] = &pinRow{label: analogLabel(pin), value: "-"}
	}
	m.refreshTable(time.Now())
	return m
}

func digitalLabel(pin int) string { return fmt.Sprintf("D%d", pin) }
func analogLabel(pin int) string  { return fmt.Sprintf("A%d", pin) }

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(watchTickCmd(), m.spinner.Tick)
}

type watchTickMsg time.Time

func watchTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.eventLog = m.eventLog[:0]
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case watchTickMsg:
		// Keep the age column moving between samples
		m.refreshTable(time.Time(msg))
		return m, watchTickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sampleMsg:
		m.applySample(msg)

	case connectionLostMsg:
		m.connected = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		} else {
			m.addLogEntry("Connection lost, reconnecting...", true)
		}

	case reconnectedMsg:
		m.connected = true
		m.connInfo = msg.connInfo
		m.addLogEntry(fmt.Sprintf("Reconnected (%s)", msg.connInfo), false)
	}

	return m, nil
}

func (m *watchModel) applySample(msg sampleMsg) {
	for pin, level := range msg.digital {
		row := m.rows[digitalLabel(pin)]
		row.value = level.String()
		row.updated = msg.at
	}
	for pin, v := range msg.analog {
		row := m.rows[analogLabel(pin)]
		row.value = fmt.Sprintf("%d", v)
		row.updated = msg.at
		row.history = append(row.history, float64(v))
		if len(row.history) > 20 {
			row.history = row.history[len(row.history)-20:]
		}
	}
	if msg.hasClock {
		m.clock = msg.clock
		m.hasClock = true
	}
	m.stats = msg.stats
	for _, err := range msg.errs {
		m.addLogEntry(err.Error(), true)
	}
	m.refreshTable(msg.at)
}

func (m *watchModel) refreshTable(now time.Time) {
	rows := make([]table.Row, 0, len(m.rows))
	add := func(label string, analog bool) {
		r := m.rows[label]
		age := "-"
		if !r.updated.IsZero() {
			age = now.Sub(r.updated).Round(100 * time.Millisecond).String()
		}
		level := ""
		switch {
		case analog && len(r.history) > 0:
			level = analogBar(r.history[len(r.history)-1], 20)
		case !analog && r.value == pinproto.High.String():
			level = "■"
		case !analog && r.value == pinproto.Low.String():
			level = "□"
		}
		rows = append(rows, table.Row{r.label, r.value, level, age})
	}
	for _, pin := range m.digital {
		add(digitalLabel(pin), false)
	}
	for _, pin := range m.analog {
		add(analogLabel(pin), true)
	}
	m.table.SetRows(rows)
}

// analogBar draws v on a 0-1023 scale
func analogBar(v float64, width int) string {
	filled := int(v / pinproto.MaxAnalogRead * float64(width))
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (m *watchModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogLength {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogLength:]
	}
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("ARDUINOCTL - PIN MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | every %v | 'c' clears log, 'q' quits", m.connInfo, m.interval)))
	s.WriteString("\n\n")

	if m.connected {
		s.WriteString(valueStyle.Render("✓ Connected"))
	} else {
		s.WriteString(m.spinner.View())
		s.WriteString(errorStyle.Render(" Reconnecting..."))
	}
	if m.hasClock {
		s.WriteString(headerStyle.Render(fmt.Sprintf("   board up %s", pinproto.FormatDuration(uint64(m.clock)))))
	}
	s.WriteString("\n\n")

	if len(m.rows) > 0 {
		s.WriteString(boxStyle.Render(m.table.View()))
		s.WriteString("\n")
	}

	// Link statistics
	var stats strings.Builder
	stats.WriteString(labelStyle.Render("Exchanges: "))
	stats.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.stats.Exchanges)))
	stats.WriteString(labelStyle.Render("   Errors: "))
	if m.stats.Errors() > 0 {
		stats.WriteString(errorStyle.Render(fmt.Sprintf("%d", m.stats.Errors())))
	} else {
		stats.WriteString(valueStyle.Render("0"))
	}
	stats.WriteString(labelStyle.Render("   Resyncs: "))
	stats.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.stats.Resyncs)))
	if m.stats.Succeeded > 0 {
		stats.WriteString(labelStyle.Render("   RTT: "))
		stats.WriteString(valueStyle.Render(m.stats.AvgRTT().Round(time.Microsecond).String()))
	}
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n")

	// Event log, newest last
	logLines := m.height - strings.Count(s.String(), "\n") - 4
	if logLines < 3 {
		logLines = 3
	}
	start := 0
	if len(m.eventLog) > logLines {
		start = len(m.eventLog) - logLines
	}
	var logView strings.Builder
	logView.WriteString(labelStyle.Render("Event Log"))
	for _, e := range m.eventLog[start:] {
		line := fmt.Sprintf("%s %s", e.timestamp.Format("15:04:05"), e.message)
		logView.WriteString("\n")
		if e.isError {
			logView.WriteString(errorStyle.Render(line))
		} else {
			logView.WriteString(headerStyle.Render(line))
		}
	}
	if len(m.eventLog) == 0 {
		logView.WriteString("\n")
		logView.WriteString(headerStyle.Render("(no events)"))
	}
	s.WriteString(boxStyle.Render(logView.String()))
	s.WriteString("\n")

	return s.String()
}
