// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/beyarkay/chat-with-arduino/pkg/link"
	"github.com/beyarkay/chat-with-arduino/pkg/pinproto"
)

// Focus states
const (
	focusOperationList = iota
	focusArgsInput
	focusButton
)

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctx      context.Context
	s        *session
	connInfo string

	operations list.Model
	argsInput  textinput.Model
	focused    int

	// Monitoring
	stats         link.StatsSnapshot
	eventLog      []eventLogEntry
	maxLogEntries int
	pending       int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

func newControlModel(ctx context.Context, s *session) controlModel {
	ti := textinput.New()
	ti.CharLimit = 32
	ti.Width = 20

	items := make([]list.Item, len(operations))
	for i, op := range operations {
		items[i] = op
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	opList := list.New(items, delegate, 28, 14)
	opList.Title = "Operations"
	opList.SetShowStatusBar(false)
	opList.SetShowHelp(false)
	opList.SetFilteringEnabled(false)

	m := controlModel{
		ctx:           ctx,
		s:             s,
		connInfo:      s.info,
		operations:    opList,
		argsInput:     ti,
		focused:       focusOperationList,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	m.updatePlaceholder()
	return m
}

func (m controlModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height / 2
		if listHeight < 6 {
			listHeight = 6
		}
		m.operations.SetSize(28, listHeight)

	case controlResultMsg:
		m.pending--
		m.stats = msg.stats
		return m.handleResult(msg)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry(fmt.Sprintf("Reconnected (%s)", msg.connInfo), false)
	}

	var cmd tea.Cmd
	if m.focused == focusArgsInput {
		m.argsInput, cmd = m.argsInput.Update(msg)
	}
	return m, cmd
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focused != focusArgsInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	switch m.focused {
	case focusOperationList:
		m.operations, cmd = m.operations.Update(msg)
		m.updatePlaceholder()
	case focusArgsInput:
		m.argsInput, cmd = m.argsInput.Update(msg)
	}
	return m, cmd
}

func (m *controlModel) cycleFocus(delta int) {
	const n = focusButton + 1
	m.focused = (m.focused + delta + n) % n
	if m.focused == focusArgsInput {
		m.argsInput.Focus()
	} else {
		m.argsInput.Blur()
	}
}

func (m *controlModel) selected() (operation, bool) {
	op, ok := m.operations.SelectedItem().(operation)
	return op, ok
}

func (m *controlModel) updatePlaceholder() {
	if op, ok := m.selected(); ok {
		m.argsInput.Placeholder = op.hint
	}
}

// submit validates the typed arguments and sends the selected operation
func (m controlModel) submit() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}
	op, ok := m.selected()
	if !ok {
		return m, nil
	}

	input := m.argsInput.Value()
	if strings.TrimSpace(input) == "" {
		input = op.hint
	}
	c, err := buildCommand(op.op, input)
	if err == nil {
		err = pinproto.Validate(c)
	}
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}

	m.pending++
	m.addLogEntry("> "+pinproto.FormatCommand(c), false)
	return m, sendCommand(m.ctx, m.s, c)
}

func (m controlModel) handleResult(msg controlResultMsg) (tea.Model, tea.Cmd) {
	if msg.err == nil {
		m.addLogEntry(fmt.Sprintf("%s (%v)", pinproto.FormatReply(msg.reply), msg.rtt.Round(time.Microsecond)), false)
		return m, nil
	}

	m.addLogEntry(fmt.Sprintf("%s: %v", msg.command.Opcode(), msg.err), true)
	if linkLost(msg.err) && !m.connectionLost {
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)
		return m, reconnectCmd(m.ctx, m.s)
	}
	return m, nil
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m controlModel) View() string {
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
	warningStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	focusedBoxStyle := boxStyle.BorderForeground(lipgloss.Color("12"))
	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)
	focusedButtonStyle := buttonStyle.Background(lipgloss.Color("10"))

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("ARDUINOCTL CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Tab=switch Enter=send q=quit", connStatus)))
	s.WriteString("\n\n")

	// Operation list | argument panel
	listStyle := boxStyle.Width(30)
	if m.focused == focusOperationList {
		listStyle = focusedBoxStyle.Width(30)
	}
	leftPanel := listStyle.Render(m.operations.View())

	var panel strings.Builder
	if op, ok := m.selected(); ok {
		panel.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Operation:"), valueStyle.Render(op.op.String())))
		if op.usage != "" {
			panel.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Arguments:"), headerStyle.Render(op.usage)))
		}
		panel.WriteString("\n")
	}
	if m.focused == focusArgsInput {
		panel.WriteString(m.argsInput.View())
	} else {
		val := m.argsInput.Value()
		if val == "" {
			val = m.argsInput.Placeholder
		}
		panel.WriteString(fmt.Sprintf("[%s]", val))
	}
	panel.WriteString("\n\n")
	if m.focused == focusButton {
		panel.WriteString(focusedButtonStyle.Render("[ Send ]"))
	} else {
		panel.WriteString(buttonStyle.Render("[ Send ]"))
	}
	if m.pending > 0 {
		panel.WriteString(warningStyle.Render(fmt.Sprintf("  %d in flight", m.pending)))
	}
	rightWidth := m.width - 30 - 6
	if rightWidth < 30 {
		rightWidth = 30
	}
	rightPanel := boxStyle.Width(rightWidth).Render(panel.String())

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, " ", rightPanel))
	s.WriteString("\n")

	// Statistics bar
	errors := valueStyle.Render("0")
	if m.stats.Errors() > 0 {
		errors = errorStyle.Render(fmt.Sprintf("%d", m.stats.Errors()))
	}
	s.WriteString(boxStyle.Render(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Exchanges:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Exchanges)),
		labelStyle.Render("Errors:"), errors,
		labelStyle.Render("Resyncs:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Resyncs)),
		labelStyle.Render("Avg RTT:"), valueStyle.Render(m.stats.AvgRTT().Round(time.Microsecond).String()),
	)))
	s.WriteString("\n")

	// Event log
	var logView strings.Builder
	logView.WriteString(labelStyle.Render("EVENTS"))
	logView.WriteString("\n")
	logHeight := 8
	start := len(m.eventLog) - logHeight
	if start < 0 {
		start = 0
	}
	if len(m.eventLog) == 0 {
		logView.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog[start:] {
		icon, style := "i", warningStyle
		if entry.isError {
			icon, style = "x", errorStyle
		}
		logView.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}
	s.WriteString(boxStyle.Render(logView.String()))
	s.WriteString("\n")

	return s.String()
}
