// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/mistral/pkg/climate"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	pingInterval = 5 * time.Second
	pingTimeout  = 2 * time.Second
)

// Focus states
const (
	focusModeList = iota
	focusTempInput
	focusFan
	focusSwing
	focusApplyButton
	focusPowerButton
	focusCount
)

var modeDescriptions = map[fujitsu.Mode]string{
	fujitsu.ModeAuto: "unit picks heat or cool",
	fujitsu.ModeCool: "cool to target",
	fujitsu.ModeDry:  "dehumidify",
	fujitsu.ModeFan:  "fan only",
	fujitsu.ModeHeat: "heat to target",
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// modeItem is a mode in the mode list
type modeItem fujitsu.Mode

// Implement list.Item interface
func (i modeItem) Title() string       { return strings.ToUpper(fujitsu.Mode(i).String()) }
func (i modeItem) Description() string { return modeDescriptions[fujitsu.Mode(i)] }
func (i modeItem) FilterValue() string { return fujitsu.Mode(i).String() }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctx      context.Context
	ctrl     *climate.Controller
	connMgr  *connectionManager
	connInfo string
	caps     climate.Capabilities

	// Controller snapshot, refreshed on every tick and change
	state       fujitsu.State
	status      climate.Status
	ctrlStats   climate.Stats
	bridgeStats irdrive.BridgeStats

	// Draft settings
	modeList     list.Model
	tempInput    textinput.Model
	fan          fujitsu.FanSpeed
	swing        fujitsu.Swing
	focusedField int
	applying     bool

	log           []logEntry
	maxLogEntries int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool

	// Ping state
	lastPingTime    time.Time
	bridgeUptime    time.Duration
	hasBridgeUptime bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type stateChangedMsg climate.Change

type applyResultMsg struct {
	requested fujitsu.State
	err       error
}

type pongMsg struct {
	uptime time.Duration
	err    error
}

type connectionLostMsg struct{ err error }

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newControlModel(ctx context.Context, ctrl *climate.Controller, connMgr *connectionManager, connInfo string) controlModel {
	caps := ctrl.Capabilities()

	ti := textinput.New()
	ti.Placeholder = formatCelsius(fujitsu.DefaultTemperature)
	ti.CharLimit = 4
	ti.Width = 6

	items := make([]list.Item, 0, len(caps.Modes))
	for _, mode := range caps.Modes {
		items = append(items, modeItem(mode))
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	modeList := list.New(items, delegate, 24, 12)
	modeList.Title = "Mode"
	modeList.SetShowStatusBar(false)
	modeList.SetShowHelp(false)
	modeList.SetFilteringEnabled(false)

	m := controlModel{
		ctx:           ctx,
		ctrl:          ctrl,
		connMgr:       connMgr,
		connInfo:      connInfo,
		caps:          caps,
		state:         ctrl.State(),
		status:        ctrl.Status(),
		modeList:      modeList,
		tempInput:     ti,
		focusedField:  focusModeList,
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	m.loadDraft(m.state)
	m.addLogEntry(fmt.Sprintf("Loaded state: %s", m.state), false)
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(controlTickCmd(), m.pingCmd())
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.modeList, _ = m.modeList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.refresh()
		cmds := []tea.Cmd{controlTickCmd()}
		if !m.connectionLost && time.Since(m.lastPingTime) >= pingInterval {
			m.lastPingTime = time.Now()
			cmds = append(cmds, m.pingCmd())
		}
		return m, tea.Batch(cmds...)

	case stateChangedMsg:
		m.refresh()
		m.loadDraft(msg.State)
		if msg.Source == climate.SourceReceive {
			m.addLogEntry(fmt.Sprintf("Remote changed state: %s", msg.State), false)
		} else {
			m.addLogEntry(fmt.Sprintf("Applied: %s", msg.State), false)
		}

	case applyResultMsg:
		m.applying = false
		m.refresh()
		if msg.err != nil {
			m.addLogEntry(describeApplyError(msg.err), true)
		} else if msg.requested.Normalize() == m.state {
			m.addLogEntry("State already current", false)
		}

	case pongMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Ping failed: %v", msg.err), true)
		} else {
			m.bridgeUptime = msg.uptime
			m.hasBridgeUptime = true
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.hasBridgeUptime = false
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
		m.lastPingTime = time.Now()
		return m, m.pingCmd()
	}

	var cmd tea.Cmd
	if m.focusedField == focusTempInput {
		m.tempInput, cmd = m.tempInput.Update(msg)
	}
	return m, cmd
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.focusedField == focusTempInput && msg.String() == "q" {
			break
		}
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		return m.handleEnter()

	case "esc":
		m.loadDraft(m.state)
		m.addLogEntry("Draft reset to current state", false)
		return m, nil
	}

	switch m.focusedField {
	case focusModeList:
		var cmd tea.Cmd
		m.modeList, cmd = m.modeList.Update(msg)
		return m, cmd

	case focusTempInput:
		switch msg.String() {
		case "up", "+":
			m.stepTemperature(1)
			return m, nil
		case "down", "-":
			m.stepTemperature(-1)
			return m, nil
		}
		var cmd tea.Cmd
		m.tempInput, cmd = m.tempInput.Update(msg)
		return m, cmd

	case focusFan:
		switch msg.String() {
		case "right", "l", " ":
			m.fan = cycle(m.caps.FanSpeeds, m.fan, 1)
		case "left", "h":
			m.fan = cycle(m.caps.FanSpeeds, m.fan, -1)
		}

	case focusSwing:
		switch msg.String() {
		case " ", "left", "right", "h", "l":
			if m.caps.SupportsSwing {
				if m.swing == fujitsu.SwingOff {
					m.swing = fujitsu.SwingVertical
				} else {
					m.swing = fujitsu.SwingOff
				}
			}
		}
	}
	return m, nil
}

func (m *controlModel) cycleFocus(delta int) {
	m.focusedField = (m.focusedField + delta + focusCount) % focusCount

	// Skip swing if the unit has none
	if m.focusedField == focusSwing && !m.caps.SupportsSwing {
		m.focusedField = (m.focusedField + delta + focusCount) % focusCount
	}

	if m.focusedField == focusTempInput {
		m.tempInput.Focus()
	} else {
		m.tempInput.Blur()
	}
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}
	if m.applying {
		m.addLogEntry("Transmission in progress", true)
		return m, nil
	}

	if m.focusedField == focusPowerButton && m.state.Power {
		return m, m.applyCmd(fujitsu.DefaultState())
	}

	draft, err := m.draftState()
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	return m, m.applyCmd(draft)
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// applyCmd runs Apply off the UI goroutine; it blocks until the bridge confirms
func (m *controlModel) applyCmd(s fujitsu.State) tea.Cmd {
	m.applying = true
	m.addLogEntry(fmt.Sprintf("Sending: %s", s), false)
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return applyResultMsg{requested: s, err: ctrl.Apply(ctx, s)}
	}
}

func (m controlModel) pingCmd() tea.Cmd {
	ctx, cm := m.ctx, m.connMgr
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		uptime, err := cm.ping(ctx)
		return pongMsg{uptime: uptime, err: err}
	}
}

func describeApplyError(err error) string {
	var invalid *climate.InvalidStateError
	var timeout *climate.TransmissionTimeoutError
	switch {
	case errors.As(err, &invalid):
		return fmt.Sprintf("Rejected: %s %v %s", invalid.Field, invalid.Value, invalid.Reason)
	case errors.As(err, &timeout):
		return fmt.Sprintf("Bridge did not confirm within %s", timeout.Timeout)
	case errors.Is(err, climate.ErrBusy):
		return "Controller busy, try again"
	default:
		return fmt.Sprintf("Apply failed: %v", err)
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

// refresh copies the controller snapshot into the model
func (m *controlModel) refresh() {
	m.state = m.ctrl.State()
	m.status = m.ctrl.Status()
	m.ctrlStats = m.ctrl.Stats()
	m.bridgeStats = m.connMgr.stats()
}

// loadDraft sets the draft fields from s. A powered-off state keeps its
// defaults so the next apply powers on with them.
func (m *controlModel) loadDraft(s fujitsu.State) {
	if i := slices.Index(m.caps.Modes, s.Mode); i >= 0 {
		m.modeList.Select(i)
	}
	m.tempInput.SetValue(formatCelsius(s.Temperature))
	m.fan = s.Fan
	m.swing = s.Swing
}

// draftState builds the powered-on state described by the draft fields
func (m controlModel) draftState() (fujitsu.State, error) {
	item, ok := m.modeList.SelectedItem().(modeItem)
	if !ok {
		return fujitsu.State{}, fmt.Errorf("no mode selected")
	}

	value := m.tempInput.Value()
	if value == "" {
		value = m.tempInput.Placeholder
	}
	celsius, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fujitsu.State{}, fmt.Errorf("invalid temperature: %s", value)
	}

	return fujitsu.State{
		Power:       true,
		Mode:        fujitsu.Mode(item),
		Temperature: fujitsu.Celsius(celsius),
		Fan:         m.fan,
		Swing:       m.swing,
	}, nil
}

// stepTemperature moves the draft target by steps, clamped to the table
func (m *controlModel) stepTemperature(steps int) {
	current := fujitsu.DefaultTemperature
	if celsius, err := strconv.ParseFloat(m.tempInput.Value(), 64); err == nil {
		current = fujitsu.Celsius(celsius)
	}
	next := current + fujitsu.Temperature(steps)*m.caps.TemperatureStep
	next = max(m.caps.MinTemperature, min(m.caps.MaxTemperature, next))
	m.tempInput.SetValue(formatCelsius(next))
}

// formatCelsius formats t as a bare number of degrees for editing
func formatCelsius(t fujitsu.Temperature) string {
	return strconv.FormatFloat(t.Celsius(), 'f', -1, 64)
}

// cycle returns the value delta positions after v in values
func cycle[T comparable](values []T, v T, delta int) T {
	if len(values) == 0 {
		return v
	}
	i := slices.Index(values, v)
	if i < 0 {
		return values[0]
	}
	return values[(i+delta+len(values))%len(values)]
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m *controlModel) updateListSize() {
	h := m.height - 16
	if h < 8 {
		h = 8
	}
	m.modeList.SetSize(24, h)
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("12")).
			Padding(0, 2)

	focusedButtonStyle = buttonStyle.
				Background(lipgloss.Color("10"))

	focusedFieldStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("10")).
				Bold(true)
)

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("MISTRAL CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s | q=quit Tab=switch Enter=apply Esc=reset",
		m.ctrl.Name(), connStatus)))
	s.WriteString("\n")
	if m.hasBridgeUptime {
		s.WriteString(fmt.Sprintf(" %s %s",
			labelStyle.Render("Bridge Uptime:"),
			valueStyle.Render(formatUptime(m.bridgeUptime))))
	}
	s.WriteString("\n\n")

	// Layout: left panel (modes) | right panel (control)
	leftWidth := 26
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 40 {
		rightWidth = 40
	}

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusModeList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	modePanel := listStyle.Render(m.modeList.View())
	controlPanel := boxStyle.Width(rightWidth).Render(m.renderControlPanel())

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, modePanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog())
	return s.String()
}

func (m controlModel) renderControlPanel() string {
	var s strings.Builder

	s.WriteString(labelStyle.Render("CURRENT"))
	s.WriteString("\n")
	s.WriteString(stateView(m.state))
	s.WriteString("\n")
	status := m.status.String()
	if m.status != climate.StatusIdle {
		status = warningStyle.Render(status)
	} else {
		status = valueStyle.Render(status)
	}
	s.WriteString(fmt.Sprintf("%s %s\n\n", labelStyle.Render("Status:"), status))

	s.WriteString(labelStyle.Render("SETTINGS"))
	s.WriteString("\n")

	// Target temperature
	s.WriteString(m.fieldLabel(focusTempInput, "Target °C: "))
	if m.focusedField == focusTempInput {
		s.WriteString(m.tempInput.View())
	} else {
		val := m.tempInput.Value()
		if val == "" {
			val = m.tempInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  (%s-%s)", m.caps.MinTemperature, m.caps.MaxTemperature)))
	s.WriteString("\n")

	// Fan
	s.WriteString(m.fieldLabel(focusFan, "Fan:       "))
	s.WriteString(fmt.Sprintf("< %s >", m.fan))
	s.WriteString("\n")

	// Swing
	if m.caps.SupportsSwing {
		box := "[ ]"
		if m.swing != fujitsu.SwingOff {
			box = "[x]"
		}
		s.WriteString(m.fieldLabel(focusSwing, "Swing:     "))
		s.WriteString(box)
		s.WriteString("\n")
	}
	s.WriteString("\n")

	// Buttons
	applyText := "[ Apply ]"
	if m.applying {
		applyText = "[ Sending... ]"
	}
	powerText := "[ Turn Off ]"
	if !m.state.Power {
		powerText = "[ Turn On ]"
	}
	s.WriteString(m.button(focusApplyButton, applyText))
	s.WriteString("  ")
	s.WriteString(m.button(focusPowerButton, powerText))

	return s.String()
}

func (m controlModel) fieldLabel(field int, text string) string {
	if m.focusedField == field {
		return focusedFieldStyle.Render("> " + text)
	}
	return labelStyle.Render("  " + text)
}

func (m controlModel) button(field int, text string) string {
	if m.focusedField == field {
		return focusedButtonStyle.Render(text)
	}
	return buttonStyle.Render(text)
}

func (m controlModel) renderStatisticsBar() string {
	st := m.ctrlStats
	failures := st.Timeouts + st.Failures
	failureText := valueStyle.Render("0")
	if failures > 0 {
		failureText = errorStyle.Render(fmt.Sprintf("%d (%d timeouts)", failures, st.Timeouts))
	}

	content := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s   %s %s\n%s %s",
		labelStyle.Render("Applies:"), valueStyle.Render(fmt.Sprintf("%d", st.Applies)),
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", st.Transmissions)),
		labelStyle.Render("Rejected:"), valueStyle.Render(fmt.Sprintf("%d", st.Rejected)),
		labelStyle.Render("Failed:"), failureText,
		labelStyle.Render("Received:"), valueStyle.Render(fmt.Sprintf("%d (%d dropped)", st.Received, st.Dropped)),
		labelStyle.Render("Bridge:"), headerStyle.Render(fmt.Sprintf("%d frames sent, %d confirmed, %d failed, %d captures",
			m.bridgeStats.FramesSent, m.bridgeStats.FramesConfirmed, m.bridgeStats.FramesFailed, m.bridgeStats.Captures)),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := m.height - 28
	if logHeight < 5 {
		logHeight = 5
	}
	start := len(m.log) - logHeight
	if start < 0 {
		start = 0
	}

	if len(m.log) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.log[start:] {
			timestamp := entry.timestamp.Format("15:04:05")
			style, icon := warningStyle, "ℹ"
			if entry.isError {
				style, icon = errorStyle, "✗"
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}
