// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Messages
type tickMsg time.Time
type captureMsg struct {
	decoded decodedCapture
	stats   fujitsu.Statistics
}
type bridgeStatsMsg irdrive.BridgeStats
type linkDownMsg struct{ err error }

// monitorModel is the capture monitor TUI
type monitorModel struct {
	connInfo      string
	tolerance     int
	showAll       bool
	stats         fujitsu.Statistics
	bridge        *irdrive.BridgeStats
	lastState     *fujitsu.State
	lastStateAt   time.Time
	log           []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
	linkErr       error
}

func newMonitorModel(connInfo string, tolerance int, showAll bool) monitorModel {
	return monitorModel{
		connInfo:      connInfo,
		tolerance:     tolerance,
		showAll:       showAll,
		stats:         *fujitsu.NewStatistics(),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case bridgeStatsMsg:
		s := irdrive.BridgeStats(msg)
		m.bridge = &s

	case linkDownMsg:
		m.linkErr = msg.err
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("LINK DOWN: %v", msg.err), true)
		} else {
			m.addLogEntry("Link closed", true)
		}

	case captureMsg:
		m.stats = msg.stats
		m.applyCapture(msg.decoded)
	}

	return m, nil
}

func (m *monitorModel) applyCapture(d decodedCapture) {
	if d.err != nil {
		var de *fujitsu.DecodeError
		if errors.As(d.err, &de) {
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v (offset %d/%d)", de.Kind, de.Offset, len(d.capture.Samples)), true)
		} else {
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", d.err), true)
		}
		return
	}

	if d.hasState {
		s := d.state
		m.lastState = &s
		m.lastStateAt = d.capture.Timestamp
		m.addLogEntry("STATE "+s.String(), false)
	}
	if !m.showAll {
		return
	}
	for _, msg := range d.messages {
		m.addLogEntry(fujitsu.FormatMessage(msg), false)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

// Styles shared by the monitor and control views
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("MISTRAL - CAPTURE MONITOR"))
	s.WriteString("\n")
	mode := "States only"
	if m.showAll {
		mode = "All messages"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Tolerance: %d%% | Mode: %s | Press 'q' to quit",
		m.connInfo, m.tolerance, mode)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.statsView()))
	s.WriteString("\n\n")

	if m.lastState != nil {
		s.WriteString(labelStyle.Render("Remote State:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(stateView(*m.lastState) + "\n" +
			headerStyle.Render("received "+m.lastStateAt.Format("15:04:05"))))
		s.WriteString("\n\n")
	}

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.logView(m.height - 18)))

	return s.String()
}

func (m monitorModel) statsView() string {
	st := m.stats
	errorPercent := 0.0
	if st.TotalCaptures > 0 {
		errorPercent = float64(st.Errors()) * 100.0 / float64(st.TotalCaptures)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Captures:"), valueStyle.Render(fmt.Sprintf("%d", st.TotalCaptures)),
		labelStyle.Render("Decoded:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.DecodedCaptures, st.SuccessRate())),
		labelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Errors(), errorPercent)),
	)
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("State:"), valueStyle.Render(fmt.Sprintf("%d", st.StateMessages)),
		labelStyle.Render("Off:"), valueStyle.Render(fmt.Sprintf("%d", st.OffMessages)),
		labelStyle.Render("Util:"), valueStyle.Render(fmt.Sprintf("%d", st.UtilMessages)),
	)
	if st.Errors() > 0 {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("By kind:"), headerStyle.Render(fmt.Sprintf(
			"header %d, timing %d, marker %d, type %d, length %d, checksum %d, other %d",
			st.HeaderErrors, st.TimingErrors, st.MarkerErrors, st.MessageTypeErrors,
			st.FrameLengthErrors, st.ChecksumErrors, st.OtherErrors)))
	}
	if m.bridge != nil {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Bridge:"), headerStyle.Render(fmt.Sprintf(
			"%d packets, %d dropped captures, %d decode errors, %d invalid",
			m.bridge.PacketsReceived, m.bridge.CapturesDropped, m.bridge.DecodeErrors, m.bridge.InvalidPackets)))
	}

	rate := valueStyle.Render(fmt.Sprintf("%.2f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		rate = errorStyle.Render(fmt.Sprintf("%.2f err/s", st.ErrorRate))
	}
	fmt.Fprintf(&b, "%s %s   %s %s",
		labelStyle.Render("Capture Rate:"), valueStyle.Render(fmt.Sprintf("%.2f cap/s", st.CaptureRate)),
		labelStyle.Render("Error Rate:"), rate,
	)
	return b.String()
}

// stateView renders a thermostat state as labelled fields
func stateView(st fujitsu.State) string {
	if !st.Power {
		return fmt.Sprintf("%s %s", labelStyle.Render("Power:"), warningStyle.Render("off"))
	}
	return fmt.Sprintf("%s %s   %s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Power:"), valueStyle.Render("on"),
		labelStyle.Render("Mode:"), valueStyle.Render(st.Mode.String()),
		labelStyle.Render("Target:"), valueStyle.Render(st.Temperature.String()),
		labelStyle.Render("Fan:"), valueStyle.Render(st.Fan.String()),
		labelStyle.Render("Swing:"), valueStyle.Render(st.Swing.String()),
	)
}

// logView renders the newest log entries that fit in height lines
func (m monitorModel) logView(height int) string {
	if height < 5 {
		height = 5
	}
	if len(m.log) == 0 {
		return headerStyle.Render("  (no events yet)")
	}
	start := len(m.log) - height
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for _, entry := range m.log[start:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message))
		}
	}
	return b.String()
}
