// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package fujitsu

import (
	"fmt"
	"strings"
)

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(t MessageType) string {
	switch t {
	case MsgState:
		return "STATE"
	case MsgOff:
		return "OFF"
	case MsgAirflowDirection:
		return "AIRFLOW_DIRECTION"
	case MsgSwingLouver:
		return "SWING_LOUVER"
	default:
		return "UNKNOWN"
	}
}

// FormatMessage formats a message into a one-line human-readable string
func FormatMessage(m Message) string {
	name := FormatMessageType(m.Type)
	if m.Type != MsgState {
		return fmt.Sprintf("%s (0x%02X)", name, uint8(m.Type))
	}
	power := ""
	if m.PowerOn {
		power = " power-on"
	}
	return fmt.Sprintf("%s (0x%02X) mode=%s target=%s fan=%s%s", name, uint8(m.Type), m.Mode, m.Temperature, m.Fan, power)
}

// FormatBytes formats message bytes as a hex dump, 16 bytes per line
func FormatBytes(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n")
		} else if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// FormatFrame summarises a pulse frame
func FormatFrame(f PulseFrame) string {
	return fmt.Sprintf("%d pulses @ %d Hz, %s on air", len(f.Pulses), f.CarrierHz, f.Duration())
}
