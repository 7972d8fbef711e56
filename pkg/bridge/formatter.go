// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"time"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	msgType := FormatMessageType(p.Type())

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, msgType, p.Type(), p.length)
	result += FormatPayloadMap(p.Type(), p.PayloadMap())

	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	// Commands (0x20-0x2F)
	case MsgTransmit:
		return "TRANSMIT"
	case MsgPingRequest:
		return "PING_REQUEST"

	// Reports (0x30-0x3F)
	case MsgTransmitDone:
		return "TRANSMIT_DONE"
	case MsgCapture:
		return "CAPTURE"
	case MsgPingResponse:
		return "PING_RESPONSE"

	// Errors (0xE0-0xEF)
	case MsgError:
		return "ERROR"

	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap formats the CBOR payload map based on message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgPingRequest:
		return "  (no payload)\n"

	case MsgPingResponse:
		uptime, _ := GetMapUint(m, KeyPingUptime)
		return fmt.Sprintf("  Uptime: %s\n", time.Duration(uptime)*time.Millisecond)

	case MsgTransmit:
		seq, _ := GetMapUint(m, KeyTransmitSeq)
		carrier, _ := GetMapUint(m, KeyTransmitCarrier)
		durations, _ := GetMapUintSlice(m, KeyTransmitDurations)
		var total uint64
		for _, d := range durations {
			total += d
		}
		return fmt.Sprintf("  Seq: %d, Carrier: %d Hz, Durations: %d (%s on air)\n",
			seq, carrier, len(durations), time.Duration(total)*time.Microsecond)

	case MsgTransmitDone:
		seq, _ := GetMapUint(m, KeyDoneSeq)
		elapsed, _ := GetMapUint(m, KeyDoneElapsed)
		return fmt.Sprintf("  Seq: %d, Elapsed: %s\n", seq, time.Duration(elapsed)*time.Microsecond)

	case MsgCapture:
		samples, _ := GetMapIntSlice(m, KeyCaptureSamples)
		marks := 0
		for _, s := range samples {
			if s > 0 {
				marks++
			}
		}
		return fmt.Sprintf("  Samples: %d (%d marks)\n", len(samples), marks)

	case MsgError:
		seq, _ := GetMapUint(m, KeyErrorSeq)
		code, _ := GetMapInt(m, KeyErrorCode)
		return fmt.Sprintf("  Seq: %d, Code: %s (%d)\n", seq, ErrorCode(code), code)

	default:
		return fmt.Sprintf("  Payload: %v\n", m)
	}
}
