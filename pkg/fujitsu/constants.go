// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package fujitsu implements the infrared signal codec for Fujitsu air
// conditioners driven by the legacy AR-DB1 remote.
//
// A thermostat State maps to one or more protocol messages. Each message is
// a short byte string (sent LSB first) framed by a header and a trailer and
// modulated on a 38 kHz carrier. This package converts between State,
// Message, PulseFrame (what the transmitter emits) and RawCapture (what the
// receiver hears).
package fujitsu

// Carrier frequency in Hz
const CarrierFrequency = 38000

// Pulse timings in microseconds
const (
	HeaderMark  = 3300
	HeaderSpace = 1600

	BitMark   = 420
	OneSpace  = 1200
	ZeroSpace = 420

	TrailerMark  = 420
	TrailerSpace = 8000
)

// DefaultTolerancePercent is the timing tolerance applied by NewDecoder(0).
const DefaultTolerancePercent = 10

// Common message prefix, shared by every message type
var commonMarker = [5]byte{0x14, 0x63, 0x00, 0x10, 0x10}

// Message layout
const (
	commonLength       = 6 // marker + type byte
	messageTypeByte    = 5
	stateMessageLength = 15
	utilMessageLength  = 6

	stateHeaderByte0 = 0x08
	stateHeaderByte1 = 0x30

	// Checksum covers bytes 7..13 of a state message
	checksumStart = 7
)

// Nibble positions inside a state message.
// Bits are reversed on the wire, so nibbles are ordered 1, 0, 3, 2, ...
const (
	temperatureNibble = 16
	powerOnNibble     = 17
	modeNibble        = 19
	fanNibble         = 21
)

// Supported target temperature range in whole degrees Celsius
const (
	MinCelsius = 16
	MaxCelsius = 30
)

// MessageType identifies a protocol message (byte 5 of every message)
type MessageType uint8

// Message type values
const (
	MsgOff              MessageType = 0x02
	MsgAirflowDirection MessageType = 0x6C
	MsgSwingLouver      MessageType = 0x6D
	MsgState            MessageType = 0xFC
)

func (t MessageType) String() string {
	return FormatMessageType(t)
}

// Length returns the byte length of a message of this type, or 0 if unknown
func (t MessageType) Length() int {
	switch t {
	case MsgState:
		return stateMessageLength
	case MsgOff, MsgAirflowDirection, MsgSwingLouver:
		return utilMessageLength
	default:
		return 0
	}
}
