// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package bridge implements the serial protocol spoken between mistral and
// an infrared bridge microcontroller.
//
// The bridge owns the IR LED and the demodulating receiver. The host sends
// pulse frames to transmit and receives raw captures. Packets are framed with
// start/end bytes, byte-stuffed, protected by CRC-16-CCITT and carry a CBOR
// message [msg_type, payload_map].
package bridge

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	LengthSize     = 2
	CRCSize        = 2
	MaxPayloadSize = 2048
	MaxPacketSize  = LengthSize + MaxPayloadSize + CRCSize
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Message types - Commands (Host → Bridge) 0x20-0x2F
const (
	MsgTransmit    = 0x20
	MsgPingRequest = 0x2F
)

// Message types - Reports (Bridge → Host) 0x30-0x3F
const (
	MsgTransmitDone = 0x30
	MsgCapture      = 0x31
	MsgPingResponse = 0x3F
)

// Message types - Errors (Bridge → Host) 0xE0-0xEF
const (
	MsgError = 0xE0
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength1
	stateLength2
	statePayload
	stateCRC1
	stateCRC2
)

// ErrorCode represents error codes carried in ERROR messages
type ErrorCode int

// Error code values
const (
	ErrorNone         ErrorCode = 0x00
	ErrorBusy         ErrorCode = 0x01
	ErrorInvalidFrame ErrorCode = 0x02
	ErrorHardware     ErrorCode = 0x03
	ErrorOverflow     ErrorCode = 0x04
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "NONE"
	case ErrorBusy:
		return "BUSY"
	case ErrorInvalidFrame:
		return "INVALID_FRAME"
	case ErrorHardware:
		return "HARDWARE"
	case ErrorOverflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}
