// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package bridge

// Command builder functions create Packet structs ready for encoding.
// These are convenience wrappers around NewPacketWithPayload that keep
// payload keys consistent between host and bridge.

// Payload keys for TRANSMIT
const (
	KeyTransmitSeq       = 0
	KeyTransmitCarrier   = 1
	KeyTransmitDurations = 2
)

// Payload keys for TRANSMIT_DONE
const (
	KeyDoneSeq     = 0
	KeyDoneElapsed = 1
)

// Payload keys for CAPTURE, PING_RESPONSE and ERROR
const (
	KeyCaptureSamples = 0
	KeyPingUptime     = 0
	KeyErrorSeq       = 0
	KeyErrorCode      = 1
)

// NewTransmitCommand creates a TRANSMIT packet (0x20).
// Durations alternate mark, space, mark, ... in microseconds starting with a mark.
// The bridge answers with TRANSMIT_DONE or ERROR carrying the same sequence number.
func NewTransmitCommand(seq uint32, carrierHz uint32, durations []uint32) *Packet {
	d := make([]uint64, len(durations))
	for i, v := range durations {
		d[i] = uint64(v)
	}
	payload := map[int]interface{}{
		KeyTransmitSeq:       uint64(seq),
		KeyTransmitCarrier:   uint64(carrierHz),
		KeyTransmitDurations: d,
	}
	return NewPacketWithPayload(MsgTransmit, payload)
}

// NewPingRequest creates a PING_REQUEST packet (0x2F).
// The bridge responds with PING_RESPONSE containing uptime.
func NewPingRequest() *Packet {
	return NewPacketWithPayload(MsgPingRequest, nil)
}

// NewTransmitDone creates a TRANSMIT_DONE packet (0x30)
func NewTransmitDone(seq uint32, elapsedUs uint64) *Packet {
	payload := map[int]interface{}{
		KeyDoneSeq:     uint64(seq),
		KeyDoneElapsed: elapsedUs,
	}
	return NewPacketWithPayload(MsgTransmitDone, payload)
}

// NewCapture creates a CAPTURE packet (0x31).
// Samples are signed microsecond durations: positive for marks, negative for spaces.
func NewCapture(samples []int32) *Packet {
	s := make([]int64, len(samples))
	for i, v := range samples {
		s[i] = int64(v)
	}
	return NewPacketWithPayload(MsgCapture, map[int]interface{}{KeyCaptureSamples: s})
}

// NewPingResponse creates a PING_RESPONSE packet (0x3F)
func NewPingResponse(uptimeMs uint64) *Packet {
	return NewPacketWithPayload(MsgPingResponse, map[int]interface{}{KeyPingUptime: uptimeMs})
}

// NewError creates an ERROR packet (0xE0)
func NewError(seq uint32, code ErrorCode) *Packet {
	payload := map[int]interface{}{
		KeyErrorSeq:  uint64(seq),
		KeyErrorCode: int64(code),
	}
	return NewPacketWithPayload(MsgError, payload)
}

// Accessors for decoded report packets. Each returns false when the packet
// is not of the expected type or a required key is missing.

// TransmitDurations returns the sequence number, carrier and durations of a TRANSMIT packet
func (p *Packet) TransmitDurations() (seq uint32, carrierHz uint32, durations []uint32, ok bool) {
	if p.Type() != MsgTransmit {
		return 0, 0, nil, false
	}
	m := p.PayloadMap()
	s, ok1 := GetMapUint(m, KeyTransmitSeq)
	c, ok2 := GetMapUint(m, KeyTransmitCarrier)
	d, ok3 := GetMapUintSlice(m, KeyTransmitDurations)
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, nil, false
	}
	durations = make([]uint32, len(d))
	for i, v := range d {
		durations[i] = uint32(v)
	}
	return uint32(s), uint32(c), durations, true
}

// TransmitDone returns the sequence number and elapsed microseconds of a TRANSMIT_DONE packet
func (p *Packet) TransmitDone() (seq uint32, elapsedUs uint64, ok bool) {
	if p.Type() != MsgTransmitDone {
		return 0, 0, false
	}
	s, ok := GetMapUint(p.PayloadMap(), KeyDoneSeq)
	if !ok {
		return 0, 0, false
	}
	elapsedUs, _ = GetMapUint(p.PayloadMap(), KeyDoneElapsed)
	return uint32(s), elapsedUs, true
}

// CaptureSamples returns the samples of a CAPTURE packet
func (p *Packet) CaptureSamples() ([]int32, bool) {
	if p.Type() != MsgCapture {
		return nil, false
	}
	s, ok := GetMapIntSlice(p.PayloadMap(), KeyCaptureSamples)
	if !ok {
		return nil, false
	}
	samples := make([]int32, len(s))
	for i, v := range s {
		if v > MaxDurationUs || v < -MaxDurationUs {
			return nil, false
		}
		samples[i] = int32(v)
	}
	return samples, true
}

// Uptime returns the uptime in milliseconds of a PING_RESPONSE packet
func (p *Packet) Uptime() (uint64, bool) {
	if p.Type() != MsgPingResponse {
		return 0, false
	}
	return GetMapUint(p.PayloadMap(), KeyPingUptime)
}

// BridgeError returns the sequence number and code of an ERROR packet.
// A sequence number of zero means the error is not tied to a transmission.
func (p *Packet) BridgeError() (seq uint32, code ErrorCode, ok bool) {
	if p.Type() != MsgError {
		return 0, 0, false
	}
	c, ok := GetMapInt(p.PayloadMap(), KeyErrorCode)
	if !ok {
		return 0, 0, false
	}
	s, _ := GetMapUint(p.PayloadMap(), KeyErrorSeq)
	return uint32(s), ErrorCode(c), true
}
