// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

// ============================================================
// CBOR Test Helpers
// ============================================================

// buildCBORPayload creates a CBOR-encoded message: [msgType, payloadMap]
func buildCBORPayload(msgType uint8, payload map[int]interface{}) []byte {
	var msg interface{}
	if payload == nil {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), payload}
	}
	data, err := cbor.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// decodeAll feeds bytes through a decoder and returns every complete packet
func decodeAll(t *testing.T, d *Decoder, data []byte) []*Packet {
	t.Helper()
	var packets []*Packet
	for i, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("byte %d (0x%02X): %v", i, b, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC([]byte{}); crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x29B1, // Standard CRC-16-CCITT check value
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := CalculateCRC(tt.data); crc != tt.expected {
				t.Errorf("CalculateCRC() = 0x%04X, want 0x%04X", crc, tt.expected)
			}
		})
	}
}

// ============================================================
// CBOR Parsing Tests
// ============================================================

func TestParseCBORMessage_Empty(t *testing.T) {
	if _, _, err := ParseCBORMessage(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestParseCBORMessage_NilPayload(t *testing.T) {
	msgType, payload, err := ParseCBORMessage(buildCBORPayload(MsgPingRequest, nil))
	if err != nil {
		t.Fatalf("ParseCBORMessage() error: %v", err)
	}
	if msgType != MsgPingRequest {
		t.Errorf("msgType = 0x%02X, want 0x%02X", msgType, MsgPingRequest)
	}
	if payload != nil {
		t.Errorf("payload = %v, want nil", payload)
	}
}

func TestParseCBORMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data interface{}
	}{
		{"not an array", map[int]int{1: 2}},
		{"one element", []interface{}{uint64(1)}},
		{"string type", []interface{}{"x", nil}},
		{"type out of range", []interface{}{uint64(300), nil}},
		{"payload not a map", []interface{}{uint64(MsgCapture), "x"}},
		{"string keys", []interface{}{uint64(MsgCapture), map[string]int{"a": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := cbor.Marshal(tt.data)
			if err != nil {
				t.Fatal(err)
			}
			if _, _, err := ParseCBORMessage(data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGetMapHelpers(t *testing.T) {
	_, m, err := ParseCBORMessage(buildCBORPayload(MsgCapture, map[int]interface{}{
		0: uint64(42),
		1: int64(-7),
		2: []byte{1, 2},
		3: []uint64{1, 2, 3},
		4: []int64{5, -6},
	}))
	if err != nil {
		t.Fatal(err)
	}

	if v, ok := GetMapUint(m, 0); !ok || v != 42 {
		t.Errorf("GetMapUint(0) = %d, %v", v, ok)
	}
	if _, ok := GetMapUint(m, 1); ok {
		t.Error("GetMapUint should reject negative values")
	}
	if v, ok := GetMapInt(m, 1); !ok || v != -7 {
		t.Errorf("GetMapInt(1) = %d, %v", v, ok)
	}
	if v, ok := GetMapBytes(m, 2); !ok || !reflect.DeepEqual(v, []byte{1, 2}) {
		t.Errorf("GetMapBytes(2) = %v, %v", v, ok)
	}
	if v, ok := GetMapUintSlice(m, 3); !ok || !reflect.DeepEqual(v, []uint64{1, 2, 3}) {
		t.Errorf("GetMapUintSlice(3) = %v, %v", v, ok)
	}
	if _, ok := GetMapUintSlice(m, 4); ok {
		t.Error("GetMapUintSlice should reject negative elements")
	}
	if v, ok := GetMapIntSlice(m, 4); !ok || !reflect.DeepEqual(v, []int64{5, -6}) {
		t.Errorf("GetMapIntSlice(4) = %v, %v", v, ok)
	}
	if _, ok := GetMapUint(nil, 0); ok {
		t.Error("GetMapUint(nil) should fail")
	}
	if _, ok := GetMapIntSlice(m, 99); ok {
		t.Error("missing key should fail")
	}
}

// ============================================================
// Byte Stuffing Tests
// ============================================================

func TestStuffBytes(t *testing.T) {
	data := []byte{0x01, StartByte, EndByte, EscByte, 0x02}
	stuffed := stuffBytes(data)
	want := []byte{0x01, EscByte, StartByte ^ EscXor, EscByte, EndByte ^ EscXor, EscByte, EscByte ^ EscXor, 0x02}
	if !reflect.DeepEqual(stuffed, want) {
		t.Fatalf("stuffBytes() = % X, want % X", stuffed, want)
	}

	unstuffed, err := UnstuffBytes(stuffed)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(unstuffed, data) {
		t.Errorf("UnstuffBytes() = % X, want % X", unstuffed, data)
	}
}

func TestUnstuffBytes_TrailingEscape(t *testing.T) {
	if _, err := UnstuffBytes([]byte{0x01, EscByte}); err == nil {
		t.Error("expected error for trailing escape")
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodePacket_Framing(t *testing.T) {
	data, err := EncodePacket(MsgPingRequest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != StartByte || data[len(data)-1] != EndByte {
		t.Errorf("packet not framed: % X", data)
	}
	for i, b := range data[1 : len(data)-1] {
		if b == StartByte || b == EndByte {
			t.Errorf("unescaped framing byte at %d", i+1)
		}
	}
}

func TestEncodePacket_TooLarge(t *testing.T) {
	durations := make([]uint32, MaxPayloadSize)
	for i := range durations {
		durations[i] = 60000
	}
	if _, err := NewTransmitCommand(1, 38000, durations).Encode(); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestMustEncodePacket_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustEncodePacket(NewPacketWithPayload(MsgCapture, map[int]interface{}{0: make(chan int)}))
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	d.DecodeByte(0x00)
	d.Reset()
	if d.state != stateIdle || d.bufferIndex != 0 || len(d.GetRawBytes()) != 0 {
		t.Error("Reset() did not clear decoder state")
	}
}

func TestDecoder_GetRawBytes(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	d.DecodeByte(0x00)
	if raw := d.GetRawBytes(); !reflect.DeepEqual(raw, []byte{StartByte, 0x00}) {
		t.Errorf("GetRawBytes() = % X", raw)
	}
}

func TestDecoder_RoundTripCommands(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		check  func(t *testing.T, p *Packet)
	}{
		{
			name:   "transmit",
			packet: NewTransmitCommand(7, 38000, []uint32{3300, 1600, 420, 1200, 420, 420}),
			check: func(t *testing.T, p *Packet) {
				seq, carrier, durations, ok := p.TransmitDurations()
				if !ok || seq != 7 || carrier != 38000 {
					t.Fatalf("TransmitDurations() = %d, %d, %v, %v", seq, carrier, durations, ok)
				}
				if !reflect.DeepEqual(durations, []uint32{3300, 1600, 420, 1200, 420, 420}) {
					t.Errorf("durations = %v", durations)
				}
			},
		},
		{
			name:   "transmit done",
			packet: NewTransmitDone(9, 60660),
			check: func(t *testing.T, p *Packet) {
				seq, elapsed, ok := p.TransmitDone()
				if !ok || seq != 9 || elapsed != 60660 {
					t.Errorf("TransmitDone() = %d, %d, %v", seq, elapsed, ok)
				}
			},
		},
		{
			name:   "capture",
			packet: NewCapture([]int32{3300, -1600, 420, -8000}),
			check: func(t *testing.T, p *Packet) {
				samples, ok := p.CaptureSamples()
				if !ok || !reflect.DeepEqual(samples, []int32{3300, -1600, 420, -8000}) {
					t.Errorf("CaptureSamples() = %v, %v", samples, ok)
				}
			},
		},
		{
			name:   "ping response",
			packet: NewPingResponse(123456),
			check: func(t *testing.T, p *Packet) {
				if uptime, ok := p.Uptime(); !ok || uptime != 123456 {
					t.Errorf("Uptime() = %d, %v", uptime, ok)
				}
			},
		},
		{
			name:   "error",
			packet: NewError(3, ErrorBusy),
			check: func(t *testing.T, p *Packet) {
				seq, code, ok := p.BridgeError()
				if !ok || seq != 3 || code != ErrorBusy {
					t.Errorf("BridgeError() = %d, %v, %v", seq, code, ok)
				}
			},
		},
		{
			name:   "ping request",
			packet: NewPingRequest(),
			check: func(t *testing.T, p *Packet) {
				if p.PayloadMap() != nil {
					t.Errorf("PayloadMap() = %v, want nil", p.PayloadMap())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packets := decodeAll(t, NewDecoder(), MustEncodePacket(tt.packet))
			if len(packets) != 1 {
				t.Fatalf("decoded %d packets, want 1", len(packets))
			}
			p := packets[0]
			if p.Type() != tt.packet.Type() {
				t.Errorf("Type() = 0x%02X, want 0x%02X", p.Type(), tt.packet.Type())
			}
			if p.ParseError() != nil {
				t.Fatalf("ParseError() = %v", p.ParseError())
			}
			if p.Timestamp().IsZero() {
				t.Error("Timestamp() is zero")
			}
			if errs := ValidatePacket(p); len(errs) != 0 {
				t.Errorf("ValidatePacket() = %v", errs)
			}
			tt.check(t, p)
		})
	}
}

func TestDecoder_AccessorTypeMismatch(t *testing.T) {
	p := NewPingResponse(1)
	if _, ok := p.CaptureSamples(); ok {
		t.Error("CaptureSamples() on PING_RESPONSE should fail")
	}
	if _, _, ok := p.TransmitDone(); ok {
		t.Error("TransmitDone() on PING_RESPONSE should fail")
	}
	if _, _, ok := p.BridgeError(); ok {
		t.Error("BridgeError() on PING_RESPONSE should fail")
	}
}

func TestDecoder_BackToBackPackets(t *testing.T) {
	var stream []byte
	stream = append(stream, 0x00, 0x13) // line noise before the first START
	stream = append(stream, MustEncodePacket(NewTransmitDone(1, 100))...)
	stream = append(stream, MustEncodePacket(NewCapture([]int32{500, -500, 500}))...)

	packets := decodeAll(t, NewDecoder(), stream)
	if len(packets) != 2 {
		t.Fatalf("decoded %d packets, want 2", len(packets))
	}
	if packets[0].Type() != MsgTransmitDone || packets[1].Type() != MsgCapture {
		t.Errorf("types = 0x%02X, 0x%02X", packets[0].Type(), packets[1].Type())
	}
}

func TestDecoder_CRCMismatch(t *testing.T) {
	data := MustEncodePacket(NewTransmitDone(1, 100))
	// Flip a payload bit that is not a framing or escape byte
	for i := 3; i < len(data)-3; i++ {
		if data[i] != EscByte && data[i-1] != EscByte && data[i]^0x01 != EscByte {
			data[i] ^= 0x01
			break
		}
	}

	d := NewDecoder()
	var gotErr error
	for _, b := range data {
		if _, err := d.DecodeByte(b); err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrCRCMismatch) {
		t.Errorf("error = %v, want ErrCRCMismatch", gotErr)
	}
}

func TestDecoder_StartResyncs(t *testing.T) {
	good := MustEncodePacket(NewPingResponse(5))
	// A truncated packet followed by a complete one
	stream := append(append([]byte{}, good[:4]...), good...)

	packets := decodeAll(t, NewDecoder(), stream)
	if len(packets) != 1 {
		t.Fatalf("decoded %d packets, want 1", len(packets))
	}
}

func TestDecoder_LengthTooLarge(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	d.DecodeByte(0xFF)
	_, err := d.DecodeByte(0xFF)
	if err == nil || !strings.Contains(err.Error(), "invalid length") {
		t.Errorf("error = %v, want invalid length", err)
	}
}

func TestDecoder_UnexpectedEnd(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	d.DecodeByte(0x00)
	if _, err := d.DecodeByte(EndByte); err == nil {
		t.Error("expected error for END in length state")
	}
	// END while idle is ignored
	if _, err := d.DecodeByte(EndByte); err != nil {
		t.Errorf("END while idle: %v", err)
	}
}

func TestDecodePacket_Incomplete(t *testing.T) {
	data := MustEncodePacket(NewPingRequest())
	if _, err := DecodePacket(data[:len(data)-1]); err == nil {
		t.Error("expected error for incomplete packet")
	}
	if _, err := DecodePacket(data); err != nil {
		t.Errorf("DecodePacket() error: %v", err)
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidatePacket_Transmit(t *testing.T) {
	tests := []struct {
		name    string
		packet  *Packet
		anomaly AnomalyType
	}{
		{"empty durations", NewTransmitCommand(1, 38000, nil), AnomalyEmptyFrame},
		{"carrier too low", NewTransmitCommand(1, 1000, []uint32{500}), AnomalyInvalidValue},
		{"zero mark", NewTransmitCommand(1, 38000, []uint32{0, 500}), AnomalyInvalidValue},
		{"duration too long", NewTransmitCommand(1, 38000, []uint32{500, MaxDurationUs + 1}), AnomalyInvalidValue},
		{"missing keys", NewPacketWithPayload(MsgTransmit, map[int]interface{}{}), AnomalyMissingField},
		{"unknown type", NewPacketWithPayload(0x55, nil), AnomalyUnknownType},
		{"capture starts with space", NewCapture([]int32{-500, 500}), AnomalyInvalidValue},
		{"capture empty", NewCapture(nil), AnomalyEmptyFrame},
		{"capture sample too long", NewCapture([]int32{500, -(MaxDurationUs + 1)}), AnomalyInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidatePacket(tt.packet)
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			if errs[0].Type != tt.anomaly {
				t.Errorf("anomaly = %d, want %d (%s)", errs[0].Type, tt.anomaly, errs[0].Error())
			}
		})
	}
}

func TestValidatePacket_CaptureSampleBeyondInt32(t *testing.T) {
	huge := int64(1)<<32 + 500
	data := MustEncodePacket(NewPacketWithPayload(MsgCapture, map[int]interface{}{
		KeyCaptureSamples: []interface{}{huge, int64(-500), int64(500)},
	}))
	packets := decodeAll(t, NewDecoder(), data)
	if len(packets) != 1 {
		t.Fatalf("decoded %d packets, want 1", len(packets))
	}

	errs := ValidatePacket(packets[0])
	if len(errs) == 0 {
		t.Fatal("sample of 2^32+500 us validated")
	}
	if errs[0].Type != AnomalyInvalidValue {
		t.Errorf("anomaly = %d, want AnomalyInvalidValue (%s)", errs[0].Type, errs[0].Error())
	}
	if samples, ok := packets[0].CaptureSamples(); ok {
		t.Errorf("CaptureSamples() = %v, want failure instead of truncation", samples)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatMessageType(t *testing.T) {
	tests := map[uint8]string{
		MsgTransmit:     "TRANSMIT",
		MsgPingRequest:  "PING_REQUEST",
		MsgTransmitDone: "TRANSMIT_DONE",
		MsgCapture:      "CAPTURE",
		MsgPingResponse: "PING_RESPONSE",
		MsgError:        "ERROR",
		0x99:            "UNKNOWN",
	}
	for msgType, want := range tests {
		if got := FormatMessageType(msgType); got != want {
			t.Errorf("FormatMessageType(0x%02X) = %q, want %q", msgType, got, want)
		}
	}
}

func TestFormatPacket(t *testing.T) {
	tests := []struct {
		packet *Packet
		want   string
	}{
		{NewTransmitCommand(4, 38000, []uint32{3300, 1600}), "Seq: 4, Carrier: 38000 Hz, Durations: 2 (4.9ms on air)"},
		{NewError(2, ErrorHardware), "Code: HARDWARE (3)"},
		{NewPingResponse(1500), "Uptime: 1.5s"},
		{NewCapture([]int32{1, -1, 1}), "Samples: 3 (2 marks)"},
		{NewPingRequest(), "(no payload)"},
	}
	for _, tt := range tests {
		got := FormatPacket(tt.packet)
		if !strings.Contains(got, tt.want) {
			t.Errorf("FormatPacket() = %q, want substring %q", got, tt.want)
		}
	}
}
