// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package fujitsu

import "bytes"

// Message is a single protocol message.
// Temperature, PowerOn, Mode and Fan are only meaningful for MsgState.
type Message struct {
	Type        MessageType
	Temperature Temperature
	PowerOn     bool // unit was off and should switch on
	Mode        Mode
	Fan         FanSpeed
}

// NewStateMessage creates a STATE message carrying the settings of s
func NewStateMessage(s State, powerOn bool) Message {
	return Message{
		Type:        MsgState,
		Temperature: s.Temperature,
		PowerOn:     powerOn,
		Mode:        s.Mode,
		Fan:         s.Fan,
	}
}

// NewOffMessage creates an OFF message
func NewOffMessage() Message {
	return Message{Type: MsgOff}
}

// NewSwingLouverMessage creates a SWING_LOUVER message (toggles swing on the unit)
func NewSwingLouverMessage() Message {
	return Message{Type: MsgSwingLouver}
}

// Bytes returns the wire bytes of the message (before bit reversal)
func (m Message) Bytes() ([]byte, error) {
	length := m.Type.Length()
	if length == 0 {
		return nil, &UnsupportedStateError{Field: "message_type", Value: uint8(m.Type), Reason: "unknown message type"}
	}

	msg := make([]byte, length)
	copy(msg, commonMarker[:])
	msg[messageTypeByte] = byte(m.Type)

	if m.Type != MsgState {
		return msg, nil
	}

	if err := checkSettings(m.Temperature, m.Mode, m.Fan); err != nil {
		return nil, err
	}

	msg[6] = stateHeaderByte0
	msg[7] = stateHeaderByte1
	setNibble(msg, temperatureNibble, byte(m.Temperature/10-MinCelsius))
	if m.PowerOn {
		setNibble(msg, powerOnNibble, 0x01)
	}
	setNibble(msg, modeNibble, byte(m.Mode))
	setNibble(msg, fanNibble, byte(m.Fan))
	msg[length-1] = checksum(msg)

	return msg, nil
}

// ParseMessage parses message bytes, validating marker, length and checksum
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < commonLength {
		return Message{}, decodeErrorf(ErrFrameLength, len(msg), "message shorter than common header (%d bytes)", commonLength)
	}
	if !bytes.Equal(msg[:len(commonMarker)], commonMarker[:]) {
		return Message{}, decodeErrorf(ErrMarker, 0, "got % X", msg[:len(commonMarker)])
	}

	msgType := MessageType(msg[messageTypeByte])
	length := msgType.Length()
	if length == 0 {
		return Message{}, decodeErrorf(ErrMessageType, messageTypeByte, "0x%02X", uint8(msgType))
	}
	if len(msg) != length {
		return Message{}, decodeErrorf(ErrFrameLength, len(msg), "%s expects %d bytes", FormatMessageType(msgType), length)
	}

	if msgType != MsgState {
		return Message{Type: msgType}, nil
	}

	if want := checksum(msg); msg[length-1] != want {
		return Message{}, decodeErrorf(ErrChecksum, length-1, "expected 0x%02X, got 0x%02X", want, msg[length-1])
	}

	return Message{
		Type:        MsgState,
		Temperature: Temperature(int(getNibble(msg, temperatureNibble))+MinCelsius) * 10,
		PowerOn:     getNibble(msg, powerOnNibble) == 0x01,
		Mode:        modeFromNibble(getNibble(msg, modeNibble)),
		Fan:         fanFromNibble(getNibble(msg, fanNibble)),
	}, nil
}

// checkSettings validates that the settings fit the state message nibbles
func checkSettings(t Temperature, mode Mode, fan FanSpeed) error {
	if !t.Whole() {
		return &UnsupportedStateError{Field: "target_temperature", Value: t, Reason: "only whole degrees are representable"}
	}
	if c := int(t / 10); c < MinCelsius || c > MaxCelsius {
		return &UnsupportedStateError{Field: "target_temperature", Value: t, Reason: "outside 16-30°C"}
	}
	if !mode.Valid() {
		return &UnsupportedStateError{Field: "mode", Value: uint8(mode), Reason: "unknown mode"}
	}
	if !fan.Valid() {
		return &UnsupportedStateError{Field: "fan_speed", Value: uint8(fan), Reason: "unknown fan speed"}
	}
	return nil
}

// Unknown mode and fan nibbles fall back to auto, as the unit does
func modeFromNibble(v byte) Mode {
	if m := Mode(v); m.Valid() {
		return m
	}
	return ModeAuto
}

func fanFromNibble(v byte) FanSpeed {
	if f := FanSpeed(v); f.Valid() {
		return f
	}
	return FanAuto
}

// checksum computes the state message checksum: 256 - sum(bytes[7..13])
func checksum(msg []byte) byte {
	var sum byte
	for _, b := range msg[checksumStart : len(msg)-1] {
		sum += b
	}
	return -sum
}

func setNibble(msg []byte, nibble int, value byte) {
	shift := 4
	if nibble%2 == 1 {
		shift = 0
	}
	msg[nibble/2] |= (value & 0x0F) << shift
}

func getNibble(msg []byte, nibble int) byte {
	shift := 4
	if nibble%2 == 1 {
		shift = 0
	}
	return (msg[nibble/2] >> shift) & 0x0F
}
