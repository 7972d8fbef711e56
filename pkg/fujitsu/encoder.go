// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package fujitsu

import "fmt"

// Messages returns the messages that set a unit to state s from any prior state.
// A powered-on state is a STATE message, followed by SWING_LOUVER when swing is on.
func Messages(s State) ([]Message, error) {
	if !s.Mode.Valid() {
		return nil, &UnsupportedStateError{Field: "mode", Value: uint8(s.Mode), Reason: "unknown mode"}
	}
	if !s.Fan.Valid() {
		return nil, &UnsupportedStateError{Field: "fan_speed", Value: uint8(s.Fan), Reason: "unknown fan speed"}
	}
	if !s.Swing.Valid() {
		return nil, &UnsupportedStateError{Field: "swing", Value: uint8(s.Swing), Reason: "unknown swing"}
	}

	if !s.Power {
		return []Message{NewOffMessage()}, nil
	}

	if err := checkSettings(s.Temperature, s.Mode, s.Fan); err != nil {
		return nil, err
	}

	msgs := []Message{NewStateMessage(s, true)}
	if s.Swing == SwingVertical {
		msgs = append(msgs, NewSwingLouverMessage())
	}
	return msgs, nil
}

// Encode converts a state to the pulse frame that sets a unit to it
func Encode(s State) (PulseFrame, error) {
	msgs, err := Messages(s)
	if err != nil {
		return PulseFrame{}, err
	}
	return EncodeMessages(msgs...)
}

// EncodeMessages encodes messages back to back into one frame.
// Each message gets its own header and trailer.
func EncodeMessages(msgs ...Message) (PulseFrame, error) {
	if len(msgs) == 0 {
		return PulseFrame{}, fmt.Errorf("no messages to encode")
	}

	frame := PulseFrame{CarrierHz: CarrierFrequency}
	for _, m := range msgs {
		data, err := m.Bytes()
		if err != nil {
			return PulseFrame{}, err
		}
		frame.Pulses = appendMessagePulses(frame.Pulses, data)
	}
	return frame, nil
}

// appendMessagePulses appends header, data bits (LSB first) and trailer
func appendMessagePulses(pulses []Pulse, data []byte) []Pulse {
	pulses = append(pulses, Pulse{Mark: HeaderMark, Space: HeaderSpace})
	for _, b := range data {
		for mask := byte(0x01); mask != 0; mask <<= 1 {
			space := uint32(ZeroSpace)
			if b&mask != 0 {
				space = OneSpace
			}
			pulses = append(pulses, Pulse{Mark: BitMark, Space: space})
		}
	}
	return append(pulses, Pulse{Mark: TrailerMark, Space: TrailerSpace})
}
