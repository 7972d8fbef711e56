// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package climate

// Status is the controller's transmission state
type Status uint8

const (
	StatusIdle Status = iota
	StatusTransmitting
	StatusAwaitingFeedback
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusTransmitting:
		return "transmitting"
	case StatusAwaitingFeedback:
		return "awaiting_feedback"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Source tells where a state change came from
type Source uint8

const (
	// SourceTransmit is a change applied and confirmed by this controller
	SourceTransmit Source = iota
	// SourceReceive is a change decoded from the unit's remote control
	SourceReceive
)

func (s Source) String() string {
	if s == SourceReceive {
		return "receive"
	}
	return "transmit"
}

// MarshalText encodes the source as its name
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSource parses a source name
func ParseSource(name string) (Source, bool) {
	switch name {
	case "transmit":
		return SourceTransmit, true
	case "receive":
		return SourceReceive, true
	}
	return 0, false
}
