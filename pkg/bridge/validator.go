// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package bridge

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyMissingField AnomalyType = iota
	AnomalyInvalidValue
	AnomalyEmptyFrame
	AnomalyUnknownType
	AnomalyDecodeError
)

// Limits applied to pulse durations carried over the link
const (
	MaxDurationUs = 100000
	MinCarrierHz  = 30000
	MaxCarrierHz  = 60000
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket validates packet structure and detects anomalies
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	if err := p.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyDecodeError,
			Message: fmt.Sprintf("CBOR decode failed: %v", err),
		}}
	}

	switch p.Type() {
	case MsgTransmit:
		return validateTransmit(p)
	case MsgTransmitDone:
		return requireKeys(p, "TRANSMIT_DONE", KeyDoneSeq, KeyDoneElapsed)
	case MsgCapture:
		return validateCapture(p)
	case MsgPingResponse:
		return requireKeys(p, "PING_RESPONSE", KeyPingUptime)
	case MsgError:
		return requireKeys(p, "ERROR", KeyErrorSeq, KeyErrorCode)
	case MsgPingRequest:
		return nil
	default:
		return []ValidationError{{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("Unknown message type 0x%02X", p.Type()),
			Details: map[string]interface{}{"type": p.Type()},
		}}
	}
}

func requireKeys(p *Packet, name string, keys ...int) []ValidationError {
	var errors []ValidationError
	m := p.PayloadMap()
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			errors = append(errors, ValidationError{
				Type:    AnomalyMissingField,
				Message: fmt.Sprintf("%s missing key %d", name, k),
				Details: map[string]interface{}{"key": k},
			})
		}
	}
	return errors
}

// validateTransmit validates TRANSMIT packet
func validateTransmit(p *Packet) []ValidationError {
	errors := requireKeys(p, "TRANSMIT", KeyTransmitSeq, KeyTransmitCarrier, KeyTransmitDurations)
	if len(errors) > 0 {
		return errors
	}

	carrier, _ := GetMapUint(p.PayloadMap(), KeyTransmitCarrier)
	if carrier < MinCarrierHz || carrier > MaxCarrierHz {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Carrier %d Hz out of range (%d-%d)", carrier, MinCarrierHz, MaxCarrierHz),
			Details: map[string]interface{}{"carrier": carrier},
		})
	}

	durations, ok := GetMapUintSlice(p.PayloadMap(), KeyTransmitDurations)
	if !ok {
		return append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: "TRANSMIT durations are not an array of unsigned integers",
		})
	}
	if len(durations) == 0 {
		return append(errors, ValidationError{
			Type:    AnomalyEmptyFrame,
			Message: "TRANSMIT carries no durations",
		})
	}
	for i, d := range durations {
		if d == 0 && i%2 == 0 {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Zero-length mark at index %d", i),
				Details: map[string]interface{}{"index": i},
			})
		}
		if d > MaxDurationUs {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Duration %d us at index %d exceeds %d us", d, i, MaxDurationUs),
				Details: map[string]interface{}{"index": i, "duration": d},
			})
		}
	}

	return errors
}

// validateCapture validates CAPTURE packet
func validateCapture(p *Packet) []ValidationError {
	errors := requireKeys(p, "CAPTURE", KeyCaptureSamples)
	if len(errors) > 0 {
		return errors
	}

	samples, ok := GetMapIntSlice(p.PayloadMap(), KeyCaptureSamples)
	if !ok {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: "CAPTURE samples are not an array of integers",
		}}
	}
	if len(samples) == 0 {
		return []ValidationError{{
			Type:    AnomalyEmptyFrame,
			Message: "CAPTURE carries no samples",
		}}
	}
	if samples[0] <= 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("CAPTURE must start with a mark, got %d", samples[0]),
			Details: map[string]interface{}{"first": samples[0]},
		})
	}
	for i, s := range samples {
		if s > MaxDurationUs || s < -MaxDurationUs {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Sample %d us at index %d exceeds %d us", s, i, MaxDurationUs),
				Details: map[string]interface{}{"index": i, "sample": s},
			})
		}
	}

	return errors
}
