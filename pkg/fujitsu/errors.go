// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package fujitsu

import (
	"errors"
	"fmt"
)

// ErrUnsupportedState is matched by every UnsupportedStateError
var ErrUnsupportedState = errors.New("unsupported state")

// UnsupportedStateError reports a state that the protocol cannot represent
type UnsupportedStateError struct {
	Field  string
	Value  interface{}
	Reason string
}

// Error implements the error interface
func (e *UnsupportedStateError) Error() string {
	return fmt.Sprintf("unsupported state: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap allows errors.Is(err, ErrUnsupportedState)
func (e *UnsupportedStateError) Unwrap() error {
	return ErrUnsupportedState
}

// ErrDecode is matched by every DecodeError
var ErrDecode = errors.New("decode failed")

// Decode error kinds
var (
	ErrHeader      = errors.New("header mismatch")
	ErrTiming      = errors.New("bit timing out of tolerance")
	ErrMarker      = errors.New("common marker mismatch")
	ErrMessageType = errors.New("unknown message type")
	ErrFrameLength = errors.New("frame length mismatch")
	ErrChecksum    = errors.New("checksum mismatch")
	ErrNoState     = errors.New("capture carries no state")
)

// DecodeError reports why a capture could not be decoded.
// Kind is one of the Err* decode kinds above.
type DecodeError struct {
	Kind    error
	Offset  int // sample index (or byte index for byte-level errors)
	Message string
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("decode: %v at %d", e.Kind, e.Offset)
	}
	return fmt.Sprintf("decode: %v at %d: %s", e.Kind, e.Offset, e.Message)
}

// Unwrap allows matching both the kind and ErrDecode
func (e *DecodeError) Unwrap() []error {
	return []error{e.Kind, ErrDecode}
}

func decodeErrorf(kind error, offset int, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Offset: offset, Message: fmt.Sprintf(format, args...)}
}
