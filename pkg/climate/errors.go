// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package climate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy is returned while a transmission is in flight
	ErrBusy = errors.New("controller busy")
	// ErrInvalidState is matched by every InvalidStateError
	ErrInvalidState = errors.New("invalid state")
	// ErrTransmissionTimeout is matched by every TransmissionTimeoutError
	ErrTransmissionTimeout = errors.New("transmission timed out")
)

// InvalidStateError reports a state rejected by the capability table
type InvalidStateError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// TransmissionTimeoutError reports that the driver never confirmed a frame
type TransmissionTimeoutError struct {
	Timeout time.Duration
}

func (e *TransmissionTimeoutError) Error() string {
	return fmt.Sprintf("transmission not confirmed within %s", e.Timeout)
}

func (e *TransmissionTimeoutError) Unwrap() error {
	return ErrTransmissionTimeout
}
