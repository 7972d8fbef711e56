// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package irdrive moves pulse frames between the climate controller and
// infrared hardware.
//
// Three drivers are provided: PinTransmitter times marks and spaces in
// software on a carrier-gated output pin, EdgeReceiver turns receiver edges
// into raw captures, and BridgeDriver delegates both directions to an IR
// bridge microcontroller over a pkg/bridge link.
package irdrive

import (
	"context"
	"errors"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// Completion yields exactly one value once the hardware has finished with a
// frame: nil when transmission is confirmed, an error otherwise.
type Completion <-chan error

// Transmitter sends pulse frames. Transmit returns as soon as the frame has
// been accepted; the outcome arrives on the returned Completion.
type Transmitter interface {
	Transmit(ctx context.Context, frame fujitsu.PulseFrame) (Completion, error)
}

// CaptureSource delivers raw captures from an infrared receiver
type CaptureSource interface {
	Captures() <-chan fujitsu.RawCapture
}

var (
	// ErrTransmitterBusy is returned when a frame is already being sent
	ErrTransmitterBusy = errors.New("transmitter busy")
	// ErrEmptyFrame is returned for frames without pulses
	ErrEmptyFrame = errors.New("empty pulse frame")
	// ErrFrameOverrun is returned when emission ran past the frame duration plus slack
	ErrFrameOverrun = errors.New("frame overran its deadline")
	// ErrClosed is returned once a driver has been shut down
	ErrClosed = errors.New("driver closed")
)
