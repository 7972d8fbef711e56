// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package irdrive

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// DefaultSlack is the time a frame may overrun its nominal duration
const DefaultSlack = 5 * time.Millisecond

// spinThreshold is the final stretch of a wait that is busy-polled instead of slept
const spinThreshold = 200 * time.Microsecond

// OutputPin is a carrier-gated emitter output: while active the LED is
// modulated at the carrier frequency.
type OutputPin interface {
	Set(active bool) error
}

// Clock provides time for pulse scheduling
type Clock interface {
	Now() time.Time
	SleepUntil(t time.Time)
}

// CriticalSection enters a timing-critical window and returns its release function
type CriticalSection func() (release func())

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) SleepUntil(t time.Time) {
	if d := time.Until(t); d > spinThreshold {
		time.Sleep(d - spinThreshold)
	}
	for time.Now().Before(t) {
	}
}

// lockThread pins the emitting goroutine to its OS thread for the duration of a mark
func lockThread() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}

// PinTransmitter emits frames by toggling an OutputPin with software timing
type PinTransmitter struct {
	pin      OutputPin
	clock    Clock
	critical CriticalSection
	slack    time.Duration
	busy     atomic.Bool
}

// PinOption configures a PinTransmitter
type PinOption func(*PinTransmitter)

// WithClock replaces the system clock
func WithClock(c Clock) PinOption {
	return func(t *PinTransmitter) { t.clock = c }
}

// WithCriticalSection replaces the hook held around each mark
func WithCriticalSection(c CriticalSection) PinOption {
	return func(t *PinTransmitter) { t.critical = c }
}

// WithSlack sets how far past the nominal frame duration emission may run
func WithSlack(d time.Duration) PinOption {
	return func(t *PinTransmitter) { t.slack = d }
}

// NewPinTransmitter creates a transmitter driving pin
func NewPinTransmitter(pin OutputPin, opts ...PinOption) *PinTransmitter {
	t := &PinTransmitter{
		pin:      pin,
		clock:    systemClock{},
		critical: lockThread,
		slack:    DefaultSlack,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transmit starts emitting frame on a dedicated goroutine.
// Only one frame may be in flight; a second call returns ErrTransmitterBusy.
func (t *PinTransmitter) Transmit(ctx context.Context, frame fujitsu.PulseFrame) (Completion, error) {
	if len(frame.Pulses) == 0 {
		return nil, ErrEmptyFrame
	}
	if !t.busy.CompareAndSwap(false, true) {
		return nil, ErrTransmitterBusy
	}

	done := make(chan error, 1)
	go func() {
		err := t.emit(ctx, frame)
		t.busy.Store(false)
		done <- err
	}()
	return done, nil
}

// emit schedules every edge against the frame start so sleep error does not accumulate
func (t *PinTransmitter) emit(ctx context.Context, frame fujitsu.PulseFrame) (err error) {
	start := t.clock.Now()
	deadline := start.Add(frame.Duration() + t.slack)
	at := start

	defer func() {
		if offErr := t.pin.Set(false); offErr != nil && err == nil {
			err = offErr
		}
	}()

	for i, p := range frame.Pulses {
		if err := ctx.Err(); err != nil {
			return err
		}

		release := t.critical()
		err := t.pin.Set(true)
		if err == nil {
			at = at.Add(time.Duration(p.Mark) * time.Microsecond)
			t.clock.SleepUntil(at)
			err = t.pin.Set(false)
		}
		release()
		if err != nil {
			return fmt.Errorf("pulse %d: %w", i, err)
		}

		if now := t.clock.Now(); now.After(deadline) {
			return fmt.Errorf("%w: pulse %d of %d ended %s late", ErrFrameOverrun, i+1, len(frame.Pulses), now.Sub(deadline))
		}

		at = at.Add(time.Duration(p.Space) * time.Microsecond)
		t.clock.SleepUntil(at)
	}

	if now := t.clock.Now(); now.After(deadline) {
		return fmt.Errorf("%w: finished %s late", ErrFrameOverrun, now.Sub(deadline))
	}
	return nil
}
