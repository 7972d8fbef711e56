// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

//go:build linux

// Package gpio drives the IR emitter and receiver wired directly to Linux
// GPIO lines through the GPIO character device.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"github.com/Thermoquad/mistral/pkg/irdrive"
)

// Consumer labels the lines requested by mistral
const Consumer = "mistral"

// eventBuffer holds edges between the kernel event handler and Watch.
// One Fujitsu frame is under 500 edges.
const eventBuffer = 2048

// Chip requests lines from one GPIO character device
type Chip struct {
	name string
}

// NewChip returns a Chip for name, such as "gpiochip0"
func NewChip(name string) *Chip {
	return &Chip{name: name}
}

// outputLine is the part of a requested line an Output drives
type outputLine interface {
	SetValue(value int) error
	Close() error
}

// Output is an emitter line. The LED driver gates the 38 kHz carrier while it is high.
type Output struct {
	chip   string
	offset int
	line   outputLine
}

// OpenOutput requests offset as an output driven low
func (c *Chip) OpenOutput(offset int) (*Output, error) {
	if offset < 0 {
		return nil, fmt.Errorf("invalid GPIO line %d", offset)
	}
	l, err := gpiocdev.RequestLine(c.name, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("failed to request %s line %d: %w", c.name, offset, err)
	}
	return &Output{chip: c.name, offset: offset, line: l}, nil
}

// Set drives the line; satisfies irdrive.OutputPin
func (o *Output) Set(active bool) error {
	value := 0
	if active {
		value = 1
	}
	if err := o.line.SetValue(value); err != nil {
		return fmt.Errorf("%s line %d: %w", o.chip, o.offset, err)
	}
	return nil
}

// Close drives the line low and releases it
func (o *Output) Close() error {
	return errors.Join(o.Set(false), o.line.Close())
}

// Input is a demodulating receiver line. Edges carry the kernel's event
// timestamp, so their spacing does not depend on when mistral is scheduled.
type Input struct {
	chip    string
	offset  int
	line    io.Closer
	epoch   time.Time
	events  chan gpiocdev.LineEvent
	dropped atomic.Uint64
}

func newInput(chip string, offset int, epoch time.Time) *Input {
	return &Input{
		chip:   chip,
		offset: offset,
		epoch:  epoch,
		events: make(chan gpiocdev.LineEvent, eventBuffer),
	}
}

// OpenInput requests offset as an input reporting both edges. Typical 38 kHz
// receiver modules pull their output low while the carrier is present, so
// activeLow is the usual setting.
func (c *Chip) OpenInput(offset int, activeLow bool) (*Input, error) {
	if offset < 0 {
		return nil, fmt.Errorf("invalid GPIO line %d", offset)
	}
	epoch, err := monotonicEpoch()
	if err != nil {
		return nil, err
	}

	in := newInput(c.name, offset, epoch)
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(in.handle),
		gpiocdev.WithConsumer(Consumer),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	l, err := gpiocdev.RequestLine(c.name, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s line %d: %w", c.name, offset, err)
	}
	in.line = l
	return in, nil
}

// handle runs on the library's event goroutine and must not block
func (in *Input) handle(evt gpiocdev.LineEvent) {
	select {
	case in.events <- evt:
	default:
		in.dropped.Add(1)
	}
}

// edge converts a line event. Rising means the carrier started, with
// active-low inversion already applied by the kernel.
func (in *Input) edge(evt gpiocdev.LineEvent) irdrive.Edge {
	return irdrive.Edge{
		Level: evt.Type == gpiocdev.LineEventRisingEdge,
		At:    in.epoch.Add(evt.Timestamp),
	}
}

// Watch passes every edge to feed until ctx is cancelled
func (in *Input) Watch(ctx context.Context, feed func(irdrive.Edge) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-in.events:
			feed(in.edge(evt))
		}
	}
}

// Dropped returns the number of edges lost because Watch fell behind
func (in *Input) Dropped() uint64 {
	return in.dropped.Load()
}

// Close releases the line
func (in *Input) Close() error {
	return in.line.Close()
}

// monotonicEpoch returns the wall time at which CLOCK_MONOTONIC read zero.
// Edge event timestamps count from there.
func monotonicEpoch() (time.Time, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to read monotonic clock: %w", err)
	}
	return time.Now().Add(-time.Duration(ts.Nano())), nil
}
