// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package irdrive

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// Receiver defaults
const (
	// DefaultFrameGap must exceed the longest space inside a frame (the 8 ms
	// message trailer) so multi-message frames stay in one capture.
	DefaultFrameGap   = 12 * time.Millisecond
	DefaultMinSamples = 8
	defaultEdgeBuffer = 1024
)

// Edge is a level change reported by a demodulating receiver.
// Level is true when the carrier starts (beginning of a mark).
type Edge struct {
	Level bool
	At    time.Time
}

// EdgeReceiver buffers edges and emits a RawCapture once the line has been
// silent for longer than the frame gap.
type EdgeReceiver struct {
	frameGap   time.Duration
	minSamples int
	edges      chan Edge
	captures   chan fujitsu.RawCapture
	dropped    atomic.Uint64
	discarded  atomic.Uint64
}

// ReceiverOption configures an EdgeReceiver
type ReceiverOption func(*EdgeReceiver)

// WithFrameGap sets the silence that terminates a capture
func WithFrameGap(d time.Duration) ReceiverOption {
	return func(r *EdgeReceiver) {
		if d > 0 {
			r.frameGap = d
		}
	}
}

// WithMinSamples sets the shortest capture that is published
func WithMinSamples(n int) ReceiverOption {
	return func(r *EdgeReceiver) { r.minSamples = n }
}

// WithEdgeBuffer sets how many edges may be queued before Feed drops them
func WithEdgeBuffer(n int) ReceiverOption {
	return func(r *EdgeReceiver) {
		if n > 0 {
			r.edges = make(chan Edge, n)
		}
	}
}

// NewEdgeReceiver creates a receiver; call Run to start processing edges
func NewEdgeReceiver(opts ...ReceiverOption) *EdgeReceiver {
	r := &EdgeReceiver{
		frameGap:   DefaultFrameGap,
		minSamples: DefaultMinSamples,
		edges:      make(chan Edge, defaultEdgeBuffer),
		captures:   make(chan fujitsu.RawCapture, 4),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Feed queues an edge without blocking. It is safe to call from an
// interrupt poller; returns false when the queue is full and the edge was dropped.
func (r *EdgeReceiver) Feed(e Edge) bool {
	select {
	case r.edges <- e:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Captures returns the channel completed captures are published on
func (r *EdgeReceiver) Captures() <-chan fujitsu.RawCapture {
	return r.captures
}

// Receive waits for the next capture
func (r *EdgeReceiver) Receive(ctx context.Context) (fujitsu.RawCapture, error) {
	select {
	case c := <-r.captures:
		return c, nil
	case <-ctx.Done():
		return fujitsu.RawCapture{}, ctx.Err()
	}
}

// Dropped returns the number of edges lost to a full queue
func (r *EdgeReceiver) Dropped() uint64 {
	return r.dropped.Load()
}

// Discarded returns the number of captures shorter than the minimum sample count
func (r *EdgeReceiver) Discarded() uint64 {
	return r.discarded.Load()
}

// Run processes edges until ctx is cancelled
func (r *EdgeReceiver) Run(ctx context.Context) error {
	var (
		samples []int32
		start   time.Time
		last    time.Time
		level   bool
		active  bool
	)

	timer := time.NewTimer(r.frameGap)
	timer.Stop()
	defer timer.Stop()

	flush := func() error {
		timer.Stop()
		if !active {
			return nil
		}
		active = false
		if len(samples) < r.minSamples {
			r.discarded.Add(1)
			samples = nil
			return nil
		}
		c := fujitsu.RawCapture{Samples: samples, Timestamp: start}
		samples = nil
		select {
		case r.captures <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	begin := func(e Edge) {
		active = true
		start, last, level = e.At, e.At, true
		samples = make([]int32, 0, 256)
		timer.Reset(r.frameGap)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}

		case e := <-r.edges:
			if !active {
				// A capture always starts with a mark
				if e.Level {
					begin(e)
				}
				continue
			}
			if e.Level == level {
				continue
			}

			d := e.At.Sub(last)
			if !level && d > r.frameGap {
				if err := flush(); err != nil {
					return err
				}
				begin(e)
				continue
			}

			us := int32(d / time.Microsecond)
			if level {
				samples = append(samples, us)
			} else {
				samples = append(samples, -us)
			}
			level, last = e.Level, e.At
			timer.Reset(r.frameGap)
		}
	}
}
