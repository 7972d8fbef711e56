// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package fujitsu

import "time"

// Pulse is one mark (carrier on) followed by one space (carrier off), in microseconds
type Pulse struct {
	Mark  uint32
	Space uint32
}

// PulseFrame is one infrared transmission. Treat it as immutable once produced.
type PulseFrame struct {
	CarrierHz uint32
	Pulses    []Pulse
}

// Duration returns the total on-air time of the frame
func (f PulseFrame) Duration() time.Duration {
	var us uint64
	for _, p := range f.Pulses {
		us += uint64(p.Mark) + uint64(p.Space)
	}
	return time.Duration(us) * time.Microsecond
}

// Durations flattens the frame to alternating mark, space durations
func (f PulseFrame) Durations() []uint32 {
	out := make([]uint32, 0, len(f.Pulses)*2)
	for _, p := range f.Pulses {
		out = append(out, p.Mark, p.Space)
	}
	return out
}

// FrameFromDurations builds a frame from alternating mark, space durations.
// A trailing mark without a space gets a zero space.
func FrameFromDurations(carrierHz uint32, durations []uint32) PulseFrame {
	f := PulseFrame{CarrierHz: carrierHz, Pulses: make([]Pulse, 0, (len(durations)+1)/2)}
	for i := 0; i < len(durations); i += 2 {
		p := Pulse{Mark: durations[i]}
		if i+1 < len(durations) {
			p.Space = durations[i+1]
		}
		f.Pulses = append(f.Pulses, p)
	}
	return f
}

// RawCapture is a received pulse train: positive samples are marks,
// negative samples are spaces, both in microseconds.
type RawCapture struct {
	Samples   []int32
	Timestamp time.Time
}

// CaptureFromFrame converts a frame to the capture a receiver would record.
// Zero-length spaces are dropped.
func CaptureFromFrame(f PulseFrame) RawCapture {
	c := RawCapture{Samples: make([]int32, 0, len(f.Pulses)*2), Timestamp: time.Now()}
	for _, p := range f.Pulses {
		c.Samples = append(c.Samples, int32(p.Mark))
		if p.Space > 0 {
			c.Samples = append(c.Samples, -int32(p.Space))
		}
	}
	return c
}
