// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

//go:build linux

package gpio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

// fakeLine records driven values
type fakeLine struct {
	values []int
	closed bool
	err    error
}

func (l *fakeLine) SetValue(value int) error {
	if l.err != nil {
		return l.err
	}
	l.values = append(l.values, value)
	return nil
}

func (l *fakeLine) Close() error {
	l.closed = true
	return nil
}

// eventsFromSamples converts capture samples into line events with kernel
// timestamps starting at start. A trailing space produces no event.
func eventsFromSamples(start time.Duration, samples []int32) []gpiocdev.LineEvent {
	events := []gpiocdev.LineEvent{{Offset: 27, Timestamp: start, Type: gpiocdev.LineEventRisingEdge, Seqno: 1}}
	at := start
	for i, s := range samples {
		d := s
		if d < 0 {
			d = -d
		}
		at += time.Duration(d) * time.Microsecond
		if i == len(samples)-1 && s < 0 {
			break
		}
		typ := gpiocdev.LineEventFallingEdge
		if s < 0 {
			typ = gpiocdev.LineEventRisingEdge
		}
		events = append(events, gpiocdev.LineEvent{
			Offset:    27,
			Timestamp: at,
			Type:      typ,
			Seqno:     uint32(len(events) + 1),
		})
	}
	return events
}

// ============================================================
// Output Tests
// ============================================================

func TestOutput_Set(t *testing.T) {
	line := &fakeLine{}
	out := &Output{chip: "gpiochip0", offset: 17, line: line}

	for _, active := range []bool{true, false, true} {
		if err := out.Set(active); err != nil {
			t.Fatalf("Set(%v) error: %v", active, err)
		}
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	want := []int{1, 0, 1, 0}
	if len(line.values) != len(want) {
		t.Fatalf("values = %v, want %v", line.values, want)
	}
	for i := range want {
		if line.values[i] != want[i] {
			t.Errorf("values[%d] = %d, want %d", i, line.values[i], want[i])
		}
	}
	if !line.closed {
		t.Error("line not released on Close()")
	}
}

func TestOutput_SetError(t *testing.T) {
	cause := errors.New("device busy")
	out := &Output{chip: "gpiochip0", offset: 17, line: &fakeLine{err: cause}}

	err := out.Set(true)
	if !errors.Is(err, cause) {
		t.Fatalf("Set() error = %v, want %v", err, cause)
	}
}

func TestChip_InvalidOffset(t *testing.T) {
	c := NewChip("gpiochip0")
	if _, err := c.OpenOutput(-1); err == nil {
		t.Error("OpenOutput(-1) succeeded")
	}
	if _, err := c.OpenInput(-1, true); err == nil {
		t.Error("OpenInput(-1) succeeded")
	}
}

// ============================================================
// Input Tests
// ============================================================

func TestInput_EdgesUseKernelTimestamps(t *testing.T) {
	epoch := time.Unix(1700000000, 0)
	in := newInput("gpiochip0", 27, epoch)

	in.handle(gpiocdev.LineEvent{Timestamp: 5 * time.Second, Type: gpiocdev.LineEventRisingEdge})
	in.handle(gpiocdev.LineEvent{Timestamp: 5*time.Second + 3300*time.Microsecond, Type: gpiocdev.LineEventFallingEdge})

	ctx, cancel := context.WithCancel(context.Background())
	var got []irdrive.Edge
	err := in.Watch(ctx, func(e irdrive.Edge) bool {
		got = append(got, e)
		if len(got) == 2 {
			cancel()
		}
		return true
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Watch() error = %v, want context.Canceled", err)
	}

	want := []irdrive.Edge{
		{Level: true, At: epoch.Add(5 * time.Second)},
		{Level: false, At: epoch.Add(5*time.Second + 3300*time.Microsecond)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d edges, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Level != want[i].Level || !got[i].At.Equal(want[i].At) {
			t.Errorf("edge %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestInput_DelayedDeliveryStillDecodes(t *testing.T) {
	state := fujitsu.State{Power: true, Mode: fujitsu.ModeCool, Temperature: fujitsu.Celsius(22), Fan: fujitsu.FanHigh, Swing: fujitsu.SwingVertical}
	frame, err := fujitsu.Encode(state)
	if err != nil {
		t.Fatal(err)
	}
	samples := fujitsu.CaptureFromFrame(frame).Samples

	epoch := time.Unix(1700000000, 0)
	in := newInput("gpiochip0", 27, epoch)

	// The whole frame arrives in one burst long after the fact, as when the
	// process was descheduled. Timing comes from the event timestamps alone.
	for _, evt := range eventsFromSamples(42*time.Second, samples) {
		in.handle(evt)
	}

	receiver := irdrive.NewEdgeReceiver(irdrive.WithFrameGap(20 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = receiver.Run(ctx) }()
	go func() { _ = in.Watch(ctx, receiver.Feed) }()

	// The frame gap closes once an edge past it arrives.
	in.handle(gpiocdev.LineEvent{Timestamp: 50 * time.Second, Type: gpiocdev.LineEventRisingEdge})

	rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
	defer rcancel()
	c, err := receiver.Receive(rctx)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if want := epoch.Add(42 * time.Second); !c.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", c.Timestamp, want)
	}

	got, err := fujitsu.Decode(c)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got != state {
		t.Errorf("decoded %+v, want %+v", got, state)
	}
	if in.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", in.Dropped())
	}
}

func TestInput_DropsWhenBehind(t *testing.T) {
	in := newInput("gpiochip0", 27, time.Unix(0, 0))
	in.events = make(chan gpiocdev.LineEvent, 1)

	in.handle(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})
	in.handle(gpiocdev.LineEvent{Type: gpiocdev.LineEventFallingEdge})
	in.handle(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})

	if got := in.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestMonotonicEpoch(t *testing.T) {
	epoch, err := monotonicEpoch()
	if err != nil {
		t.Fatalf("monotonicEpoch() error: %v", err)
	}
	if !epoch.Before(time.Now()) {
		t.Errorf("epoch %v is not in the past", epoch)
	}
}
