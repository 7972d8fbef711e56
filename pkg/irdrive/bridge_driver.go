// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package irdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/mistral/pkg/bridge"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// BridgeError is reported by the bridge in an ERROR message
type BridgeError struct {
	Seq  uint32
	Code bridge.ErrorCode
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge error %s (seq %d)", e.Code, e.Seq)
}

// BridgeStats counts link traffic
type BridgeStats struct {
	PacketsReceived  uint64
	DecodeErrors     uint64
	InvalidPackets   uint64
	Captures         uint64
	CapturesDropped  uint64
	FramesSent       uint64
	FramesConfirmed  uint64
	FramesFailed     uint64
	FramesAbandoned  uint64
	UnmatchedReports uint64
}

// pendingFrame is a transmitted frame awaiting the bridge's report
type pendingFrame struct {
	done chan error
	stop func() bool
}

// BridgeDriver sends frames to and receives captures from an IR bridge
// microcontroller over a byte stream (serial port or WebSocket).
type BridgeDriver struct {
	conn io.ReadWriteCloser
	log  *zap.SugaredLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	seq     uint32
	pending map[uint32]*pendingFrame
	stats   BridgeStats
	closed  bool

	captures chan fujitsu.RawCapture
	pongs    chan uint64
}

// BridgeOption configures a BridgeDriver
type BridgeOption func(*BridgeDriver)

// WithLogger sets the driver's logger
func WithLogger(log *zap.SugaredLogger) BridgeOption {
	return func(d *BridgeDriver) { d.log = log }
}

// WithCaptureBuffer sets how many captures are queued before new ones are dropped
func WithCaptureBuffer(n int) BridgeOption {
	return func(d *BridgeDriver) {
		if n > 0 {
			d.captures = make(chan fujitsu.RawCapture, n)
		}
	}
}

// NewBridgeDriver creates a driver on conn; call Run to start reading reports
func NewBridgeDriver(conn io.ReadWriteCloser, opts ...BridgeOption) *BridgeDriver {
	d := &BridgeDriver{
		conn:     conn,
		log:      zap.NewNop().Sugar(),
		pending:  make(map[uint32]*pendingFrame),
		captures: make(chan fujitsu.RawCapture, 8),
		pongs:    make(chan uint64, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Transmit sends frame to the bridge. The completion resolves when the bridge
// reports TRANSMIT_DONE or ERROR for the frame's sequence number, or with
// ctx's error once ctx ends. A report arriving after that is not matched.
func (d *BridgeDriver) Transmit(ctx context.Context, frame fujitsu.PulseFrame) (Completion, error) {
	if len(frame.Pulses) == 0 {
		return nil, ErrEmptyFrame
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.seq++
	if d.seq == 0 {
		// Zero marks errors not tied to a transmission
		d.seq = 1
	}
	seq := d.seq
	done := make(chan error, 1)
	d.pending[seq] = &pendingFrame{done: done}
	d.mu.Unlock()

	data, err := bridge.NewTransmitCommand(seq, frame.CarrierHz, frame.Durations()).Encode()
	if err == nil {
		err = d.write(ctx, data)
	}
	if err != nil {
		d.mu.Lock()
		delete(d.pending, seq)
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to send frame: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { d.abandon(seq, ctx.Err()) })
	d.mu.Lock()
	d.stats.FramesSent++
	if p, ok := d.pending[seq]; ok {
		p.stop = stop
	}
	d.mu.Unlock()

	d.log.Debugw("frame sent to bridge", "seq", seq, "pulses", len(frame.Pulses), "duration", frame.Duration())
	return done, nil
}

// Ping asks the bridge for its uptime
func (d *BridgeDriver) Ping(ctx context.Context) (time.Duration, error) {
	// Discard a stale response from an earlier, abandoned ping
	select {
	case <-d.pongs:
	default:
	}

	data, err := bridge.NewPingRequest().Encode()
	if err != nil {
		return 0, err
	}
	if err := d.write(ctx, data); err != nil {
		return 0, fmt.Errorf("failed to send ping: %w", err)
	}

	select {
	case uptime := <-d.pongs:
		return time.Duration(uptime) * time.Millisecond, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Captures returns the channel decoded CAPTURE reports are published on
func (d *BridgeDriver) Captures() <-chan fujitsu.RawCapture {
	return d.captures
}

// Stats returns a snapshot of the link counters
func (d *BridgeDriver) Stats() BridgeStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Run reads and dispatches bridge reports until ctx is cancelled or the
// connection fails. Outstanding completions fail with ErrClosed on return.
func (d *BridgeDriver) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { d.conn.Close() })
	defer stop()
	defer d.failPending()

	decoder := bridge.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return ErrClosed
			}
			return fmt.Errorf("bridge read failed: %w", err)
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if err != nil {
				d.mu.Lock()
				d.stats.DecodeErrors++
				d.mu.Unlock()
				d.log.Debugw("bridge decode error", "error", err)
				continue
			}
			if packet != nil {
				d.handle(packet)
			}
		}
	}
}

// Close closes the underlying connection
func (d *BridgeDriver) Close() error {
	d.failPending()
	return d.conn.Close()
}

func (d *BridgeDriver) write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.conn.Write(data)
	return err
}

func (d *BridgeDriver) handle(p *bridge.Packet) {
	d.mu.Lock()
	d.stats.PacketsReceived++
	d.mu.Unlock()

	if errs := bridge.ValidatePacket(p); len(errs) > 0 {
		d.mu.Lock()
		d.stats.InvalidPackets++
		d.mu.Unlock()
		d.log.Warnw("invalid bridge packet", "type", bridge.FormatMessageType(p.Type()), "error", errs[0].Message)
		return
	}

	switch p.Type() {
	case bridge.MsgTransmitDone:
		seq, elapsed, _ := p.TransmitDone()
		d.log.Debugw("bridge confirmed frame", "seq", seq, "elapsed_us", elapsed)
		d.resolve(seq, nil)

	case bridge.MsgError:
		seq, code, _ := p.BridgeError()
		if seq == 0 {
			d.log.Warnw("bridge reported error", "code", code.String())
			return
		}
		d.resolve(seq, &BridgeError{Seq: seq, Code: code})

	case bridge.MsgCapture:
		samples, _ := p.CaptureSamples()
		c := fujitsu.RawCapture{Samples: samples, Timestamp: p.Timestamp()}
		d.mu.Lock()
		d.stats.Captures++
		d.mu.Unlock()
		select {
		case d.captures <- c:
		default:
			d.mu.Lock()
			d.stats.CapturesDropped++
			d.mu.Unlock()
			d.log.Warnw("capture dropped, consumer too slow", "samples", len(samples))
		}

	case bridge.MsgPingResponse:
		uptime, _ := p.Uptime()
		select {
		case d.pongs <- uptime:
		default:
		}

	default:
		d.log.Debugw("ignoring bridge packet", "type", bridge.FormatMessageType(p.Type()))
	}
}

func (d *BridgeDriver) resolve(seq uint32, err error) {
	d.mu.Lock()
	p, ok := d.pending[seq]
	delete(d.pending, seq)
	switch {
	case !ok:
		d.stats.UnmatchedReports++
	case err != nil:
		d.stats.FramesFailed++
	default:
		d.stats.FramesConfirmed++
	}
	d.mu.Unlock()

	if !ok {
		d.log.Debugw("report for unknown frame", "seq", seq)
		return
	}
	if p.stop != nil {
		p.stop()
	}
	p.done <- err
}

// abandon fails a frame whose sender stopped waiting for it
func (d *BridgeDriver) abandon(seq uint32, err error) {
	d.mu.Lock()
	p, ok := d.pending[seq]
	if ok {
		delete(d.pending, seq)
		d.stats.FramesFailed++
		d.stats.FramesAbandoned++
	}
	d.mu.Unlock()

	if ok {
		d.log.Debugw("frame abandoned before the bridge reported", "seq", seq, "error", err)
		p.done <- err
	}
}

func (d *BridgeDriver) failPending() {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[uint32]*pendingFrame)
	d.closed = true
	d.mu.Unlock()

	for _, p := range pending {
		if p.stop != nil {
			p.stop()
		}
		p.done <- ErrClosed
	}
}
