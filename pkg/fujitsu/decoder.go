// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package fujitsu

import "bytes"

// Decoder decodes raw captures into messages, tolerating timing jitter.
// A sample matches an expected duration d when it lies within
// d ± tolerance percent (inclusive).
type Decoder struct {
	tolerance int
}

// NewDecoder creates a decoder with the given tolerance in percent.
// Values <= 0 select DefaultTolerancePercent; values are capped at 99.
func NewDecoder(tolerancePercent int) *Decoder {
	if tolerancePercent <= 0 {
		tolerancePercent = DefaultTolerancePercent
	}
	if tolerancePercent > 99 {
		tolerancePercent = 99
	}
	return &Decoder{tolerance: tolerancePercent}
}

// Tolerance returns the timing tolerance in percent
func (d *Decoder) Tolerance() int {
	return d.tolerance
}

// Decode decodes a capture using the default tolerance
func Decode(c RawCapture) (State, error) {
	return NewDecoder(DefaultTolerancePercent).Decode(c)
}

// Decode decodes a capture into the state it sets
func (d *Decoder) Decode(c RawCapture) (State, error) {
	msgs, err := d.DecodeMessages(c)
	if err != nil {
		return State{}, err
	}
	return StateFromMessages(msgs)
}

// DecodeMessages decodes every message in a capture.
// Fails if any message is malformed or the capture holds trailing samples.
func (d *Decoder) DecodeMessages(c RawCapture) ([]Message, error) {
	cur := &cursor{samples: c.Samples, tolerance: d.tolerance}

	// Some receivers report the idle line before the first mark
	for cur.remaining() > 0 && cur.samples[cur.pos] < 0 {
		cur.pos++
	}
	if cur.remaining() == 0 {
		return nil, decodeErrorf(ErrFrameLength, 0, "empty capture")
	}

	var msgs []Message
	for cur.remaining() > 0 {
		m, err := cur.decodeMessage()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// StateFromMessages returns the state set by the first OFF or STATE message.
// A SWING_LOUVER directly after a STATE message means swing is on.
func StateFromMessages(msgs []Message) (State, error) {
	for i, m := range msgs {
		switch m.Type {
		case MsgOff:
			return DefaultState(), nil
		case MsgState:
			s := State{
				Power:       true,
				Mode:        m.Mode,
				Temperature: m.Temperature,
				Fan:         m.Fan,
				Swing:       SwingOff,
			}
			if i+1 < len(msgs) && msgs[i+1].Type == MsgSwingLouver {
				s.Swing = SwingVertical
			}
			return s, nil
		}
	}
	return State{}, decodeErrorf(ErrNoState, 0, "%d message(s) without STATE or OFF", len(msgs))
}

// cursor walks the samples of one capture
type cursor struct {
	samples   []int32
	pos       int
	tolerance int
}

func (c *cursor) remaining() int {
	return len(c.samples) - c.pos
}

func (c *cursor) within(sample int32, want uint32) bool {
	v := int64(sample)
	if v < 0 {
		v = -v
	}
	w := int64(want)
	t := int64(c.tolerance)
	return v*100 >= w*(100-t) && v*100 <= w*(100+t)
}

func (c *cursor) markAt(i int, want uint32) bool {
	return c.samples[i] > 0 && c.within(c.samples[i], want)
}

func (c *cursor) spaceAt(i int, want uint32) bool {
	return c.samples[i] < 0 && c.within(c.samples[i], want)
}

// readByte reads 8 bits, LSB first
func (c *cursor) readByte() (byte, error) {
	var b byte
	for bit := 0; bit < 8; bit++ {
		if c.remaining() < 2 {
			return 0, decodeErrorf(ErrFrameLength, c.pos, "capture ended inside bit %d", bit)
		}
		if !c.markAt(c.pos, BitMark) {
			return 0, decodeErrorf(ErrTiming, c.pos, "bit mark %dus", c.samples[c.pos])
		}
		switch {
		case c.spaceAt(c.pos+1, OneSpace):
			b |= 1 << bit
		case c.spaceAt(c.pos+1, ZeroSpace):
		default:
			return 0, decodeErrorf(ErrTiming, c.pos+1, "bit space %dus", c.samples[c.pos+1])
		}
		c.pos += 2
	}
	return b, nil
}

// decodeMessage decodes header, bytes and trailer of one message
func (c *cursor) decodeMessage() (Message, error) {
	start := c.pos
	if c.remaining() < 2 {
		return Message{}, decodeErrorf(ErrFrameLength, c.pos, "%d trailing sample(s)", c.remaining())
	}
	if !c.markAt(c.pos, HeaderMark) || !c.spaceAt(c.pos+1, HeaderSpace) {
		return Message{}, decodeErrorf(ErrHeader, c.pos, "got %dus/%dus", c.samples[c.pos], c.samples[c.pos+1])
	}
	c.pos += 2

	msg := make([]byte, 0, stateMessageLength)
	for len(msg) < commonLength {
		b, err := c.readByte()
		if err != nil {
			return Message{}, err
		}
		msg = append(msg, b)
	}

	if !bytes.Equal(msg[:len(commonMarker)], commonMarker[:]) {
		return Message{}, decodeErrorf(ErrMarker, start, "got % X", msg[:len(commonMarker)])
	}

	length := MessageType(msg[messageTypeByte]).Length()
	if length == 0 {
		return Message{}, decodeErrorf(ErrMessageType, start, "0x%02X", msg[messageTypeByte])
	}
	for len(msg) < length {
		b, err := c.readByte()
		if err != nil {
			return Message{}, err
		}
		msg = append(msg, b)
	}

	if c.remaining() < 1 {
		return Message{}, decodeErrorf(ErrFrameLength, c.pos, "missing trailer")
	}
	if !c.markAt(c.pos, TrailerMark) {
		return Message{}, decodeErrorf(ErrTiming, c.pos, "trailer mark %dus", c.samples[c.pos])
	}
	c.pos++

	// The final trailer space merges with the idle gap and is often not reported
	if c.remaining() > 0 {
		s := c.samples[c.pos]
		if s >= 0 || (!c.spaceAt(c.pos, TrailerSpace) && -s < TrailerSpace) {
			return Message{}, decodeErrorf(ErrTiming, c.pos, "trailer space %dus", s)
		}
		c.pos++
	}

	return ParseMessage(msg)
}
