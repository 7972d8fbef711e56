// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package fujitsu

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks capture decode results and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalCaptures     uint64
	DecodedCaptures   uint64
	StateMessages     uint64
	OffMessages       uint64
	UtilMessages      uint64
	HeaderErrors      uint64
	TimingErrors      uint64
	MarkerErrors      uint64
	MessageTypeErrors uint64
	FrameLengthErrors uint64
	ChecksumErrors    uint64
	OtherErrors       uint64

	// Rates (calculated)
	CaptureRate float64 // captures/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one DecodeMessages call
func (s *Statistics) Update(msgs []Message, decodeErr error) {
	s.TotalCaptures++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrChecksum):
			s.ChecksumErrors++
		case errors.Is(decodeErr, ErrFrameLength):
			s.FrameLengthErrors++
		case errors.Is(decodeErr, ErrHeader):
			s.HeaderErrors++
		case errors.Is(decodeErr, ErrTiming):
			s.TimingErrors++
		case errors.Is(decodeErr, ErrMarker):
			s.MarkerErrors++
		case errors.Is(decodeErr, ErrMessageType):
			s.MessageTypeErrors++
		default:
			s.OtherErrors++
		}
		return
	}

	s.DecodedCaptures++
	for _, m := range msgs {
		switch m.Type {
		case MsgState:
			s.StateMessages++
		case MsgOff:
			s.OffMessages++
		default:
			s.UtilMessages++
		}
	}
}

// Errors returns the total number of failed captures
func (s *Statistics) Errors() uint64 {
	return s.TotalCaptures - s.DecodedCaptures
}

// CalculateRates calculates capture and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.CaptureRate = float64(s.TotalCaptures) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// SuccessRate returns the percentage of captures that decoded
func (s *Statistics) SuccessRate() float64 {
	if s.TotalCaptures == 0 {
		return 0
	}
	return float64(s.DecodedCaptures) / float64(s.TotalCaptures) * 100
}

// Format returns a human-readable statistics summary
func (s *Statistics) Format() string {
	s.CalculateRates()
	elapsed := time.Since(s.StartTime).Round(time.Second)

	result := fmt.Sprintf("=== Statistics (%s) ===\n", elapsed)
	result += fmt.Sprintf("Captures: %d total, %d decoded (%.1f%%)\n", s.TotalCaptures, s.DecodedCaptures, s.SuccessRate())
	result += fmt.Sprintf("Messages: %d state, %d off, %d util\n", s.StateMessages, s.OffMessages, s.UtilMessages)
	result += fmt.Sprintf("Errors:   header=%d timing=%d marker=%d type=%d length=%d checksum=%d other=%d\n",
		s.HeaderErrors, s.TimingErrors, s.MarkerErrors, s.MessageTypeErrors, s.FrameLengthErrors, s.ChecksumErrors, s.OtherErrors)
	result += fmt.Sprintf("Rates:    %.2f captures/s, %.2f errors/s\n", s.CaptureRate, s.ErrorRate)
	return result
}
