// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

//go:build !linux

package gpio

import (
	"context"
	"errors"

	"github.com/Thermoquad/mistral/pkg/irdrive"
)

// ErrUnsupported is returned on systems without the GPIO character device
var ErrUnsupported = errors.New("GPIO lines require Linux")

// Chip is unavailable outside Linux
type Chip struct{}

// NewChip returns a Chip whose lines cannot be requested
func NewChip(string) *Chip { return &Chip{} }

// Output is unavailable outside Linux
type Output struct{}

// OpenOutput always fails with ErrUnsupported
func (*Chip) OpenOutput(int) (*Output, error) { return nil, ErrUnsupported }

// Set always fails with ErrUnsupported
func (*Output) Set(bool) error { return ErrUnsupported }

// Close does nothing
func (*Output) Close() error { return nil }

// Input is unavailable outside Linux
type Input struct{}

// OpenInput always fails with ErrUnsupported
func (*Chip) OpenInput(int, bool) (*Input, error) { return nil, ErrUnsupported }

// Watch always fails with ErrUnsupported
func (*Input) Watch(context.Context, func(irdrive.Edge) bool) error { return ErrUnsupported }

// Dropped is always zero
func (*Input) Dropped() uint64 { return 0 }

// Close does nothing
func (*Input) Close() error { return nil }
