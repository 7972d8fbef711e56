// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/mistral/internal/link"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

const (
	reconnectBackoff    = 1 * time.Second
	maxReconnectBackoff = 30 * time.Second
)

// connectionManager keeps a bridge connected and presents it to the
// controller as one transmitter and one capture stream across reconnects
type connectionManager struct {
	driver   *irdrive.BridgeDriver
	connInfo string
	mu       sync.RWMutex
	captures chan fujitsu.RawCapture

	dial        func(ctx context.Context) (*irdrive.BridgeDriver, string, error)
	backoff     time.Duration
	onLost      func(err error)
	onReconnect func(connInfo string)
}

func newConnectionManager(driver *irdrive.BridgeDriver, connInfo string, password link.PasswordFunc) *connectionManager {
	return &connectionManager{
		driver:   driver,
		connInfo: connInfo,
		captures: make(chan fujitsu.RawCapture, 4),
		dial: func(ctx context.Context) (*irdrive.BridgeDriver, string, error) {
			return openBridgeWith(ctx, password)
		},
		backoff: reconnectBackoff,
	}
}

func (cm *connectionManager) getDriver() *irdrive.BridgeDriver {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.driver
}

func (cm *connectionManager) setDriver(d *irdrive.BridgeDriver, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.driver = d
	cm.connInfo = connInfo
}

// Transmit sends through whichever bridge is currently connected
func (cm *connectionManager) Transmit(ctx context.Context, frame fujitsu.PulseFrame) (irdrive.Completion, error) {
	d := cm.getDriver()
	if d == nil {
		return nil, irdrive.ErrClosed
	}
	return d.Transmit(ctx, frame)
}

func (cm *connectionManager) ping(ctx context.Context) (time.Duration, error) {
	d := cm.getDriver()
	if d == nil {
		return 0, irdrive.ErrClosed
	}
	return d.Ping(ctx)
}

func (cm *connectionManager) stats() irdrive.BridgeStats {
	if d := cm.getDriver(); d != nil {
		return d.Stats()
	}
	return irdrive.BridgeStats{}
}

// run serves the current bridge and reconnects whenever the link drops
func (cm *connectionManager) run(ctx context.Context) error {
	for {
		err := cm.serve(ctx, cm.getDriver())
		if ctx.Err() != nil {
			return nil
		}
		if cm.onLost != nil {
			cm.onLost(err)
		}

		if !cm.reconnect(ctx) {
			return nil
		}
	}
}

// serve runs one driver and forwards its captures until the link fails
func (cm *connectionManager) serve(ctx context.Context, d *irdrive.BridgeDriver) error {
	if d == nil {
		return irdrive.ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			select {
			case c := <-d.Captures():
				select {
				case cm.captures <- c:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return d.Run(ctx)
}

// reconnect attempts to reconnect with exponential backoff.
// Returns false if ctx ended during reconnection.
func (cm *connectionManager) reconnect(ctx context.Context) bool {
	if d := cm.getDriver(); d != nil {
		d.Close()
	}
	cm.setDriver(nil, "")

	backoff := cm.backoff
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		d, connInfo, err := cm.dial(ctx)
		if err == nil {
			cm.setDriver(d, connInfo)
			if cm.onReconnect != nil {
				cm.onReconnect(connInfo)
			}
			return true
		}
		log.Debugw("reconnect failed", "error", err, "backoff", backoff)

		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

func (cm *connectionManager) close() error {
	if d := cm.getDriver(); d != nil {
		return d.Close()
	}
	return nil
}
