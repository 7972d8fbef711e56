// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package climate owns the thermostat state of one infrared-controlled unit.
//
// The Controller validates requested states against a capability table,
// encodes and transmits them with at most one frame in flight, and commits a
// state only after the driver confirmed the transmission. Captures from the
// unit's own remote control are decoded and folded into the state as well.
package climate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

// DefaultTransmitTimeout bounds the wait for a transmission to be confirmed
const DefaultTransmitTimeout = 2 * time.Second

// Change is delivered to OnChange listeners after a state was committed
type Change struct {
	Previous fujitsu.State `json:"previous"`
	State    fujitsu.State `json:"state"`
	Source   Source        `json:"source"`
	At       time.Time     `json:"at"`
}

// Config is the construction-time record for a controller
type Config struct {
	ID               string
	Name             string
	Capabilities     Capabilities
	TransmitTimeout  time.Duration
	TolerancePercent int
}

// Stats counts controller activity
type Stats struct {
	Applies       uint64
	Transmissions uint64
	Rejected      uint64
	Busy          uint64
	Timeouts      uint64
	Failures      uint64
	Received      uint64
	Dropped       uint64
	Decode        fujitsu.Statistics
}

// Controller is the climate state machine of one unit
type Controller struct {
	id       string
	name     string
	caps     Capabilities
	timeout  time.Duration
	decoder  *fujitsu.Decoder
	tx       irdrive.Transmitter
	store    Store
	log      *zap.SugaredLogger
	commitMu sync.Mutex

	mu        sync.Mutex
	status    Status
	state     fujitsu.State
	listeners []func(Change)
	stats     Stats
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller's logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Controller) { c.log = log }
}

// New creates a controller and loads its last committed state from store.
// An empty store starts from the manufacturer default.
func New(ctx context.Context, cfg Config, tx irdrive.Transmitter, store Store, opts ...Option) (*Controller, error) {
	if tx == nil {
		return nil, fmt.Errorf("transmitter is required")
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if err := cfg.Capabilities.Check(); err != nil {
		return nil, fmt.Errorf("invalid capabilities: %w", err)
	}
	timeout := cfg.TransmitTimeout
	if timeout <= 0 {
		timeout = DefaultTransmitTimeout
	}

	c := &Controller{
		id:      cfg.ID,
		name:    cfg.Name,
		caps:    cfg.Capabilities,
		timeout: timeout,
		decoder: fujitsu.NewDecoder(cfg.TolerancePercent),
		tx:      tx,
		store:   store,
		log:     zap.NewNop().Sugar(),
		state:   fujitsu.DefaultState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stats.Decode = *fujitsu.NewStatistics()

	s, ok, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if ok {
		c.state = s.Normalize()
	}

	c.log.Infow("climate controller ready", "id", c.id, "name", c.name, "state", c.state.String())
	return c, nil
}

// ID returns the configured device id
func (c *Controller) ID() string { return c.id }

// Name returns the configured device name
func (c *Controller) Name() string { return c.name }

// Capabilities returns the capability table
func (c *Controller) Capabilities() Capabilities { return c.caps }

// State returns the committed state
func (c *Controller) State() fujitsu.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the transmission state
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Stats returns a snapshot of the counters
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// OnChange registers fn to be called after every committed change.
// Listeners run on the committing goroutine, outside the controller lock.
func (c *Controller) OnChange(fn func(Change)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Apply validates s, transmits it and commits it once the driver confirmed
// the frame. Powered-off states are committed in normalized form.
//
// Apply returns an *InvalidStateError before touching hardware, ErrBusy while
// another transmission is in flight and a *TransmissionTimeoutError when the
// driver did not confirm in time. State is unchanged on every error.
//
// ctx only bounds the wait before the driver accepts the frame. After that
// the unit may already be changing, so the confirmation is awaited for the
// full transmit timeout and committed even if ctx has ended.
func (c *Controller) Apply(ctx context.Context, s fujitsu.State) error {
	if err := c.caps.Validate(s); err != nil {
		c.count(func(st *Stats) { st.Rejected++ })
		return err
	}
	next := s.Normalize()

	c.mu.Lock()
	if c.status != StatusIdle {
		c.stats.Busy++
		c.mu.Unlock()
		return ErrBusy
	}
	c.stats.Applies++
	prev := c.state
	if prev == next {
		c.mu.Unlock()
		c.log.Debugw("state unchanged, nothing to send", "state", next.String())
		return nil
	}
	c.status = StatusTransmitting
	c.mu.Unlock()
	defer c.setStatus(StatusIdle)

	if err := c.transmit(ctx, prev, next); err != nil {
		return err
	}
	return c.commit(context.WithoutCancel(ctx), prev, next, SourceTransmit)
}

// transmit sends the messages moving the unit from prev to next and waits for confirmation
func (c *Controller) transmit(ctx context.Context, prev, next fujitsu.State) error {
	msgs := Plan(prev, next)
	if len(msgs) == 0 {
		return nil
	}

	frame, err := fujitsu.EncodeMessages(msgs...)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	done, err := c.tx.Transmit(txCtx, frame)
	if err != nil {
		c.count(func(st *Stats) { st.Failures++ })
		return fmt.Errorf("transmit failed: %w", err)
	}
	c.setStatus(StatusAwaitingFeedback)
	c.count(func(st *Stats) { st.Transmissions++ })
	c.log.Debugw("frame handed to driver", "messages", len(msgs), "duration", frame.Duration())

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			break
		}
		c.count(func(st *Stats) { st.Failures++ })
		return fmt.Errorf("transmission failed: %w", err)
	case <-txCtx.Done():
	}

	c.count(func(st *Stats) { st.Timeouts++ })
	c.log.Warnw("transmission not confirmed", "timeout", c.timeout, "state", next.String())
	return &TransmissionTimeoutError{Timeout: c.timeout}
}

// HandleCapture decodes a capture from the unit's remote control and
// commits the state it carries. Captures are dropped with ErrBusy while a
// transmission is in flight, which also hides the receiver's echo of our own frame.
func (c *Controller) HandleCapture(ctx context.Context, capture fujitsu.RawCapture) error {
	msgs, err := c.decoder.DecodeMessages(capture)

	// Held until the change is stored so an Apply starting meanwhile plans
	// from the received state and commits after it.
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	c.mu.Lock()
	c.stats.Received++
	c.stats.Decode.Update(msgs, err)
	if err != nil {
		c.mu.Unlock()
		c.log.Debugw("capture not decoded", "samples", len(capture.Samples), "error", err)
		return err
	}
	if c.status != StatusIdle {
		c.stats.Dropped++
		c.mu.Unlock()
		return ErrBusy
	}
	prev := c.state
	next := received(prev, msgs)
	if next == prev {
		c.mu.Unlock()
		return nil
	}
	c.state = next
	listeners := append([]func(Change){}, c.listeners...)
	c.mu.Unlock()

	c.log.Infow("state received from remote", "state", next.String())
	return c.persist(ctx, prev, next, SourceReceive, listeners)
}

// received folds the messages of a remote-control capture into s
func received(s fujitsu.State, msgs []fujitsu.Message) fujitsu.State {
	for _, m := range msgs {
		switch m.Type {
		case fujitsu.MsgState:
			if !s.Power {
				s.Swing = fujitsu.SwingOff
			}
			s.Power = true
			s.Mode = m.Mode
			s.Temperature = m.Temperature
			s.Fan = m.Fan
		case fujitsu.MsgOff:
			s = fujitsu.DefaultState()
		}
	}
	return s
}

// Run feeds captures to HandleCapture until ctx is cancelled or captures is closed
func (c *Controller) Run(ctx context.Context, captures <-chan fujitsu.RawCapture) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case capture, ok := <-captures:
			if !ok {
				return nil
			}
			if err := c.HandleCapture(ctx, capture); err != nil && !errors.Is(err, fujitsu.ErrDecode) {
				c.log.Debugw("capture ignored", "error", err)
			}
		}
	}
}

// commit updates the in-memory state, stores it and notifies listeners.
// A storage failure still updates memory since the unit already changed.
func (c *Controller) commit(ctx context.Context, prev, next fujitsu.State, source Source) error {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	c.mu.Lock()
	c.state = next
	listeners := append([]func(Change){}, c.listeners...)
	c.mu.Unlock()

	return c.persist(ctx, prev, next, source, listeners)
}

// persist saves an already committed state and notifies listeners. Callers hold commitMu.
func (c *Controller) persist(ctx context.Context, prev, next fujitsu.State, source Source, listeners []func(Change)) error {
	saveErr := c.store.Save(ctx, next)

	change := Change{Previous: prev, State: next, Source: source, At: time.Now()}
	for _, fn := range listeners {
		fn(change)
	}

	if saveErr != nil {
		c.log.Errorw("state applied but not persisted", "state", next.String(), "error", saveErr)
		return fmt.Errorf("state applied but not persisted: %w", saveErr)
	}
	c.log.Infow("state committed", "source", source.String(), "state", next.String())
	return nil
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Controller) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
