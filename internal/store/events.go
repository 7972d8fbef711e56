// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/mistral/pkg/climate"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// Event is one committed state change
type Event struct {
	ID         string        `json:"id"`
	OccurredAt time.Time     `json:"occurred_at"`
	Source     string        `json:"source"`
	Previous   fujitsu.State `json:"previous"`
	State      fujitsu.State `json:"state"`
}

// EventFromChange converts a controller change notification
func EventFromChange(c climate.Change) Event {
	return Event{
		OccurredAt: c.At,
		Source:     c.Source.String(),
		Previous:   c.Previous,
		State:      c.State,
	}
}

// EventFilter narrows List. Zero values match everything.
type EventFilter struct {
	From   time.Time
	To     time.Time
	Source string
	// Limit keeps only the newest events when positive
	Limit int
}

const insertEventSQL = `
		INSERT INTO climate_events (id, occurred_at, source, previous, state)
		VALUES (?, ?, ?, ?, ?)
	`

// EventSQLite is the change log
type EventSQLite struct {
	db *sql.DB
}

// NewEventSQLite returns an event log backed by db
func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

// Append inserts e, assigning an id and timestamp when missing
func (r *EventSQLite) Append(ctx context.Context, e Event) (Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	e.OccurredAt = e.OccurredAt.UTC()
	e.Source = strings.ToLower(strings.TrimSpace(e.Source))
	if _, ok := climate.ParseSource(e.Source); !ok {
		return Event{}, fmt.Errorf("append event: unknown source %q", e.Source)
	}

	previous, err := json.Marshal(e.Previous)
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}
	state, err := json.Marshal(e.State)
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, insertEventSQL,
		e.ID,
		e.OccurredAt,
		e.Source,
		string(previous),
		string(state),
	); err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}
	return e, nil
}

// List returns the events matching f, oldest first
func (r *EventSQLite) List(ctx context.Context, f EventFilter) ([]Event, error) {
	var (
		conds []string
		args  []any
	)

	if !f.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, f.To.UTC())
	}
	if source := strings.ToLower(strings.TrimSpace(f.Source)); source != "" {
		conds = append(conds, "source = ?")
		args = append(args, source)
	}

	q := `SELECT id, occurred_at, source, previous, state FROM climate_events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if f.Limit > 0 {
		q += " ORDER BY occurred_at DESC LIMIT ?"
		args = append(args, f.Limit)
	} else {
		q += " ORDER BY occurred_at ASC"
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, 64)
	for rows.Next() {
		var (
			e               Event
			previous, state string
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Source, &previous, &state); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		if err := json.Unmarshal([]byte(previous), &e.Previous); err != nil {
			return nil, fmt.Errorf("event %s: previous state: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(state), &e.State); err != nil {
			return nil, fmt.Errorf("event %s: state: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	if f.Limit > 0 {
		slices.Reverse(out)
	}
	return out, nil
}
