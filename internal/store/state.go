// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/mistral/pkg/climate"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

const (
	upsertStateSQL = `
		INSERT INTO climate_state (id, power, mode, target_dc, fan, swing, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			power=excluded.power,
			mode=excluded.mode,
			target_dc=excluded.target_dc,
			fan=excluded.fan,
			swing=excluded.swing,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT power, mode, target_dc, fan, swing
		FROM climate_state WHERE id=?
	`
)

// StateSQLite keeps the committed state in the single climate_state row
type StateSQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ climate.Store = (*StateSQLite)(nil)

// NewStateSQLite returns a climate.Store backed by db
func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db, now: time.Now}
}

// Save upserts the state row
func (r *StateSQLite) Save(ctx context.Context, s fujitsu.State) error {
	_, err := r.db.ExecContext(ctx, upsertStateSQL,
		stateRowID,
		s.Power,
		s.Mode.String(),
		int64(s.Temperature),
		s.Fan.String(),
		s.Swing.String(),
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save climate state: %w", err)
	}
	return nil
}

// Load reads the state row; ok is false before the first Save
func (r *StateSQLite) Load(ctx context.Context) (fujitsu.State, bool, error) {
	var (
		s                fujitsu.State
		mode, fan, swing string
		target           int64
	)
	err := r.db.QueryRowContext(ctx, selectStateSQL, stateRowID).Scan(&s.Power, &mode, &target, &fan, &swing)
	if errors.Is(err, sql.ErrNoRows) {
		return fujitsu.State{}, false, nil
	}
	if err != nil {
		return fujitsu.State{}, false, fmt.Errorf("load climate state: %w", err)
	}

	if s.Mode, err = fujitsu.ParseMode(mode); err != nil {
		return fujitsu.State{}, false, fmt.Errorf("load climate state: %w", err)
	}
	if s.Fan, err = fujitsu.ParseFanSpeed(fan); err != nil {
		return fujitsu.State{}, false, fmt.Errorf("load climate state: %w", err)
	}
	if s.Swing, err = fujitsu.ParseSwing(swing); err != nil {
		return fujitsu.State{}, false, fmt.Errorf("load climate state: %w", err)
	}
	s.Temperature = fujitsu.Temperature(target)

	return s, true, nil
}
