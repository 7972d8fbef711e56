// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mistral/internal/store"
	"github.com/Thermoquad/mistral/pkg/climate"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Send one state change to the unit through the bridge",
	Long: `Apply a thermostat state through the IR bridge and wait for the bridge to
confirm the transmission.

Settings not given on the command line keep their stored value, so
"mistral apply --temp 23" only changes the target temperature. The committed
state is written to the configured SQLite database and the event log.

Examples:
  mistral apply --port /dev/ttyACM0 --mode cool --temp 22 --fan auto
  mistral apply --off

Exit codes:
  0 - State applied (or already current)
  1 - Rejected, busy, timed out or failed
  2 - Connection error`,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
	addStateFlags(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	events := store.NewEventSQLite(db)

	driver, info, err := openBridge(ctx)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer driver.Close()
	go func() { _ = driver.Run(ctx) }()

	ccfg, err := cfg.ControllerConfig()
	if err != nil {
		return err
	}
	ctrl, err := climate.New(ctx, ccfg, driver, store.NewStateSQLite(db),
		climate.WithLogger(log.Named("climate").SugaredLogger))
	if err != nil {
		return err
	}
	ctrl.OnChange(recordChange(events, log))

	next, err := stateFromFlags(cmd, ctrl.State())
	if err != nil {
		return err
	}

	fmt.Printf("Mistral - Apply\n")
	fmt.Printf("Connection: %s\n", info)
	fmt.Printf("Current:    %s\n", ctrl.State())
	fmt.Printf("Requested:  %s\n\n", next)

	if err := ctrl.Apply(ctx, next); err != nil {
		var invalid *climate.InvalidStateError
		switch {
		case errors.As(err, &invalid):
			return exitError(1, fmt.Errorf("rejected: %s %s", invalid.Field, invalid.Reason))
		case errors.Is(err, climate.ErrTransmissionTimeout):
			return exitError(1, fmt.Errorf("bridge did not confirm the transmission: %w", err))
		default:
			return exitError(1, err)
		}
	}

	fmt.Printf("Applied:    %s\n", ctrl.State())
	return nil
}
