// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mistral/internal/link"
	"github.com/Thermoquad/mistral/internal/logger"
	"github.com/Thermoquad/mistral/internal/store"
	"github.com/Thermoquad/mistral/pkg/climate"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the air conditioner",
	Long: `Control the unit through the IR bridge with an interactive terminal UI.

Features:
  - Current state and controller status (idle, transmitting, awaiting feedback)
  - Mode list, target temperature, fan speed and swing selectors
  - Apply and power buttons; transmissions wait for bridge confirmation
  - Changes made with the physical remote show up as they are received
  - Bridge uptime and link statistics
  - Event logging
  - Automatic reconnection on connection loss

Tab switches between fields. Arrow keys move through the mode list and
cycle fan speed; space toggles swing; enter applies.

Committed states are stored in the configured SQLite database, shared with
"mistral apply" and "mistral serve".`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Log lines would tear the alt screen; the event log shows changes instead
	log = logger.Nop()

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	events := store.NewEventSQLite(db)

	password := link.CachePassword(link.PromptPassword)
	driver, connInfo, err := openBridgeWith(ctx, password)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	cm := newConnectionManager(driver, connInfo, password)
	defer cm.close()

	ccfg, err := cfg.ControllerConfig()
	if err != nil {
		return err
	}
	ctrl, err := climate.New(ctx, ccfg, cm, store.NewStateSQLite(db),
		climate.WithLogger(log.SugaredLogger))
	if err != nil {
		return err
	}
	ctrl.OnChange(recordChange(events, log))

	m := newControlModel(ctx, ctrl, cm, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.onLost = func(err error) { p.Send(connectionLostMsg{err: err}) }
	cm.onReconnect = func(connInfo string) { p.Send(reconnectedMsg{connInfo: connInfo}) }
	ctrl.OnChange(func(c climate.Change) { p.Send(stateChangedMsg(c)) })

	go func() { _ = cm.run(ctx) }()
	go func() { _ = ctrl.Run(ctx, cm.captures) }()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
