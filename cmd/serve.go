// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mistral/internal/config"
	"github.com/Thermoquad/mistral/internal/gpio"
	"github.com/Thermoquad/mistral/internal/httpapi"
	"github.com/Thermoquad/mistral/internal/link"
	"github.com/Thermoquad/mistral/internal/logger"
	"github.com/Thermoquad/mistral/internal/store"
	"github.com/Thermoquad/mistral/pkg/climate"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the climate controller with its HTTP API",
	Long: `Run the climate controller as a long-lived service.

The controller transmits through the configured IR bridge, or through GPIO
pins when no bridge is configured, and follows the physical remote through the
bridge's captures or the GPIO receiver. Committed states are stored in SQLite
and every change is appended to the event log.

HTTP API:
  GET  /health                       liveness
  GET  /api/v1/climate               current state and controller status
  PUT  /api/v1/climate               apply a full state
  GET  /api/v1/climate/capabilities  capability table
  GET  /api/v1/events                change log (?from=&to=&source=&limit=)
  GET  /ws                           change push (WebSocket)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("db", "mistral.db", "SQLite database path")
	_ = v.BindPFlag("http.listen", serveCmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("storage.path", serveCmd.Flags().Lookup("db"))
}

// hardware is the transmit and receive path driven by the controller
type hardware struct {
	tx       irdrive.Transmitter
	captures <-chan fujitsu.RawCapture
	loops    []func(context.Context) error
	close    func() error
	info     string
}

// openHardware prefers the bridge and falls back to GPIO pins.
// A bridge link that drops is reconnected in the background.
func openHardware(ctx context.Context) (*hardware, error) {
	if cfg.HasBridge() {
		password := link.CachePassword(link.PromptPassword)
		driver, info, err := openBridgeWith(ctx, password)
		if err != nil {
			return nil, err
		}
		return bridgeHardware(newConnectionManager(driver, info, password), info), nil
	}

	if cfg.Device.TransmitterPin == config.NoPin {
		return nil, fmt.Errorf("no transmitter: configure bridge.port, bridge.url or device.transmitter_pin")
	}

	chip := gpio.NewChip(cfg.Device.GPIOChip)
	out, err := chip.OpenOutput(cfg.Device.TransmitterPin)
	if err != nil {
		return nil, err
	}
	hw := &hardware{
		tx:    irdrive.NewPinTransmitter(out),
		close: out.Close,
		info:  fmt.Sprintf("GPIO %s: transmitter %d", cfg.Device.GPIOChip, cfg.Device.TransmitterPin),
	}
	if cfg.Device.ReceiverPin == config.NoPin {
		return hw, nil
	}

	in, err := chip.OpenInput(cfg.Device.ReceiverPin, cfg.Device.ReceiverActiveLow)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	receiver := irdrive.NewEdgeReceiver(irdrive.WithFrameGap(cfg.Climate.FrameGap))
	hw.captures = receiver.Captures()
	hw.loops = append(hw.loops,
		receiver.Run,
		func(ctx context.Context) error { return in.Watch(ctx, receiver.Feed) },
	)
	hw.close = func() error { return errors.Join(out.Close(), in.Close()) }
	hw.info += fmt.Sprintf(", receiver %d", cfg.Device.ReceiverPin)
	return hw, nil
}

// bridgeHardware serves the controller through cm, logging link loss and recovery
func bridgeHardware(cm *connectionManager, info string) *hardware {
	cm.onLost = func(err error) {
		log.Warnw("bridge link lost, reconnecting", "error", err)
	}
	cm.onReconnect = func(connInfo string) {
		log.Infow("bridge reconnected", "link", connInfo)
	}
	return &hardware{
		tx:       cm,
		captures: cm.captures,
		loops:    []func(context.Context) error{cm.run},
		close:    cm.close,
		info:     info,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	events := store.NewEventSQLite(db)

	hw, err := openHardware(ctx)
	if err != nil {
		return err
	}
	defer hw.close()

	ccfg, err := cfg.ControllerConfig()
	if err != nil {
		return err
	}
	ctrl, err := climate.New(ctx, ccfg, hw.tx, store.NewStateSQLite(db),
		climate.WithLogger(log.Named("climate").SugaredLogger))
	if err != nil {
		return err
	}

	hub := httpapi.NewHub()
	ctrl.OnChange(hub.Publish)
	ctrl.OnChange(recordChange(events, log))

	if cfg.Log.Level != logger.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(ctrl, events, hub, log.Named("http").SugaredLogger)
	server := httpapi.NewServer(cfg.HTTP.Listen, handler.Routes())

	loops := append([]func(context.Context) error{}, hw.loops...)
	if hw.captures != nil {
		loops = append(loops, func(ctx context.Context) error { return ctrl.Run(ctx, hw.captures) })
	}
	loops = append(loops, func(ctx context.Context) error { return server.RunContext(ctx, shutdownTimeout) })

	log.Infow("mistral serving",
		"device", ccfg.ID,
		"hardware", hw.info,
		"listen", cfg.HTTP.Listen,
		"db", cfg.Storage.Path,
		"state", ctrl.State().String())

	if err := runUntilDone(ctx, loops...); err != nil {
		log.Errorw("mistral stopped", "error", err)
		return err
	}
	log.Infow("mistral stopped")
	return nil
}

// recordChange appends every committed change to the event log
func recordChange(events *store.EventSQLite, log *logger.Logger) func(climate.Change) {
	return func(c climate.Change) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		e, err := events.Append(ctx, store.EventFromChange(c))
		if err != nil {
			log.Errorw("failed to record change", "error", err)
			return
		}
		log.Infow("state changed", "source", e.Source, "state", e.State.String(), "event", e.ID)
	}
}

// runUntilDone runs every loop until ctx ends or one loop returns, then
// cancels the rest and waits for them. Cancellation is not an error.
func runUntilDone(ctx context.Context, loops ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, loop := range loops {
		wg.Add(1)
		go func(loop func(context.Context) error) {
			defer wg.Done()
			defer cancel()
			if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(loop)
	}
	wg.Wait()
	return firstErr
}
