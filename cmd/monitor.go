// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mistral/internal/config"
	"github.com/Thermoquad/mistral/internal/gpio"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode frames captured from the physical remote",
	Long: `Listen to the IR receiver and decode every frame sent by the unit's remote.

Captures come from the IR bridge, or from the GPIO receiver pin when no
bridge is configured. Each capture is decoded and:
  - Decoded states are printed as they arrive
  - Decode failures are highlighted with the reason and sample offset
  - Statistics (capture rate, error rate, errors per kind) are shown
    at a configurable interval

Use --show-all to print every message and its bytes, not just the state.
Monitoring is passive: nothing is transmitted and no state is stored.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show every decoded message and its bytes")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// captureSource is a receive path and the loops that feed it
type captureSource struct {
	captures <-chan fujitsu.RawCapture
	loops    []func(context.Context) error
	close    func() error
	info     string
	// bridge is nil for the GPIO receiver
	bridge *irdrive.BridgeDriver
}

func openCaptureSource(ctx context.Context) (*captureSource, error) {
	if cfg.HasBridge() {
		driver, info, err := openBridge(ctx)
		if err != nil {
			return nil, err
		}
		return &captureSource{
			captures: driver.Captures(),
			loops:    []func(context.Context) error{driver.Run},
			close:    driver.Close,
			info:     info,
			bridge:   driver,
		}, nil
	}

	if cfg.Device.ReceiverPin == config.NoPin {
		return nil, fmt.Errorf("no receiver: configure bridge.port, bridge.url or device.receiver_pin")
	}
	in, err := gpio.NewChip(cfg.Device.GPIOChip).OpenInput(cfg.Device.ReceiverPin, cfg.Device.ReceiverActiveLow)
	if err != nil {
		return nil, err
	}
	receiver := irdrive.NewEdgeReceiver(irdrive.WithFrameGap(cfg.Climate.FrameGap))
	return &captureSource{
		captures: receiver.Captures(),
		loops: []func(context.Context) error{
			receiver.Run,
			func(ctx context.Context) error { return in.Watch(ctx, receiver.Feed) },
		},
		close: in.Close,
		info:  fmt.Sprintf("GPIO %s: receiver %d", cfg.Device.GPIOChip, cfg.Device.ReceiverPin),
	}, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openCaptureSource(ctx)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer src.close()

	// Loop failures end the monitor
	done := make(chan error, 1)
	go func() { done <- runUntilDone(ctx, src.loops...) }()

	decoder := fujitsu.NewDecoder(cfg.Climate.TolerancePercent)
	if useTUI {
		return runMonitorTUI(ctx, src, decoder, done)
	}
	return runMonitorText(ctx, src, decoder, done)
}

// decodedCapture is the outcome of decoding one capture
type decodedCapture struct {
	capture  fujitsu.RawCapture
	messages []fujitsu.Message
	state    fujitsu.State
	hasState bool
	err      error
}

func decodeCapture(d *fujitsu.Decoder, stats *fujitsu.Statistics, c fujitsu.RawCapture) decodedCapture {
	msgs, err := d.DecodeMessages(c)
	stats.Update(msgs, err)
	out := decodedCapture{capture: c, messages: msgs, err: err}
	if err != nil {
		return out
	}
	if s, err := fujitsu.StateFromMessages(msgs); err == nil {
		out.state, out.hasState = s, true
	}
	return out
}

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	stateLabel = color.New(color.FgGreen, color.Bold)
	infoLabel  = color.New(color.FgCyan)
	faintText  = color.New(color.Faint)
)

// printDecodeError prints a decode failure in highlighted format
func printDecodeError(d decodedCapture) {
	timestamp := d.capture.Timestamp.Format("15:04:05.000")
	fmt.Printf("[%s] %s %v\n", timestamp, errorLabel.Sprint("DECODE ERROR:"), d.err)
	var de *fujitsu.DecodeError
	if errors.As(d.err, &de) {
		fmt.Printf("  Kind: %v, offset %d of %d samples\n", de.Kind, de.Offset, len(d.capture.Samples))
	}
	fmt.Printf("  >>> CAPTURE REJECTED <<<\n\n")
}

// printDecoded prints the state of a capture, and with --show-all its messages
func printDecoded(d decodedCapture) {
	timestamp := d.capture.Timestamp.Format("15:04:05.000")
	if d.hasState {
		fmt.Printf("[%s] %s %s\n", timestamp, stateLabel.Sprint("STATE:"), d.state)
	} else {
		fmt.Printf("[%s] %s %d message(s) without a state\n", timestamp, infoLabel.Sprint("UTIL:"), len(d.messages))
	}
	if !showAll {
		return
	}
	for _, m := range d.messages {
		fmt.Printf("  %s\n", fujitsu.FormatMessage(m))
		if b, err := m.Bytes(); err == nil {
			fmt.Printf("    %s\n", faintText.Sprint(fujitsu.FormatBytes(b)))
		}
	}
	fmt.Printf("  %d samples\n", len(d.capture.Samples))
}

func formatBridgeStats(s irdrive.BridgeStats) string {
	return fmt.Sprintf("Bridge:   %d packets, %d captures (%d dropped), %d decode errors, %d invalid\n",
		s.PacketsReceived, s.Captures, s.CapturesDropped, s.DecodeErrors, s.InvalidPackets)
}

// runMonitorText prints captures as lines of text
func runMonitorText(ctx context.Context, src *captureSource, decoder *fujitsu.Decoder, done <-chan error) error {
	fmt.Printf("Mistral - Capture Monitor\n")
	fmt.Printf("Connection: %s\n", src.info)
	fmt.Printf("Tolerance: %d%%\n", decoder.Tolerance())
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All messages\n")
	} else {
		fmt.Printf("Mode: States only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := fujitsu.NewStatistics()
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case c := <-src.captures:
			d := decodeCapture(decoder, stats, c)
			if d.err != nil {
				printDecodeError(d)
				continue
			}
			printDecoded(d)

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.Format())
			if src.bridge != nil {
				fmt.Print(formatBridgeStats(src.bridge.Stats()))
			}
			fmt.Println()

		case err := <-done:
			return err

		case <-ctx.Done():
			return nil
		}
	}
}

// runMonitorTUI feeds captures into the terminal UI
func runMonitorTUI(ctx context.Context, src *captureSource, decoder *fujitsu.Decoder, done <-chan error) error {
	m := newMonitorModel(src.info, decoder.Tolerance(), showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	go func() {
		stats := fujitsu.NewStatistics()
		for {
			select {
			case c := <-src.captures:
				d := decodeCapture(decoder, stats, c)
				snapshot := *stats
				p.Send(captureMsg{decoded: d, stats: snapshot})
			case err := <-done:
				p.Send(linkDownMsg{err: err})
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	if src.bridge != nil {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					p.Send(bridgeStatsMsg(src.bridge.Stats()))
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	if fm, ok := final.(monitorModel); ok && fm.linkErr != nil {
		return fm.linkErr
	}
	return nil
}
