// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mistral/internal/config"
	"github.com/Thermoquad/mistral/internal/logger"
	"github.com/Thermoquad/mistral/pkg/bridge"
	"github.com/Thermoquad/mistral/pkg/climate"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

// ============================================================
// State flags
// ============================================================

func TestStateFromFlags(t *testing.T) {
	base := fujitsu.State{
		Power:       true,
		Mode:        fujitsu.ModeHeat,
		Temperature: fujitsu.Celsius(26),
		Fan:         fujitsu.FanLow,
		Swing:       fujitsu.SwingVertical,
	}

	tests := []struct {
		name    string
		args    []string
		base    fujitsu.State
		want    fujitsu.State
		wantErr string
	}{
		{
			name: "temperature only keeps the rest",
			args: []string{"--temp", "23"},
			base: base,
			want: fujitsu.State{Power: true, Mode: fujitsu.ModeHeat, Temperature: fujitsu.Celsius(23), Fan: fujitsu.FanLow, Swing: fujitsu.SwingVertical},
		},
		{
			name: "setting powers on",
			args: []string{"--mode", "cool"},
			base: fujitsu.DefaultState(),
			want: fujitsu.State{Power: true, Mode: fujitsu.ModeCool, Temperature: fujitsu.DefaultTemperature, Fan: fujitsu.FanAuto, Swing: fujitsu.SwingOff},
		},
		{
			name: "on alone",
			args: []string{"--on"},
			base: fujitsu.DefaultState(),
			want: fujitsu.State{Power: true, Mode: fujitsu.ModeAuto, Temperature: fujitsu.DefaultTemperature, Fan: fujitsu.FanAuto, Swing: fujitsu.SwingOff},
		},
		{
			name: "off",
			args: []string{"--off"},
			base: base,
			want: fujitsu.State{Power: false, Mode: fujitsu.ModeHeat, Temperature: fujitsu.Celsius(26), Fan: fujitsu.FanLow, Swing: fujitsu.SwingVertical},
		},
		{
			name: "every setting",
			args: []string{"--mode", "dry", "--temp", "18.5", "--fan", "quiet", "--swing", "off"},
			base: base,
			want: fujitsu.State{Power: true, Mode: fujitsu.ModeDry, Temperature: fujitsu.Celsius(18.5), Fan: fujitsu.FanQuiet, Swing: fujitsu.SwingOff},
		},
		{name: "nothing to do", args: nil, base: base, wantErr: "nothing to do"},
		{name: "off with setting", args: []string{"--off", "--temp", "22"}, base: base, wantErr: "--off cannot be combined"},
		{name: "unknown mode", args: []string{"--mode", "turbo"}, base: base, wantErr: "turbo"},
		{name: "unknown fan", args: []string{"--fan", "max"}, base: base, wantErr: "max"},
		{name: "unknown swing", args: []string{"--swing", "sideways"}, base: base, wantErr: "sideways"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &cobra.Command{Use: "test"}
			addStateFlags(c)
			if err := c.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error: %v", err)
			}

			got, err := stateFromFlags(c, tt.base)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("stateFromFlags() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("stateFromFlags() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("stateFromFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ============================================================
// Formatting
// ============================================================

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 seconds"},
		{999 * time.Millisecond, "0 seconds"},
		{time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{time.Minute + 5*time.Second, "1 minute and 5 seconds"},
		{2 * time.Hour, "2 hours"},
		{90061 * time.Second, "1 day, 1 hour, 1 minute, and 1 second"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.in); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeState_Text(t *testing.T) {
	cfg = &config.Config{}
	cfg.Climate.TolerancePercent = fujitsu.DefaultTolerancePercent
	encodeDurations, encodeVerify = true, true
	t.Cleanup(func() { cfg, encodeDurations, encodeVerify = nil, false, false })

	var out bytes.Buffer
	s := fujitsu.State{Power: true, Mode: fujitsu.ModeCool, Temperature: fujitsu.Celsius(22), Fan: fujitsu.FanAuto, Swing: fujitsu.SwingVertical}
	if err := encodeState(&out, s); err != nil {
		t.Fatalf("encodeState() error: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Message 1: STATE", "Message 2: SWING_LOUVER", "Frame:", "Durations: ", "Verify: OK"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestEncodeState_JSON(t *testing.T) {
	encodeJSON = true
	t.Cleanup(func() { encodeJSON = false })

	var out bytes.Buffer
	if err := encodeState(&out, fujitsu.DefaultState()); err != nil {
		t.Fatalf("encodeState() error: %v", err)
	}

	var got encodedFrame
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out.String())
	}
	if len(got.Messages) != 1 || got.Messages[0].Type != "OFF" {
		t.Errorf("messages = %+v, want one OFF", got.Messages)
	}
	if got.CarrierHz != fujitsu.CarrierFrequency {
		t.Errorf("carrier = %d, want %d", got.CarrierHz, fujitsu.CarrierFrequency)
	}

	frame, _ := fujitsu.Encode(fujitsu.DefaultState())
	if len(got.Durations) != len(frame.Durations()) {
		t.Errorf("durations = %d values, want %d", len(got.Durations), len(frame.Durations()))
	}
}

func TestEncodeState_Unsupported(t *testing.T) {
	s := fujitsu.State{Power: true, Mode: fujitsu.ModeCool, Temperature: fujitsu.Celsius(45), Fan: fujitsu.FanAuto}
	var unsupported *fujitsu.UnsupportedStateError
	if err := encodeState(io.Discard, s); !errors.As(err, &unsupported) {
		t.Fatalf("encodeState() error = %v, want UnsupportedStateError", err)
	}
}

func TestDescribeApplyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&climate.InvalidStateError{Field: "target_temperature", Value: fujitsu.Celsius(45), Reason: "outside 16.0°C-30.0°C"}, "Rejected: target_temperature"},
		{&climate.TransmissionTimeoutError{Timeout: 2 * time.Second}, "within 2s"},
		{climate.ErrBusy, "busy"},
		{errors.New("boom"), "Apply failed: boom"},
	}
	for _, tt := range tests {
		if got := describeApplyError(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("describeApplyError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// ============================================================
// runUntilDone
// ============================================================

func TestRunUntilDone_FirstErrorCancelsRest(t *testing.T) {
	boom := errors.New("link down")
	var cancelled atomic.Bool

	err := runUntilDone(context.Background(),
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error {
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("runUntilDone() = %v, want %v", err, boom)
	}
	if !cancelled.Load() {
		t.Error("second loop was not cancelled")
	}
}

func TestRunUntilDone_CancelIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := runUntilDone(ctx,
		func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
		func(ctx context.Context) error { <-ctx.Done(); return nil },
	)
	if err != nil {
		t.Fatalf("runUntilDone() = %v, want nil", err)
	}
}

// ============================================================
// Connection manager
// ============================================================

func TestConnectionManager_NoDriver(t *testing.T) {
	cm := newConnectionManager(nil, "", nil)

	frame, _ := fujitsu.Encode(fujitsu.DefaultState())
	if _, err := cm.Transmit(context.Background(), frame); !errors.Is(err, irdrive.ErrClosed) {
		t.Errorf("Transmit() error = %v, want ErrClosed", err)
	}
	if _, err := cm.ping(context.Background()); !errors.Is(err, irdrive.ErrClosed) {
		t.Errorf("ping() error = %v, want ErrClosed", err)
	}
	if got := cm.stats(); got != (irdrive.BridgeStats{}) {
		t.Errorf("stats() = %+v, want zero", got)
	}
}

// playBridge answers every TRANSMIT on peer with TRANSMIT_DONE
func playBridge(peer net.Conn) {
	decoder := bridge.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := peer.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			p, err := decoder.DecodeByte(b)
			if err != nil || p == nil {
				continue
			}
			if seq, _, _, ok := p.TransmitDurations(); ok {
				peer.Write(bridge.MustEncodePacket(bridge.NewTransmitDone(seq, 120000)))
			}
		}
	}
}

func TestConnectionManager_ServesController(t *testing.T) {
	host, peer := net.Pipe()
	t.Cleanup(func() { peer.Close() })
	go playBridge(peer)

	cm := newConnectionManager(irdrive.NewBridgeDriver(host), "pipe", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- cm.serve(ctx, cm.getDriver()) }()

	ctrl, err := climate.New(ctx, climate.Config{
		ID:           "test",
		Capabilities: climate.DefaultCapabilities(),
	}, cm, nil)
	if err != nil {
		t.Fatalf("climate.New() error: %v", err)
	}

	want := fujitsu.State{Power: true, Mode: fujitsu.ModeCool, Temperature: fujitsu.Celsius(22), Fan: fujitsu.FanAuto}
	if err := ctrl.Apply(ctx, want); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := ctrl.State(); got != want {
		t.Errorf("State() = %v, want %v", got, want)
	}

	// A capture reported by the bridge reaches the manager's stream
	frame, _ := fujitsu.Encode(fujitsu.DefaultState())
	capture := fujitsu.CaptureFromFrame(frame)
	peer.Write(bridge.MustEncodePacket(bridge.NewCapture(capture.Samples)))
	select {
	case got := <-cm.captures:
		if len(got.Samples) != len(capture.Samples) {
			t.Errorf("forwarded %d samples, want %d", len(got.Samples), len(capture.Samples))
		}
	case <-time.After(time.Second):
		t.Fatal("capture was not forwarded")
	}

	peer.Close()
	select {
	case err := <-served:
		if err == nil {
			t.Error("serve() returned nil after the link dropped")
		}
	case <-time.After(time.Second):
		t.Fatal("serve() did not return after the link dropped")
	}
}

func TestBridgeHardware_ReconnectsAfterLinkLoss(t *testing.T) {
	saved := log
	log = logger.Nop()
	t.Cleanup(func() { log = saved })

	first, firstPeer := net.Pipe()
	go playBridge(firstPeer)
	second, secondPeer := net.Pipe()
	t.Cleanup(func() { secondPeer.Close() })
	go playBridge(secondPeer)

	cm := newConnectionManager(irdrive.NewBridgeDriver(first), "first", nil)
	cm.backoff = time.Millisecond
	cm.dial = func(ctx context.Context) (*irdrive.BridgeDriver, string, error) {
		return irdrive.NewBridgeDriver(second), "second", nil
	}
	hw := bridgeHardware(cm, "first")

	lost := make(chan error, 1)
	reconnected := make(chan string, 1)
	logLost, logReconnect := cm.onLost, cm.onReconnect
	cm.onLost = func(err error) {
		logLost(err)
		lost <- err
	}
	cm.onReconnect = func(connInfo string) {
		logReconnect(connInfo)
		reconnected <- connInfo
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runUntilDone(ctx, hw.loops...) }()

	firstPeer.Close()
	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("link loss was not reported")
	}
	select {
	case info := <-reconnected:
		if info != "second" {
			t.Errorf("reconnected to %q, want second", info)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("bridge was not reconnected")
	}
	select {
	case err := <-done:
		t.Fatalf("service stopped after link loss: %v", err)
	default:
	}

	// The controller keeps working through the new link
	ctrl, err := climate.New(ctx, climate.Config{
		ID:           "test",
		Capabilities: climate.DefaultCapabilities(),
	}, hw.tx, nil)
	if err != nil {
		t.Fatalf("climate.New() error: %v", err)
	}
	want := fujitsu.State{Power: true, Mode: fujitsu.ModeHeat, Temperature: fujitsu.Celsius(25), Fan: fujitsu.FanLow}
	if err := ctrl.Apply(ctx, want); err != nil {
		t.Fatalf("Apply() after reconnect error: %v", err)
	}

	frame, _ := fujitsu.Encode(fujitsu.DefaultState())
	capture := fujitsu.CaptureFromFrame(frame)
	go secondPeer.Write(bridge.MustEncodePacket(bridge.NewCapture(capture.Samples)))
	select {
	case <-hw.captures:
	case <-time.After(5 * time.Second):
		t.Fatal("capture from the new link was not forwarded")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("runUntilDone() = %v, want nil on shutdown", err)
	}
}

// ============================================================
// TUI models
// ============================================================

func newTestControlModel(t *testing.T) controlModel {
	t.Helper()
	ctrl, err := climate.New(context.Background(), climate.Config{
		ID:           "test",
		Name:         "Test Unit",
		Capabilities: climate.DefaultCapabilities(),
	}, newConnectionManager(nil, "", nil), nil)
	if err != nil {
		t.Fatalf("climate.New() error: %v", err)
	}
	return newControlModel(context.Background(), ctrl, newConnectionManager(nil, "", nil), "test")
}

func TestControlModel_DraftFromState(t *testing.T) {
	m := newTestControlModel(t)

	s := fujitsu.State{Power: true, Mode: fujitsu.ModeHeat, Temperature: fujitsu.Celsius(21.5), Fan: fujitsu.FanMedium, Swing: fujitsu.SwingVertical}
	m.loadDraft(s)
	got, err := m.draftState()
	if err != nil {
		t.Fatalf("draftState() error: %v", err)
	}
	if got != s {
		t.Errorf("draftState() = %v, want %v", got, s)
	}
}

func TestControlModel_StepTemperatureClamps(t *testing.T) {
	m := newTestControlModel(t)
	m.tempInput.SetValue("29")

	m.stepTemperature(1)
	m.stepTemperature(1)
	if got := m.tempInput.Value(); got != "30" {
		t.Errorf("after stepping up = %q, want 30", got)
	}

	m.tempInput.SetValue("17")
	m.stepTemperature(-5)
	if got := m.tempInput.Value(); got != "16" {
		t.Errorf("after stepping down = %q, want 16", got)
	}
}

func TestControlModel_InvalidTemperatureInput(t *testing.T) {
	m := newTestControlModel(t)
	m.tempInput.SetValue("hot")
	if _, err := m.draftState(); err == nil || !strings.Contains(err.Error(), "invalid temperature") {
		t.Errorf("draftState() error = %v", err)
	}
}

func TestControlModel_FocusAndFanCycle(t *testing.T) {
	m := newTestControlModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(controlModel)
	if m.focusedField != focusTempInput || !m.tempInput.Focused() {
		t.Fatalf("focus = %d, want temperature input", m.focusedField)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(controlModel)
	start := m.fan
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m = next.(controlModel)
	if m.fan == start {
		t.Error("right arrow did not change the fan speed")
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	m = next.(controlModel)
	if m.fan != start {
		t.Errorf("fan = %v after left, want %v", m.fan, start)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = next.(controlModel)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = next.(controlModel)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = next.(controlModel)
	if m.focusedField != focusPowerButton {
		t.Errorf("focus = %d after wrapping back, want power button", m.focusedField)
	}
}

func TestControlModel_ApplyBlockedWhileDisconnected(t *testing.T) {
	m := newTestControlModel(t)
	next, _ := m.Update(connectionLostMsg{err: irdrive.ErrClosed})
	m = next.(controlModel)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(controlModel)
	if cmd != nil {
		t.Error("enter returned a command while disconnected")
	}
	if last := m.log[len(m.log)-1]; !last.isError || !strings.Contains(last.message, "connection lost") {
		t.Errorf("last log entry = %+v", last)
	}
}

func TestCycle(t *testing.T) {
	values := []int{1, 2, 3}
	if got := cycle(values, 3, 1); got != 1 {
		t.Errorf("cycle forward wrap = %d, want 1", got)
	}
	if got := cycle(values, 1, -1); got != 3 {
		t.Errorf("cycle backward wrap = %d, want 3", got)
	}
	if got := cycle(values, 9, 1); got != 1 {
		t.Errorf("cycle unknown = %d, want first", got)
	}
	if got := cycle([]int{}, 9, 1); got != 9 {
		t.Errorf("cycle empty = %d, want unchanged", got)
	}
}

func TestMonitorModel_Captures(t *testing.T) {
	m := newMonitorModel("test", fujitsu.DefaultTolerancePercent, true)
	d := fujitsu.NewDecoder(fujitsu.DefaultTolerancePercent)
	stats := fujitsu.NewStatistics()

	want := fujitsu.State{Power: true, Mode: fujitsu.ModeCool, Temperature: fujitsu.Celsius(22), Fan: fujitsu.FanAuto}
	frame, _ := fujitsu.Encode(want)
	ok := decodeCapture(d, stats, fujitsu.CaptureFromFrame(frame))
	bad := decodeCapture(d, stats, fujitsu.RawCapture{Samples: []int32{100, -100, 100, -100}})

	next, _ := m.Update(captureMsg{decoded: ok, stats: *stats})
	next, _ = next.Update(captureMsg{decoded: bad, stats: *stats})
	m = next.(monitorModel)

	if m.lastState == nil || *m.lastState != want {
		t.Fatalf("lastState = %v, want %v", m.lastState, want)
	}
	if m.stats.TotalCaptures != 2 || m.stats.DecodedCaptures != 1 {
		t.Errorf("stats = %d total, %d decoded", m.stats.TotalCaptures, m.stats.DecodedCaptures)
	}

	// STATE line plus one line per message, then the decode error
	if len(m.log) != 3 {
		t.Fatalf("log has %d entries, want 3", len(m.log))
	}
	if last := m.log[2]; !last.isError || !strings.Contains(last.message, "DECODE ERROR") {
		t.Errorf("last entry = %+v", last)
	}
	if !strings.Contains(m.View(), "MISTRAL - CAPTURE MONITOR") {
		t.Error("View() missing title")
	}
}
