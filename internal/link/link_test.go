// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/mistral/internal/config"
	"github.com/Thermoquad/mistral/pkg/bridge"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

// fakeBridge answers every PING_REQUEST with a PING_RESPONSE, after an
// unrelated text frame, and records the Authorization header
func fakeBridge(t *testing.T, auth *string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		decoder := bridge.NewDecoder()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, b := range data {
				p, err := decoder.DecodeByte(b)
				if err != nil || p == nil || p.Type() != bridge.MsgPingRequest {
					continue
				}
				_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
				_ = conn.WriteMessage(websocket.BinaryMessage, bridge.MustEncodePacket(bridge.NewPingResponse(90061000)))
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// ============================================================
// WebSocket Link Tests
// ============================================================

func TestOpen_WebSocketPing(t *testing.T) {
	var auth string
	srv := fakeBridge(t, &auth)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, info, err := Open(ctx, config.BridgeConfig{URL: wsURL(srv), Username: "admin"},
		func() (string, error) { return "secret", nil })
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if !strings.HasPrefix(info, "WebSocket: ws://") {
		t.Errorf("info = %q", info)
	}
	if auth != "Basic YWRtaW46c2VjcmV0" {
		t.Errorf("Authorization = %q", auth)
	}

	driver := irdrive.NewBridgeDriver(conn)
	go func() { _ = driver.Run(ctx) }()

	uptime, err := driver.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if uptime != 90061*time.Second {
		t.Errorf("uptime = %s", uptime)
	}
}

func TestOpen_WebSocketPasswordError(t *testing.T) {
	want := errors.New("no tty")
	_, _, err := Open(context.Background(), config.BridgeConfig{URL: "ws://127.0.0.1:1/ws", Username: "admin"},
		func() (string, error) { return "", want })
	if !errors.Is(err, want) {
		t.Fatalf("Open() error = %v, want %v", err, want)
	}
}

func TestWebSocketConn_ReadAfterClose(t *testing.T) {
	srv := fakeBridge(t, nil)
	defer srv.Close()

	conn, err := OpenWebSocket(context.Background(), wsURL(srv), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocket() error: %v", err)
	}
	_ = conn.Close()

	buf := make([]byte, 16)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("Read() should fail on a closed link")
	}
	if _, err := conn.Read(buf); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Read() error = %v, want ErrClosed", err)
	}
}

// ============================================================
// Open Errors
// ============================================================

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.BridgeConfig
		want string
	}{
		{"nothing configured", config.BridgeConfig{}, "no bridge configured"},
		{"http scheme", config.BridgeConfig{URL: "http://bridge/ws"}, "unsupported URL scheme"},
		{"missing port", config.BridgeConfig{Port: "/dev/does-not-exist-mistral", Baud: 115200}, "failed to open serial port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Open(context.Background(), tt.cfg, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Open() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestPromptPassword_FromEnv(t *testing.T) {
	t.Setenv(PasswordEnv, "hunter2")
	pw, err := PromptPassword()
	if err != nil || pw != "hunter2" {
		t.Fatalf("PromptPassword() = %q, %v", pw, err)
	}
}

func TestCachePassword(t *testing.T) {
	calls := 0
	fail := true
	pw := CachePassword(func() (string, error) {
		calls++
		if fail {
			return "", errors.New("no tty")
		}
		return "hunter2", nil
	})

	if _, err := pw(); err == nil {
		t.Fatal("expected the first prompt to fail")
	}
	fail = false
	for i := 0; i < 3; i++ {
		got, err := pw()
		if err != nil || got != "hunter2" {
			t.Fatalf("pw() = %q, %v", got, err)
		}
	}
	if calls != 2 {
		t.Errorf("prompted %d times, want 2 (failures are not cached)", calls)
	}
}
