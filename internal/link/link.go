// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package link opens the byte stream to an IR bridge: a serial port for a
// bridge on USB/UART, or a binary WebSocket for a networked bridge.
package link

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/mistral/internal/config"
)

// PasswordEnv holds the WebSocket Basic auth password
const PasswordEnv = "MISTRAL_PASSWORD"

const (
	handshakeTimeout = 10 * time.Second
	dialTimeout      = 15 * time.Second
)

// ErrClosed is returned when reading from a WebSocket link that has failed
var ErrClosed = errors.New("bridge link closed")

// Conn is a bridge byte stream
type Conn = io.ReadWriteCloser

// PasswordFunc supplies the WebSocket password on demand
type PasswordFunc func() (string, error)

type serialConn struct {
	port serial.Port
}

func (s *serialConn) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialConn) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialConn) Close() error                { return s.port.Close() }

// OpenSerial opens the bridge serial port, 8N1
func OpenSerial(port string, baud int) (Conn, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return &serialConn{port: p}, nil
}

// wsConn presents the binary messages of a WebSocket as a byte stream
type wsConn struct {
	conn *websocket.Conn

	readMu sync.Mutex
	buf    []byte
	closed bool

	writeMu sync.Mutex
}

func (w *wsConn) Read(p []byte) (int, error) {
	w.readMu.Lock()
	defer w.readMu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	for len(w.buf) == 0 {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		// Text frames carry no bridge traffic
		if kind == websocket.BinaryMessage {
			w.buf = data
		}
	}
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// OpenWebSocket dials a networked bridge, with HTTP Basic auth when username is set
func OpenWebSocket(ctx context.Context, rawURL, username, password string, skipVerify bool) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	switch u.Scheme {
	case "ws":
	case "wss":
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipVerify}
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	headers := http.Header{}
	if username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

// PromptPassword reads the password from MISTRAL_PASSWORD, or prompts on the terminal
func PromptPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// CachePassword wraps fn so a successfully read password is reused on
// reconnect instead of prompting again
func CachePassword(fn PasswordFunc) PasswordFunc {
	var (
		mu     sync.Mutex
		cached string
		ok     bool
	)
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			return cached, nil
		}
		pw, err := fn()
		if err != nil {
			return "", err
		}
		cached, ok = pw, true
		return pw, nil
	}
}

// Open connects to the bridge described by b and returns the stream and a
// one-line description of it. password is consulted only for authenticated
// WebSocket bridges.
func Open(ctx context.Context, b config.BridgeConfig, password PasswordFunc) (Conn, string, error) {
	switch {
	case b.URL != "":
		pw := ""
		if b.Username != "" && password != nil {
			var err error
			if pw, err = password(); err != nil {
				return nil, "", err
			}
		}
		conn, err := OpenWebSocket(ctx, b.URL, b.Username, pw, b.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", b.URL), nil

	case b.Port != "":
		conn, err := OpenSerial(b.Port, b.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", b.Port, b.Baud), nil
	}
	return nil, "", fmt.Errorf("no bridge configured: set bridge.port or bridge.url (--port / --url)")
}
