// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Thermoquad/mistral/pkg/climate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12

	// subscriberBuffer is how many changes a slow subscriber may lag before it is dropped
	subscriberBuffer = 16
)

// wsEnvelope frames every WebSocket message
type wsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans controller changes out to WebSocket subscribers
type Hub struct {
	mu   sync.Mutex
	subs map[chan climate.Change]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[chan climate.Change]struct{})}
}

// Publish delivers c to every subscriber without blocking; it has the
// signature expected by climate.Controller.OnChange.
func (h *Hub) Publish(c climate.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- c:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Subscribe registers a subscriber. The channel is closed by Unsubscribe
// or when the subscriber falls too far behind.
func (h *Hub) Subscribe() chan climate.Change {
	ch := make(chan climate.Change, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes ch
func (h *Hub) Unsubscribe(ch chan climate.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Len returns the number of subscribers
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	changes := h.hub.Subscribe()
	defer h.hub.Unsubscribe(changes)
	h.log.Debugw("websocket subscriber connected", "remote", c.Request.RemoteAddr, "subscribers", h.hub.Len())

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.drain(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := h.write(conn, wsEnvelope{Type: "state", Data: h.view()}); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case change, ok := <-changes:
			if !ok {
				h.log.Warnw("websocket subscriber too slow, disconnecting", "remote", c.Request.RemoteAddr)
				return
			}
			if err := h.write(conn, wsEnvelope{Type: "change", Data: change}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.Debugw("websocket ping failed", "error", err)
				return
			}
		}
	}
}

// drain reads until the peer goes away so control frames are processed
func (h *Handler) drain(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debugw("websocket closed", "error", err)
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(env); err != nil {
		h.log.Debugw("websocket write failed", "type", env.Type, "error", err)
		return err
	}
	return nil
}
