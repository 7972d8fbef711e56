// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package httpapi exposes a climate controller over HTTP and pushes every
// committed change to WebSocket subscribers.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thermoquad/mistral/internal/store"
	"github.com/Thermoquad/mistral/pkg/climate"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// Climate is the controller surface served by the API
type Climate interface {
	ID() string
	Name() string
	State() fujitsu.State
	Status() climate.Status
	Capabilities() climate.Capabilities
	Apply(ctx context.Context, s fujitsu.State) error
}

// EventLog lists committed changes
type EventLog interface {
	List(ctx context.Context, f store.EventFilter) ([]store.Event, error)
}

// Handler wires the HTTP layer to the controller
type Handler struct {
	climate Climate
	events  EventLog
	hub     *Hub
	log     *zap.SugaredLogger
}

// NewHandler constructs a handler. events may be nil when no log is kept.
func NewHandler(c Climate, events EventLog, hub *Hub, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Handler{climate: c, events: events, hub: hub, log: log}
}

// Routes builds the gin router
func (h *Handler) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.health)
	router.GET("/ws", h.wsConnect)

	api := router.Group("/api/v1")
	{
		api.GET("/climate", h.getClimate)
		api.PUT("/climate", h.putClimate)
		api.GET("/climate/capabilities", h.getCapabilities)
		api.GET("/events", h.getEvents)
	}
	return router
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// errorStatus maps controller errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, climate.ErrInvalidState), errors.Is(err, fujitsu.ErrUnsupportedState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, climate.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, climate.ErrTransmissionTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// jsonError writes the error body, naming the rejected field when known
func (h *Handler) jsonError(c *gin.Context, code int, err error) {
	body := gin.H{"error": err.Error()}

	var invalid *climate.InvalidStateError
	var unsupported *fujitsu.UnsupportedStateError
	switch {
	case errors.As(err, &invalid):
		body["field"] = invalid.Field
	case errors.As(err, &unsupported):
		body["field"] = unsupported.Field
	}

	if code >= http.StatusInternalServerError {
		h.log.Errorw("request failed", "path", c.FullPath(), "status", code, "error", err)
	} else {
		h.log.Debugw("request rejected", "path", c.FullPath(), "status", code, "error", err)
	}
	c.JSON(code, body)
}
