// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/mistral/pkg/climate"
	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// climateView is the representation of the unit returned by the API
type climateView struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Status climate.Status `json:"status"`
	State  fujitsu.State  `json:"state"`
}

func (h *Handler) view() climateView {
	return climateView{
		ID:     h.climate.ID(),
		Name:   h.climate.Name(),
		Status: h.climate.Status(),
		State:  h.climate.State(),
	}
}

// stateRequest is a full thermostat state; every field is required
type stateRequest struct {
	Power       *bool                `json:"power" binding:"required"`
	Mode        *fujitsu.Mode        `json:"mode" binding:"required"`
	Temperature *fujitsu.Temperature `json:"target_temperature" binding:"required"`
	Fan         *fujitsu.FanSpeed    `json:"fan_speed" binding:"required"`
	Swing       *fujitsu.Swing       `json:"swing" binding:"required"`
}

func (r stateRequest) state() fujitsu.State {
	return fujitsu.State{
		Power:       *r.Power,
		Mode:        *r.Mode,
		Temperature: *r.Temperature,
		Fan:         *r.Fan,
		Swing:       *r.Swing,
	}
}

func (h *Handler) getClimate(c *gin.Context) {
	c.JSON(http.StatusOK, h.view())
}

func (h *Handler) putClimate(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid body: %v", err)})
		return
	}

	s := req.state()
	if err := h.climate.Apply(c.Request.Context(), s); err != nil {
		h.jsonError(c, errorStatus(err), err)
		return
	}
	h.log.Infow("state applied", "state", s.String())
	c.JSON(http.StatusOK, h.view())
}

func (h *Handler) getCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, h.climate.Capabilities())
}
