// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/mistral/internal/store"
	"github.com/Thermoquad/mistral/pkg/climate"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// parseEventFilter reads ?from=&to= (RFC 3339), ?source= and ?limit=
func parseEventFilter(c *gin.Context) (store.EventFilter, error) {
	f := store.EventFilter{Limit: defaultEventLimit}

	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := c.Query(p.key); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, fmt.Errorf("%s: %w", p.key, err)
			}
			*p.dst = ts
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("to is before from")
	}

	if v := c.Query("source"); v != "" {
		if _, ok := climate.ParseSource(v); !ok {
			return f, fmt.Errorf("unknown source %q", v)
		}
		f.Source = v
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxEventLimit {
			return f, fmt.Errorf("limit must be within 1-%d", maxEventLimit)
		}
		f.Limit = n
	}
	return f, nil
}

func (h *Handler) getEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusOK, []store.Event{})
		return
	}

	f, err := parseEventFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.events.List(c.Request.Context(), f)
	if err != nil {
		h.jsonError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
