// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/mistral/internal/link"
	"github.com/Thermoquad/mistral/pkg/irdrive"
)

// openBridge connects to the configured bridge and wraps it in a driver.
// The caller runs the driver's Run loop.
func openBridge(ctx context.Context) (*irdrive.BridgeDriver, string, error) {
	return openBridgeWith(ctx, link.PromptPassword)
}

func openBridgeWith(ctx context.Context, password link.PasswordFunc) (*irdrive.BridgeDriver, string, error) {
	conn, info, err := link.Open(ctx, cfg.Bridge, password)
	if err != nil {
		return nil, "", err
	}
	return irdrive.NewBridgeDriver(conn, irdrive.WithLogger(log.Named("bridge").SugaredLogger)), info, nil
}

// formatUptime formats an uptime as a human-friendly string
func formatUptime(d time.Duration) string {
	total := uint64(d / time.Second)
	if total == 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size uint64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := total / u.size
		total %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + last
}
