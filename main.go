// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad
//
// Mistral - Fujitsu IR climate controller
//
// Drives a legacy Fujitsu air conditioner over infrared through a serial or
// WebSocket IR bridge, or directly through GPIO pins.

package main

import (
	"errors"
	"os"

	"github.com/Thermoquad/mistral/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exit *cmd.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		os.Exit(1)
	}
}
