// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// addStateFlags registers the thermostat setting flags on c
func addStateFlags(c *cobra.Command) {
	c.Flags().Bool("on", false, "Power the unit on")
	c.Flags().Bool("off", false, "Power the unit off")
	c.Flags().String("mode", "", "Mode: auto, cool, dry, fan, heat")
	c.Flags().Float64("temp", 0, "Target temperature in °C")
	c.Flags().String("fan", "", "Fan speed: auto, high, medium, low, quiet")
	c.Flags().String("swing", "", "Swing: off, vertical")
	c.MarkFlagsMutuallyExclusive("on", "off")
}

// stateFromFlags applies the flags that were set on top of base.
// Any setting other than --off implies power on.
func stateFromFlags(c *cobra.Command, base fujitsu.State) (fujitsu.State, error) {
	s := base
	flags := c.Flags()
	changed := false

	if flags.Changed("mode") {
		name, _ := flags.GetString("mode")
		mode, err := fujitsu.ParseMode(name)
		if err != nil {
			return s, err
		}
		s.Mode = mode
		changed = true
	}
	if flags.Changed("temp") {
		temp, _ := flags.GetFloat64("temp")
		s.Temperature = fujitsu.Celsius(temp)
		changed = true
	}
	if flags.Changed("fan") {
		name, _ := flags.GetString("fan")
		fan, err := fujitsu.ParseFanSpeed(name)
		if err != nil {
			return s, err
		}
		s.Fan = fan
		changed = true
	}
	if flags.Changed("swing") {
		name, _ := flags.GetString("swing")
		swing, err := fujitsu.ParseSwing(name)
		if err != nil {
			return s, err
		}
		s.Swing = swing
		changed = true
	}

	on, _ := flags.GetBool("on")
	off, _ := flags.GetBool("off")
	switch {
	case off:
		if changed {
			return s, fmt.Errorf("--off cannot be combined with other settings")
		}
		s.Power = false
	case on || changed:
		s.Power = true
	default:
		return s, fmt.Errorf("nothing to do: pass --on, --off or a setting")
	}
	return s, nil
}
