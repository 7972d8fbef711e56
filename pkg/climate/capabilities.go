// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package climate

import (
	"fmt"
	"slices"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

// Capabilities describes what a unit accepts. It is data, not behavior:
// the controller consults it before any hardware action.
type Capabilities struct {
	MinTemperature  fujitsu.Temperature `json:"min_temperature"`
	MaxTemperature  fujitsu.Temperature `json:"max_temperature"`
	TemperatureStep fujitsu.Temperature `json:"temperature_step"`
	Modes           []fujitsu.Mode      `json:"modes"`
	FanSpeeds       []fujitsu.FanSpeed  `json:"fan_speeds"`
	SupportsSwing   bool                `json:"supports_swing"`
}

// DefaultCapabilities returns the capability table of the Fujitsu legacy remote
func DefaultCapabilities() Capabilities {
	return Capabilities{
		MinTemperature:  fujitsu.Celsius(fujitsu.MinCelsius),
		MaxTemperature:  fujitsu.Celsius(fujitsu.MaxCelsius),
		TemperatureStep: fujitsu.Celsius(1),
		Modes:           fujitsu.Modes(),
		FanSpeeds:       fujitsu.FanSpeeds(),
		SupportsSwing:   true,
	}
}

// Check reports problems with the table itself
func (c Capabilities) Check() error {
	switch {
	case c.TemperatureStep <= 0:
		return fmt.Errorf("temperature step must be positive, got %s", c.TemperatureStep)
	case c.MinTemperature > c.MaxTemperature:
		return fmt.Errorf("min temperature %s above max %s", c.MinTemperature, c.MaxTemperature)
	case c.MinTemperature < fujitsu.Celsius(fujitsu.MinCelsius) || c.MaxTemperature > fujitsu.Celsius(fujitsu.MaxCelsius):
		return fmt.Errorf("temperature range %s-%s outside protocol range %d-%d°C",
			c.MinTemperature, c.MaxTemperature, fujitsu.MinCelsius, fujitsu.MaxCelsius)
	case len(c.Modes) == 0:
		return fmt.Errorf("no modes")
	case len(c.FanSpeeds) == 0:
		return fmt.Errorf("no fan speeds")
	}
	return nil
}

// Validate returns an *InvalidStateError when s is outside the table.
// A powered-off state carries no settings and is always accepted.
func (c Capabilities) Validate(s fujitsu.State) error {
	if !s.Power {
		return nil
	}
	if !slices.Contains(c.Modes, s.Mode) {
		return &InvalidStateError{Field: "mode", Value: s.Mode, Reason: "mode not supported"}
	}
	if !slices.Contains(c.FanSpeeds, s.Fan) {
		return &InvalidStateError{Field: "fan_speed", Value: s.Fan, Reason: "fan speed not supported"}
	}
	if !s.Swing.Valid() {
		return &InvalidStateError{Field: "swing", Value: s.Swing, Reason: "unknown swing"}
	}
	if s.Swing != fujitsu.SwingOff && !c.SupportsSwing {
		return &InvalidStateError{Field: "swing", Value: s.Swing, Reason: "swing not supported"}
	}
	if s.Temperature < c.MinTemperature || s.Temperature > c.MaxTemperature {
		return &InvalidStateError{
			Field:  "target_temperature",
			Value:  s.Temperature,
			Reason: fmt.Sprintf("outside %s-%s", c.MinTemperature, c.MaxTemperature),
		}
	}
	if (s.Temperature-c.MinTemperature)%c.TemperatureStep != 0 {
		return &InvalidStateError{
			Field:  "target_temperature",
			Value:  s.Temperature,
			Reason: fmt.Sprintf("not a multiple of %s from %s", c.TemperatureStep, c.MinTemperature),
		}
	}
	return nil
}
