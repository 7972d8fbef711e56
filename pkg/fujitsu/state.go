// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package fujitsu

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Mode represents the unit operating mode. Values are the wire nibble values.
type Mode uint8

// Operating mode values
const (
	ModeAuto Mode = 0x00
	ModeCool Mode = 0x01
	ModeDry  Mode = 0x02
	ModeFan  Mode = 0x03
	ModeHeat Mode = 0x04
)

var modeNames = map[Mode]string{
	ModeAuto: "auto",
	ModeCool: "cool",
	ModeDry:  "dry",
	ModeFan:  "fan",
	ModeHeat: "heat",
}

// Modes lists every mode the protocol can carry
func Modes() []Mode {
	return []Mode{ModeAuto, ModeCool, ModeDry, ModeFan, ModeHeat}
}

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(0x%02X)", uint8(m))
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("unknown mode 0x%02X", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode parses a mode name (case-insensitive)
func ParseMode(s string) (Mode, error) {
	for mode, name := range modeNames {
		if strings.EqualFold(s, name) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// FanSpeed represents the fan setting. Values are the wire nibble values.
type FanSpeed uint8

// Fan speed values
const (
	FanAuto   FanSpeed = 0x00
	FanHigh   FanSpeed = 0x01
	FanMedium FanSpeed = 0x02
	FanLow    FanSpeed = 0x03
	FanQuiet  FanSpeed = 0x04
)

var fanNames = map[FanSpeed]string{
	FanAuto:   "auto",
	FanHigh:   "high",
	FanMedium: "medium",
	FanLow:    "low",
	FanQuiet:  "quiet",
}

// FanSpeeds lists every fan speed the protocol can carry
func FanSpeeds() []FanSpeed {
	return []FanSpeed{FanAuto, FanHigh, FanMedium, FanLow, FanQuiet}
}

// Valid reports whether f is a known fan speed
func (f FanSpeed) Valid() bool {
	_, ok := fanNames[f]
	return ok
}

func (f FanSpeed) String() string {
	if name, ok := fanNames[f]; ok {
		return name
	}
	return fmt.Sprintf("fan(0x%02X)", uint8(f))
}

// MarshalText implements encoding.TextMarshaler
func (f FanSpeed) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("unknown fan speed 0x%02X", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *FanSpeed) UnmarshalText(text []byte) error {
	v, err := ParseFanSpeed(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFanSpeed parses a fan speed name (case-insensitive)
func ParseFanSpeed(s string) (FanSpeed, error) {
	for fan, name := range fanNames {
		if strings.EqualFold(s, name) {
			return fan, nil
		}
	}
	return 0, fmt.Errorf("unknown fan speed %q", s)
}

// Swing represents the louver swing setting
type Swing uint8

// Swing values
const (
	SwingOff      Swing = 0x00
	SwingVertical Swing = 0x01
)

// Valid reports whether s is a known swing setting
func (s Swing) Valid() bool {
	return s == SwingOff || s == SwingVertical
}

func (s Swing) String() string {
	switch s {
	case SwingOff:
		return "off"
	case SwingVertical:
		return "vertical"
	default:
		return fmt.Sprintf("swing(0x%02X)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Swing) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown swing 0x%02X", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Swing) UnmarshalText(text []byte) error {
	v, err := ParseSwing(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSwing parses a swing name (case-insensitive)
func ParseSwing(s string) (Swing, error) {
	switch strings.ToLower(s) {
	case "off":
		return SwingOff, nil
	case "vertical":
		return SwingVertical, nil
	}
	return 0, fmt.Errorf("unknown swing %q", s)
}

// Temperature is a fixed-point temperature in tenths of a degree Celsius
type Temperature int16

// Celsius converts degrees Celsius to a Temperature, rounding to 0.1 °C
func Celsius(c float64) Temperature {
	return Temperature(math.Round(c * 10))
}

// Celsius returns the temperature in degrees Celsius
func (t Temperature) Celsius() float64 {
	return float64(t) / 10
}

// Whole reports whether t has no fractional part
func (t Temperature) Whole() bool {
	return t%10 == 0
}

func (t Temperature) String() string {
	return fmt.Sprintf("%.1f°C", t.Celsius())
}

// MarshalJSON encodes the temperature as a number of degrees Celsius
func (t Temperature) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Celsius())
}

// UnmarshalJSON decodes a number of degrees Celsius
func (t *Temperature) UnmarshalJSON(data []byte) error {
	var c float64
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("invalid temperature: %w", err)
	}
	*t = Celsius(c)
	return nil
}

// DefaultTemperature is the manufacturer default target temperature
var DefaultTemperature = Celsius(24)

// State is the thermostat state of one unit
type State struct {
	Power       bool        `json:"power"`
	Mode        Mode        `json:"mode"`
	Temperature Temperature `json:"target_temperature"`
	Fan         FanSpeed    `json:"fan_speed"`
	Swing       Swing       `json:"swing"`
}

// DefaultState returns the manufacturer default: off, auto, 24 °C, fan auto, swing off
func DefaultState() State {
	return State{
		Power:       false,
		Mode:        ModeAuto,
		Temperature: DefaultTemperature,
		Fan:         FanAuto,
		Swing:       SwingOff,
	}
}

// Normalize returns the canonical form of s. An OFF message carries no
// settings, so every powered-off state normalizes to DefaultState.
func (s State) Normalize() State {
	if !s.Power {
		return DefaultState()
	}
	return s
}

func (s State) String() string {
	if !s.Power {
		return "off"
	}
	return fmt.Sprintf("on mode=%s target=%s fan=%s swing=%s", s.Mode, s.Temperature, s.Fan, s.Swing)
}
