// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mistral/pkg/fujitsu"
)

var (
	encodeDurations bool
	encodeJSON      bool
	encodeVerify    bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Print the IR frame for a thermostat state",
	Long: `Encode a thermostat state into the Fujitsu remote's messages and pulse frame
without touching any hardware.

Settings not given on the command line take the manufacturer default
(auto, 24°C, fan auto, swing off).

Examples:
  mistral encode --mode cool --temp 22
  mistral encode --off --durations
  mistral encode --mode heat --temp 26 --swing vertical --json`,
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	addStateFlags(encodeCmd)
	encodeCmd.Flags().BoolVar(&encodeDurations, "durations", false, "Print the mark/space durations in microseconds")
	encodeCmd.Flags().BoolVar(&encodeJSON, "json", false, "Print the frame as JSON")
	encodeCmd.Flags().BoolVar(&encodeVerify, "verify", false, "Decode the frame again and compare")
}

// encodedFrame is the JSON form of an encoded state
type encodedFrame struct {
	State     fujitsu.State    `json:"state"`
	Messages  []encodedMessage `json:"messages"`
	CarrierHz uint32           `json:"carrier_hz"`
	Durations []uint32         `json:"durations"`
}

type encodedMessage struct {
	Type  string `json:"type"`
	Bytes string `json:"bytes"`
}

func runEncode(cmd *cobra.Command, args []string) error {
	s, err := stateFromFlags(cmd, fujitsu.DefaultState())
	if err != nil {
		return err
	}
	return encodeState(cmd.OutOrStdout(), s)
}

func encodeState(w io.Writer, s fujitsu.State) error {
	msgs, err := fujitsu.Messages(s)
	if err != nil {
		return err
	}
	frame, err := fujitsu.EncodeMessages(msgs...)
	if err != nil {
		return err
	}

	if encodeJSON {
		out := encodedFrame{
			State:     s.Normalize(),
			CarrierHz: frame.CarrierHz,
			Durations: frame.Durations(),
		}
		for _, m := range msgs {
			b, err := m.Bytes()
			if err != nil {
				return err
			}
			out.Messages = append(out.Messages, encodedMessage{
				Type:  fujitsu.FormatMessageType(m.Type),
				Bytes: hex.EncodeToString(b),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "State: %s\n", s.Normalize())
	for i, m := range msgs {
		b, err := m.Bytes()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Message %d: %s\n", i+1, fujitsu.FormatMessage(m))
		fmt.Fprintf(w, "  Bytes: %s\n", fujitsu.FormatBytes(b))
	}
	fmt.Fprintf(w, "Frame: %s\n", fujitsu.FormatFrame(frame))

	if encodeDurations {
		parts := make([]string, 0, len(frame.Pulses)*2)
		for _, d := range frame.Durations() {
			parts = append(parts, strconv.FormatUint(uint64(d), 10))
		}
		fmt.Fprintf(w, "Durations: %s\n", strings.Join(parts, " "))
	}

	if encodeVerify {
		decoded, err := fujitsu.NewDecoder(cfg.Climate.TolerancePercent).Decode(fujitsu.CaptureFromFrame(frame))
		if err != nil {
			return fmt.Errorf("frame does not decode: %w", err)
		}
		if decoded != s.Normalize() {
			return fmt.Errorf("frame decodes to %s, want %s", decoded, s.Normalize())
		}
		fmt.Fprintf(w, "Verify: OK\n")
	}
	return nil
}
