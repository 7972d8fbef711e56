// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package climate

import "github.com/Thermoquad/mistral/pkg/fujitsu"

// Plan returns the messages that move a unit from prev to next.
// Both states must be normalized.
//
// The power-on flag is only set when the unit was off. Swing is a louver
// toggle on the unit, so it is only sent when the swing setting changes; a
// unit that is off has its louver parked. Off to off needs no messages.
func Plan(prev, next fujitsu.State) []fujitsu.Message {
	if !next.Power {
		if !prev.Power {
			return nil
		}
		return []fujitsu.Message{fujitsu.NewOffMessage()}
	}

	msgs := []fujitsu.Message{fujitsu.NewStateMessage(next, !prev.Power)}

	prevSwing := prev.Swing
	if !prev.Power {
		prevSwing = fujitsu.SwingOff
	}
	if next.Swing != prevSwing {
		msgs = append(msgs, fujitsu.NewSwingLouverMessage())
	}
	return msgs
}
