// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ParseCBORMessage parses a bridge CBOR message: [msg_type, payload_map]
// Returns the message type and decoded payload map (nil for empty payloads)
func ParseCBORMessage(data []byte) (msgType uint8, payload map[int]interface{}, err error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty CBOR payload")
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}

	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	v, ok := msg[0].(uint64)
	if !ok {
		return 0, nil, fmt.Errorf("expected uint for message type, got %T", msg[0])
	}
	if v > 255 {
		return 0, nil, fmt.Errorf("message type out of range: %d", v)
	}
	msgType = uint8(v)

	if msg[1] == nil {
		return msgType, nil, nil
	}

	raw, ok := msg[1].(map[interface{}]interface{})
	if !ok {
		return 0, nil, fmt.Errorf("expected map or nil for payload, got %T", msg[1])
	}
	payload = make(map[int]interface{}, len(raw))
	for key, val := range raw {
		switch k := key.(type) {
		case uint64:
			payload[int(k)] = val
		case int64:
			payload[int(k)] = val
		default:
			return 0, nil, fmt.Errorf("expected integer map key, got %T", key)
		}
	}

	return msgType, payload, nil
}

// Map value extraction helpers

// GetMapUint extracts a uint64 from a CBOR map by key
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return toUint(v)
}

// GetMapInt extracts an int64 from a CBOR map by key
func GetMapInt(m map[int]interface{}, key int) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// GetMapBytes extracts a []byte from a CBOR map by key
func GetMapBytes(m map[int]interface{}, key int) ([]byte, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	val, ok := v.([]byte)
	return val, ok
}

// GetMapUintSlice extracts an array of unsigned integers from a CBOR map by key.
// Fails if any element is negative or not an integer.
func GetMapUintSlice(m map[int]interface{}, key int) ([]uint64, bool) {
	items, ok := getMapArray(m, key)
	if !ok {
		return nil, false
	}
	out := make([]uint64, len(items))
	for i, item := range items {
		if out[i], ok = toUint(item); !ok {
			return nil, false
		}
	}
	return out, true
}

// GetMapIntSlice extracts an array of signed integers from a CBOR map by key
func GetMapIntSlice(m map[int]interface{}, key int) ([]int64, bool) {
	items, ok := getMapArray(m, key)
	if !ok {
		return nil, false
	}
	out := make([]int64, len(items))
	for i, item := range items {
		if out[i], ok = toInt(item); !ok {
			return nil, false
		}
	}
	return out, true
}

// getMapArray returns an array value as []interface{}. Decoded CBOR arrays
// already have that shape; typed slices come from locally built packets.
func getMapArray(m map[int]interface{}, key int) ([]interface{}, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	switch items := v.(type) {
	case []interface{}:
		return items, true
	case []uint64:
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, true
	case []int64:
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}

func toUint(v interface{}) (uint64, bool) {
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		if val >= 0 {
			return uint64(val), true
		}
	}
	return 0, false
}

func toInt(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case uint64:
		if val <= 1<<63-1 {
			return int64(val), true
		}
	}
	return 0, false
}
