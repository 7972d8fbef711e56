// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package bridge

import (
	"math/rand"
	"os"
	"reflect"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// ============================================================
// Round Trip Fuzzing
// ============================================================

func TestFuzzTransmit_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	d := NewDecoder()

	for i := 0; i < rounds; i++ {
		seq := rng.Uint32()
		durations := make([]uint32, 1+rng.Intn(200))
		for j := range durations {
			// Values near the framing bytes exercise byte stuffing
			durations[j] = uint32(rng.Intn(0x80)) | uint32(rng.Intn(20000))<<7
		}

		packets := decodeAll(t, d, MustEncodePacket(NewTransmitCommand(seq, 38000, durations)))
		if len(packets) != 1 {
			t.Fatalf("round %d: decoded %d packets", i, len(packets))
		}
		gotSeq, _, gotDurations, ok := packets[0].TransmitDurations()
		if !ok || gotSeq != seq || !reflect.DeepEqual(gotDurations, durations) {
			t.Fatalf("round %d: round trip mismatch (seq %d != %d)", i, gotSeq, seq)
		}
	}
}

func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	d := NewDecoder()

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(512))
		rng.Read(data)
		// Must not panic; errors are expected
		for _, b := range data {
			if p, _ := d.DecodeByte(b); p != nil {
				_ = p.PayloadMap()
				_ = ValidatePacket(p)
				_ = FormatPacket(p)
			}
		}
	}
}

func TestFuzzDecoder_RecoversAfterGarbage(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		garbage := make([]byte, rng.Intn(64))
		rng.Read(garbage)
		for _, b := range garbage {
			d.DecodeByte(b)
		}

		packets := decodeAll(t, d, MustEncodePacket(NewPingResponse(uint64(i))))
		if len(packets) != 1 {
			t.Fatalf("round %d: decoder did not recover after % X", i, garbage)
		}
		if uptime, _ := packets[0].Uptime(); uptime != uint64(i) {
			t.Fatalf("round %d: uptime = %d", i, uptime)
		}
	}
}
