// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package armor

import (
	"math/bits"
	"sync"
)

// DecodeOutcome classifies the result of decoding an Armored Word's data
// against its stored ECC byte.
type DecodeOutcome int

const (
	// Clean: the stored ECC matches the data exactly.
	Clean DecodeOutcome = iota
	// Healed: a single-bit error was detected and corrected.
	Healed
	// Uncorrectable: a double-bit (or worse) error was detected.
	Uncorrectable
)

// correctionKind describes what a nonzero Hamming syndrome maps to.
type correctionKind int

const (
	correctNone correctionKind = iota
	correctData
	correctParity
)

type correction struct {
	kind correctionKind
	bit  int // data bit index, valid when kind == correctData
}

// dataPos[i] is the 1-indexed position, within the combined 71-slot
// Hamming space (64 data bits + 7 parity bits interleaved at power-of-two
// slots), that data bit i occupies. Parity bits occupy positions 1, 2, 4,
// 8, 16, 32, 64; every other position in [1, 71] is a data bit, assigned
// in increasing order.
var dataPos [64]int

// syndromeTable maps a 7-bit Hamming syndrome (0..127) to the correction
// it implies: a data-bit flip, a stored-parity-bit flip (data untouched),
// or "none" for syndrome 0. Built lazily once per process, as the spec
// requires, and shared read-only thereafter.
var (
	syndromeTable     [128]correction
	syndromeTableOnce sync.Once
)

func isPowerOfTwo(n int) bool { return n != 0 && n&(n-1) == 0 }

func buildTables() {
	pos := 0
	for p := 1; pos < 64; p++ {
		if isPowerOfTwo(p) {
			continue
		}
		dataPos[pos] = p
		pos++
	}

	for i, p := range dataPos {
		syndromeTable[p] = correction{kind: correctData, bit: i}
	}
	for _, p := range []int{1, 2, 4, 8, 16, 32, 64} {
		syndromeTable[p] = correction{kind: correctParity}
	}
	// syndromeTable[0] stays correctNone; all non-assigned entries above
	// 71 (positions 72..127, which this 7-bit code never legitimately
	// produces from a single real bit error) also stay correctNone and
	// are treated as Uncorrectable by Decode.
}

func ensureTables() { syndromeTableOnce.Do(buildTables) }

// parity7 computes the 7 Hamming parity bits over data, packed into the
// low 7 bits of the returned value.
func parity7(data uint64) uint8 {
	ensureTables()
	var h uint8
	for k := 0; k < 7; k++ {
		mask := 1 << uint(k)
		var acc uint64
		for i, p := range dataPos {
			if p&mask != 0 {
				acc ^= (data >> uint(i)) & 1
			}
		}
		if acc&1 != 0 {
			h |= 1 << uint(k)
		}
	}
	return h
}

// parityBit returns the population-count parity (0 or 1) of v.
func parityBit(v uint64) uint8 { return uint8(bits.OnesCount64(v) & 1) }

// Hamming computes the full 8-bit SEC-DED code for a 64-bit data word: the
// low 7 bits are the Hamming parity over the 64 data bits (interleaved
// with 7 virtual parity slots); bit 7 is the overall even-parity bit over
// data and those 7 parity bits, giving double-error detection.
func Hamming(data uint64) uint8 {
	h7 := parity7(data)
	overall := parityBit(data) ^ parityBit(uint64(h7))
	return h7 | overall<<7
}

// Decode checks data against ecc and returns the outcome plus, on Healed,
// the corrected (data, ecc) pair. On Clean, the returned data/ecc equal
// the inputs. On Uncorrectable, the returned data/ecc are meaningless and
// must not be used.
func Decode(data uint64, ecc uint8) (outcome DecodeOutcome, correctedData uint64, correctedECC uint8) {
	ensureTables()

	storedH7 := ecc & 0x7f
	storedOverall := ecc >> 7

	h7Prime := parity7(data)
	syndrome := storedH7 ^ h7Prime

	actualOverall := parityBit(data) ^ parityBit(uint64(storedH7))
	overallSyndrome := storedOverall ^ actualOverall

	switch {
	case syndrome == 0 && overallSyndrome == 0:
		return Clean, data, ecc
	case syndrome == 0 && overallSyndrome != 0:
		// The overall parity bit itself flipped; data and the 7 Hamming
		// bits are intact.
		return Healed, data, Hamming(data)
	case syndrome != 0 && overallSyndrome != 0:
		c := syndromeTable[syndrome]
		switch c.kind {
		case correctParity:
			// One of the stored Hamming parity bits flipped; data is
			// untouched, just re-derive a clean ECC byte.
			return Healed, data, Hamming(data)
		case correctData:
			fixed := data ^ (1 << uint(c.bit))
			return Healed, fixed, Hamming(fixed)
		default:
			return Uncorrectable, 0, 0
		}
	default: // syndrome != 0, overallSyndrome == 0: even number of errors.
		return Uncorrectable, 0, 0
	}
}
