// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitmap

import "sync/atomic"

// RegionSize is the number of bitmap bits a single L2 Summary bit
// advises over.
const RegionSize = 512

// WordsPerRegion is RegionSize in armor.Word units (64 bits each).
const WordsPerRegion = RegionSize / 64

// L2Summary is one advisory bit per RegionSize-block region: "at least
// one block in this region is used". A false negative (bit clear while a
// block in the region is actually used) is a self-healing invariant
// violation, never a safety violation, per spec §3/§4.3.
type L2Summary struct {
	words   []atomic.Uint64
	regions uint64
}

// NewL2Summary allocates an L2 summary covering the given number of
// regions.
func NewL2Summary(regions uint64) *L2Summary {
	n := (regions + 63) / 64
	if n == 0 {
		n = 1
	}
	return &L2Summary{words: make([]atomic.Uint64, n), regions: regions}
}

// Set idempotently sets the region bit. Release-ordered with respect to
// the bitmap word that justifies the set, via Go's atomic CAS.
func (l *L2Summary) Set(region uint64) {
	w, m := region/64, uint64(1)<<(region%64)
	for {
		old := l.words[w].Load()
		if old&m != 0 {
			return
		}
		if l.words[w].CompareAndSwap(old, old|m) {
			return
		}
	}
}

// Clear unconditionally clears the region bit.
func (l *L2Summary) Clear(region uint64) {
	w, m := region/64, uint64(1)<<(region%64)
	for {
		old := l.words[w].Load()
		if old&m == 0 {
			return
		}
		if l.words[w].CompareAndSwap(old, old&^m) {
			return
		}
	}
}

// Test is a plain atomic load, used as an advisory skip hint. The
// allocator must never treat Test()==false as authoritative for a SET
// (spec §4.3): it may lag a concurrent writer.
func (l *L2Summary) Test(region uint64) bool {
	w, m := region/64, uint64(1)<<(region%64)
	return l.words[w].Load()&m != 0
}

// Regions returns the number of regions this summary covers.
func (l *L2Summary) Regions() uint64 { return l.regions }
