// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitmap

import (
	"sync/atomic"

	"github.com/hn4-dev/hn4-sub009/hn4errors"
	"github.com/hn4-dev/hn4-sub009/state"
)

// Tier is a quality-mask media classification.
type Tier uint8

const (
	Toxic  Tier = 0
	Bronze Tier = 1
	Silver Tier = 2
	Gold   Tier = 3
)

// QualityMask packs 2 bits per block, 32 blocks per 64-bit word, per spec
// §3/§6. It is read-only at steady state; any remap (bad-block handling)
// must be serialized by a lock external to this type (spec §5).
type QualityMask struct {
	words       []atomic.Uint64
	totalBlocks uint64
	flags       *state.Flags
}

// NewQualityMask allocates a quality mask for totalBlocks blocks, all
// initialized to Gold (the optimistic default; a formatter overwrites
// known-bad regions after a device scan).
func NewQualityMask(totalBlocks uint64, flags *state.Flags) *QualityMask {
	n := (totalBlocks + 31) / 32
	if n == 0 {
		n = 1
	}
	q := &QualityMask{words: make([]atomic.Uint64, n), totalBlocks: totalBlocks, flags: flags}
	var allGold uint64
	for i := 0; i < 32; i++ {
		allGold |= uint64(Gold) << uint(i*2)
	}
	for i := range q.words {
		q.words[i].Store(allGold)
	}
	return q
}

// Get returns the quality tier of block. An out-of-bounds block indicates
// geometry corruption: it sets PANIC and returns an error, per spec §3
// ("Out-of-bounds access on this map indicates geometry corruption and is
// fatal").
func (q *QualityMask) Get(block uint64) (Tier, error) {
	if block >= q.totalBlocks {
		q.flags.Set(state.Panic)
		return Toxic, &hn4errors.ErrGeometry{Op: "QualityMask.Get", Block: block, Total: q.totalBlocks}
	}
	w := block / 32
	shift := (block % 32) * 2
	v := (q.words[w].Load() >> shift) & 0b11
	return Tier(v), nil
}

// Set overwrites the quality tier of block. Callers MUST hold whatever
// external lock serializes bad-block remaps. Set itself updates the word
// with a compare-and-swap loop, so concurrent Sets on the same word do
// not overwrite each other's bits.
func (q *QualityMask) Set(block uint64, t Tier) error {
	if block >= q.totalBlocks {
		q.flags.Set(state.Panic)
		return &hn4errors.ErrGeometry{Op: "QualityMask.Set", Block: block, Total: q.totalBlocks}
	}
	w := block / 32
	shift := (block % 32) * 2
	for {
		old := q.words[w].Load()
		next := (old &^ (0b11 << shift)) | (uint64(t) << shift)
		if old == next || q.words[w].CompareAndSwap(old, next) {
			return nil
		}
	}
}
