// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"github.com/hn4-dev/hn4-sub009/bitmap"
	"github.com/hn4-dev/hn4-sub009/status"
)

// HorizonProbeBudget bounds the number of ring slots AllocHorizon will
// probe before giving up. Spec §9 leaves the exact constant open
// ("tests imply ≤1024 but also ≤128 in other paths"); 1024 is the
// value this implementation commits to everywhere.
const HorizonProbeBudget = 1024

// AllocHorizon claims the next free slot in the Horizon ring, a strict
// O(1)-bounded linear fallback over [lba_horizon_start, journal_start)
// (spec §4.7). horizon_write_head is a monotonically increasing
// fetch-add counter; uint64 overflow wraps cleanly since Go's unsigned
// arithmetic is defined modulo 2^64.
func (c *Core) AllocHorizon() (uint64, status.Code) {
	geom := c.Geometry
	if geom.JournalStart <= geom.LBAHorizonStart || geom.BlockSize%geom.SectorSize != 0 {
		return 0, status.ErrGeometry
	}
	capacity := geom.HorizonCapacity()
	if capacity == 0 {
		return 0, status.ErrENOSPC
	}

	for attempt := 0; attempt < HorizonProbeBudget; attempt++ {
		head := c.horizonWriteHead.Add(1) - 1
		idx := head % capacity
		lba := geom.LBAHorizonStart + idx

		code, changed := c.Bitmap.Op(lba, bitmap.SET)
		if code.IsError() {
			return 0, code
		}
		if changed {
			// bitmap.Op has already set DIRTY for this successful claim
			// (spec §4.2 step 7); no separate wrap bookkeeping needed.
			return lba, status.OK
		}
	}
	return 0, status.ErrENOSPC
}
