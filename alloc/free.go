// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"github.com/hn4-dev/hn4-sub009/bitmap"
	"github.com/hn4-dev/hn4-sub009/state"
	"github.com/hn4-dev/hn4-sub009/status"
)

// FreeBlock releases block through the Bitmap Operator's CLEAR path.
// Repeated out-of-range frees indicate caller-side memory corruption;
// crossing oobFreePanicThreshold trips PANIC (spec §4.10).
func (c *Core) FreeBlock(block uint64) status.Code {
	if block >= c.Geometry.TotalBlocks {
		c.taintCounter.Add(1)
		if c.oobFreeCount.Add(1) >= oobFreePanicThreshold {
			c.Flags.Set(state.Panic)
		}
		return status.ErrGeometry
	}
	code, _ := c.Bitmap.Op(block, bitmap.CLEAR)
	return code
}

// SpeculativeHold claims block without counting it as a logical
// allocation failure on contention; callers roll it back with
// RollbackHold via FORCE_CLEAR, which never sets DIRTY (spec §9
// "Resource scoping": "acquired + tentatively held").
func (c *Core) SpeculativeHold(block uint64) (status.Code, bool) {
	code, changed := c.Bitmap.Op(block, bitmap.SET)
	return code, changed
}

// RollbackHold releases a speculatively held block via FORCE_CLEAR.
func (c *Core) RollbackHold(block uint64) status.Code {
	code, _ := c.Bitmap.Op(block, bitmap.FORCE_CLEAR)
	return code
}

// OOBFreeCount returns the lifetime count of out-of-range FreeBlock
// calls observed (diagnostics).
func (c *Core) OOBFreeCount() uint64 { return c.oobFreeCount.Load() }
