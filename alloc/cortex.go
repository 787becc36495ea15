// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"github.com/hn4-dev/hn4-sub009/bitmap"
	"github.com/hn4-dev/hn4-sub009/status"
)

// CortexSlotSize is the fixed slot width packed into the Cortex region
// (spec §4.8: "Packs 128-byte slots").
const CortexSlotSize = 128

// AllocRun is the Cortex Slot Allocator (spec §4.8): it packs
// fixed-size slots into [lba_cortex_start, lba_bitmap_start), using the
// L2 Summary as an O(1) skip over any region whose L2 bit is set (at
// least one block in it used).
func (c *Core) AllocRun(slots uint64) (uint64, status.Code) {
	if slots == 0 {
		return 0, status.ErrInvalidArgument
	}

	regionBlocks := uint64(bitmap.RegionSize)
	for {
		head := c.cortexSearchHead.Load()
		if head+slots > c.Geometry.LBABitmapStart {
			return 0, status.ErrENOSPC
		}

		region := head / regionBlocks
		if c.Bitmap.L2().Test(region) {
			// Region has at least one used block: skip straight to its
			// end rather than probing slot by slot.
			next := (region + 1) * regionBlocks
			if c.cortexSearchHead.CompareAndSwap(head, next) {
				continue
			}
			continue
		}

		next := head + slots
		if c.cortexSearchHead.CompareAndSwap(head, next) {
			return head, status.OK
		}
		// Lost the race to another caller; retry from the fresh head.
	}
}
