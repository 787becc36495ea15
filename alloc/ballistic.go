// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"github.com/hn4-dev/hn4-sub009/bitmap"
	"github.com/hn4-dev/hn4-sub009/geo"
	"github.com/hn4-dev/hn4-sub009/state"
	"github.com/hn4-dev/hn4-sub009/status"
	"github.com/hn4-dev/hn4-sub009/traj"
)

// HorizonShell is the sentinel shell index returned alongside any LBA
// drawn from the Horizon ring rather than the ballistic orbit. Shells
// 13-14 are reserved (spec §4.5 step 4).
const HorizonShell = 15

// AllocBlock is the Ballistic Allocator (spec §4.5): it probes orbital
// shells k=0..K_max-1 for anchor/logicalIndex, claiming the first free,
// sufficiently high quality candidate, and falls through to the
// Horizon ring when the orbit is exhausted. A PANIC flag on the volume
// halts further allocation here (spec §7), same as ReadOnly/Snapshot.
func (c *Core) AllocBlock(anchor Anchor, logicalIndex uint64) (lba uint64, shell int, code status.Code) {
	if c.ReadOnly {
		return 0, 0, status.ErrAccessDenied
	}
	if c.Snapshot {
		return 0, 0, status.ErrTimeParadox
	}
	if c.Flags.Has(state.Panic) {
		return 0, 0, status.ErrAccessDenied
	}

	if c.Gate.CheckUpdate() {
		hlba, hcode := c.AllocHorizon()
		return hlba, HorizonShell, hcode
	}

	tgeom := c.trajGeometry()
	kmax := tgeom.KMax()
	v := anchor.OrbitVector.V()

	for k := 0; k < kmax; k++ {
		candidate, ok := traj.T(tgeom, anchor.GravityCenter, v, logicalIndex, uint64(anchor.FractalScale), k)
		if !ok {
			break
		}

		tier, err := c.Quality.Get(candidate)
		if err != nil {
			return 0, k, status.ErrGeometry
		}
		if tier == bitmap.Toxic {
			continue
		}
		if tier == bitmap.Bronze && anchor.IsMetadata() {
			continue
		}

		opCode, changed := c.Bitmap.Op(candidate, bitmap.SET)
		switch {
		case opCode == status.ErrBitmapCorrupt:
			return 0, k, status.ErrBitmapCorrupt
		case opCode == status.ErrGeometry:
			return 0, k, status.ErrGeometry
		case changed:
			c.setLastAllocG(anchor.GravityCenter)
			return candidate, k, status.OK
		default:
			// already used; try the next shell.
		}
	}

	switch {
	case anchor.FractalScale > 0:
		return 0, 0, status.ErrGravityCollapse
	case c.Geometry.FormatProfile == geo.SYSTEM && anchor.IsMetadata():
		return 0, 0, status.ErrENOSPC
	default:
		hlba, hcode := c.AllocHorizon()
		return hlba, HorizonShell, hcode
	}
}
