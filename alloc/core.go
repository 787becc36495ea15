// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"sync"
	"sync/atomic"

	"github.com/hn4-dev/hn4-sub009/bitmap"
	"github.com/hn4-dev/hn4-sub009/hal"
	"github.com/hn4-dev/hn4-sub009/state"
	"github.com/hn4-dev/hn4-sub009/superblock"
	"github.com/hn4-dev/hn4-sub009/traj"
)

// oobFreePanicThreshold is the number of out-of-range FreeBlock calls
// that trips PANIC (spec §4.10: "on crossing a threshold (~20)").
const oobFreePanicThreshold = 20

// Core wires together the pieces the Ballistic/Genesis/Horizon/Cortex
// allocators share: the Bitmap Operator, the Quality Mask, volume
// geometry, the device (for randomness and alignment), and the
// allocator-owned counters the spec keeps outside the bitmap proper
// (horizon_write_head, taint_counter, last_alloc_g).
type Core struct {
	Bitmap   *bitmap.Bitmap
	Quality  *bitmap.QualityMask
	Geometry superblock.Geometry
	Flags    *state.Flags
	Device   hal.Device
	Gate     *SaturationGate

	ReadOnly bool
	Snapshot bool

	horizonWriteHead atomic.Uint64
	taintCounter     atomic.Uint64
	lastAllocGMu     sync.Mutex
	lastAllocG       uint64

	cortexSearchHead atomic.Uint64
	oobFreeCount     atomic.Uint64
}

// New constructs a Core over an already-mounted Bitmap/QualityMask pair.
func New(bm *bitmap.Bitmap, qm *bitmap.QualityMask, geometry superblock.Geometry, flags *state.Flags, device hal.Device, readOnly, snapshot bool) *Core {
	c := &Core{
		Bitmap:   bm,
		Quality:  qm,
		Geometry: geometry,
		Flags:    flags,
		Device:   device,
		ReadOnly: readOnly,
		Snapshot: snapshot,
	}
	c.Gate = NewSaturationGate(bm, flags)
	c.cortexSearchHead.Store(geometry.LBACortexStart)
	return c
}

// trajGeometry projects the volume geometry the way package traj wants
// it: flux start, capacity, and the device/profile tags governing
// inertial damping and K_max.
func (c *Core) trajGeometry() traj.Geometry {
	return traj.Geometry{
		FluxStart:   c.Geometry.LBAFluxStart,
		TotalBlocks: c.Geometry.TotalBlocks,
		Device:      c.Geometry.DeviceType,
		Profile:     c.Geometry.FormatProfile,
	}
}

// HorizonWriteHead returns the current logical write head (for
// diagnostics/tests).
func (c *Core) HorizonWriteHead() uint64 { return c.horizonWriteHead.Load() }

// TaintCounter returns the lifetime count of OOB frees observed.
func (c *Core) TaintCounter() uint64 { return c.taintCounter.Load() }

// LastAllocG returns the most recently used gravity center, used to
// center the HDD affinity window (spec §4.6.1). Per spec §5 this
// counter is relaxed/single-writer-per-profile; a mutex stands in for
// "Relaxed" ordering since Go has no raw non-atomic escape hatch for a
// u64 shared across goroutines without a race-detector flag.
func (c *Core) LastAllocG() uint64 {
	c.lastAllocGMu.Lock()
	defer c.lastAllocGMu.Unlock()
	return c.lastAllocG
}

func (c *Core) setLastAllocG(g uint64) {
	c.lastAllocGMu.Lock()
	c.lastAllocG = g
	c.lastAllocGMu.Unlock()
}
