// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package volume wires the Hydra-Nexus allocator subsystems (HAL
// device, superblock, bitmap, quality mask, chronicle region, and the
// alloc.Core allocators) behind a single handle, in the teacher's
// dbm.DB idiom (a struct of cooperating subsystems behind Create/Open/
// Close, guarded by one "big kernel lock").
package volume

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hn4-dev/hn4-sub009/alloc"
	"github.com/hn4-dev/hn4-sub009/bitmap"
	"github.com/hn4-dev/hn4-sub009/chronicle"
	"github.com/hn4-dev/hn4-sub009/hal"
	"github.com/hn4-dev/hn4-sub009/state"
	"github.com/hn4-dev/hn4-sub009/status"
	"github.com/hn4-dev/hn4-sub009/superblock"
)

// Volume is the mounted handle over a device: the superblock plus
// every allocator structure that reads or mutates it. Mount/Unmount
// only allocate and release these in-memory structures (spec §9
// "Resource scoping"); there is no path resolution or VFS layer here.
type Volume struct {
	bkl    sync.Mutex
	closed bool

	Device     hal.Device
	Superblock *superblock.Superblock
	Bitmap     *bitmap.Bitmap
	Quality    *bitmap.QualityMask
	Chronicle  chronicle.Geometry
	Core       *alloc.Core
	Flags      *state.Flags

	log *logrus.Entry
}

// Format validates geometry, builds a fresh superblock and a zeroed
// in-memory bitmap/L2/quality mask for device, and returns a mounted
// Volume ready for allocation. Nothing is written to device.
func Format(device hal.Device, geometry superblock.Geometry, strictAudit bool, log *logrus.Entry) (*Volume, error) {
	sb := superblock.New(geometry, strictAudit)
	if err := sb.Validate(); err != nil {
		return nil, err
	}
	return mount(device, sb, log), nil
}

// Mount validates sb and attaches to it, building fresh, zeroed
// in-memory bitmap/quality/L2 structures for device. Nothing is read
// from device: the bitmap, counters and L2 Summary of the mounted
// Volume start empty whatever the device holds.
func Mount(device hal.Device, sb *superblock.Superblock, log *logrus.Entry) (*Volume, error) {
	if err := sb.Validate(); err != nil {
		return nil, err
	}
	return mount(device, sb, log), nil
}

func mount(device hal.Device, sb *superblock.Superblock, log *logrus.Entry) *Volume {
	flags := sb.Flags
	if flags == nil {
		flags = &state.Flags{}
		sb.Flags = flags
	}

	bm := bitmap.New(sb.Geometry.TotalBlocks, sb.UUIDLow56(), false, sb.StrictAudit, flags, log)
	qm := bitmap.NewQualityMask(sb.Geometry.TotalBlocks, flags)
	core := alloc.New(bm, qm, sb.Geometry, flags, device, false, false)

	return &Volume{
		Device:     device,
		Superblock: sb,
		Bitmap:     bm,
		Quality:    qm,
		Core:       core,
		Flags:      flags,
		log:        log,
		Chronicle: chronicle.Geometry{
			ChronicleStart: sb.Geometry.JournalStart,
			EpochRingStart: sb.Geometry.JournalStart,
			EpochRingLen:   0,
		},
	}
}

// MountReadOnly mounts device with the allocator's read-only setting on:
// AllocBlock returns ErrAccessDenied. FreeBlock, AllocGenesis and
// AllocRun do not check that setting and still mutate the in-memory
// structures.
func MountReadOnly(device hal.Device, sb *superblock.Superblock, log *logrus.Entry) (*Volume, error) {
	v, err := Mount(device, sb, log)
	if err != nil {
		return nil, err
	}
	v.Core.ReadOnly = true
	return v, nil
}

// Unmount flushes the device and releases the volume handle. It is
// idempotent: a second call is a no-op, matching dbm.DB.Close.
func (v *Volume) Unmount() error {
	v.bkl.Lock()
	defer v.bkl.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	return v.Device.Flush()
}

// AllocBlock claims a block for anchor/logicalIndex via the Ballistic
// Allocator.
func (v *Volume) AllocBlock(anchor alloc.Anchor, logicalIndex uint64) (uint64, int, status.Code) {
	return v.Core.AllocBlock(anchor, logicalIndex)
}

// AllocGenesis draws a fresh anchor seed via the Genesis Allocator.
func (v *Volume) AllocGenesis(fractalScale uint16, class alloc.DataClass) alloc.GenesisResult {
	return v.Core.AllocGenesis(fractalScale, class)
}

// AllocRun packs slots into the Cortex region.
func (v *Volume) AllocRun(slots uint64) (uint64, status.Code) {
	return v.Core.AllocRun(slots)
}

// FreeBlock releases block back to the bitmap.
func (v *Volume) FreeBlock(block uint64) status.Code {
	return v.Core.FreeBlock(block)
}

// Verify walks the bitmap and cross-checks its counters and L2
// Summary, returning a populated AllocStats report.
func (v *Volume) Verify() (bitmap.AllocStats, error) {
	return v.Bitmap.Verify()
}

// Panicked reports whether the volume's PANIC flag is set, per spec
// §4.10/§7: once set, AllocBlock refuses further ballistic allocation
// (alloc/ballistic.go), though the volume keeps serving reads.
func (v *Volume) Panicked() bool {
	return v.Flags.Has(state.Panic)
}

// CheckGeometry re-validates the mounted superblock's geometry,
// surfacing *hn4errors.ErrBadSuperblock on drift detected after format
// time (e.g. an operator editing a copied superblock file).
func (v *Volume) CheckGeometry() error {
	return v.Superblock.Validate()
}
