// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hal defines the Hardware Abstraction Layer interface the
// allocator consumes: device capabilities, synchronous and asynchronous
// I/O, zone-append emulation, aligned allocation, and a random-u64
// source (spec §1). It does not implement real device drivers (that is
// explicitly out of scope); MemDevice and FileDevice exist to exercise
// the contract, not to replace a production NVMe/ZNS stack.
package hal

import "github.com/hn4-dev/hn4-sub009/geo"

// AlignTo is the minimum alignment AlignedAlloc must honor (spec §1:
// "aligned memory allocation, ≥128-byte alignment").
const AlignTo = 128

// Capabilities describes the fixed, format-time hardware character of a
// device: sector size, capacity in blocks, and the flags that drive
// inertial damping and K_max in package traj.
type Capabilities struct {
	SectorSize uint32
	Capacity   uint64
	Device     geo.DeviceType
}

// IORequest is a single asynchronous I/O submission: a read when Write
// is nil, a write otherwise.
type IORequest struct {
	Off   int64
	Read  []byte
	Write []byte
}

// IOResult is delivered to an IORequest's callback on completion.
type IOResult struct {
	N   int
	Err error
}

// Device is the HAL surface the allocator and bitmap consume. A Device
// is not required to be safe for concurrent use by multiple goroutines
// issuing overlapping writes to the same region; callers serialize
// through the Bitmap/Superblock layers the way lldb.Filer requires of
// its callers.
type Device interface {
	// Caps reports the device's fixed capabilities.
	Caps() Capabilities

	// ReadAt/WriteAt perform synchronous, offset-addressed I/O, as
	// lldb.Filer.ReadAt/WriteAt.
	ReadAt(b []byte, off int64) (n int, err error)
	WriteAt(b []byte, off int64) (n int, err error)

	// SubmitIO queues req and invokes cb exactly once on completion.
	// The callback may run on a different goroutine than the caller.
	SubmitIO(req IORequest, cb func(IOResult))

	// ZoneAppendSync emulates a zoned-device append: it writes b at the
	// device's current append pointer for the zone containing off and
	// returns the offset actually written to.
	ZoneAppendSync(zoneOff int64, b []byte) (writtenAt int64, err error)

	// AlignedAlloc returns a byte slice whose backing array starts at
	// an address that is a multiple of AlignTo.
	AlignedAlloc(size int) ([]byte, error)

	// RandomU64 returns a uniformly distributed random 64-bit value,
	// used by the Genesis allocator's affinity-window jitter.
	RandomU64() uint64

	// Flush durably persists any buffered state (superblock checkpoint
	// writes use this). Devices that are always durable may no-op.
	Flush() error

	// Close releases any resources held by the device.
	Close() error
}
