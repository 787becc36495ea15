// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chronicle describes the geometry of the append-only audit
// log and the rotating Epoch Manager ring (spec §1, §9). The allocator
// only ever reads these fields to stay clear of their regions; append
// semantics, replay, and epoch rotation are explicit non-goals and are
// not implemented here; this is grounded in the teacher's xact.go/
// 2pc.go write-ahead-log machinery only to the extent of "a region the
// allocator must not step on", never its actual journaling protocol.
package chronicle

// Geometry is the slice of Chronicle/Epoch-Manager layout the
// allocator needs to stay out of: where the chronicle begins, and the
// bounds of the epoch ring.
type Geometry struct {
	ChronicleStart uint64
	EpochRingStart uint64
	EpochRingLen   uint64
}

// Contains reports whether lba falls inside the chronicle or epoch
// ring, i.e. whether the allocator must never place a ballistic anchor
// there.
func (g Geometry) Contains(lba uint64) bool {
	if lba >= g.ChronicleStart && g.EpochRingStart > g.ChronicleStart && lba < g.EpochRingStart {
		return true
	}
	return lba >= g.EpochRingStart && lba < g.EpochRingStart+g.EpochRingLen
}
