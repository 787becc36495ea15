// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"github.com/hn4-dev/hn4-sub009/bitmap"
	"github.com/hn4-dev/hn4-sub009/state"
)

// Hysteresis thresholds from spec §4.9. GenesisThreshold/RecoveryThreshold
// gate the sticky RUNTIME_SATURATED flag; UpdateThreshold is a plain,
// non-sticky check on in-place updates.
const (
	GenesisThreshold  = 0.90
	UpdateThreshold   = 0.95
	RecoveryThreshold = 0.85
)

// SaturationGate is the hysteretic threshold test on used_blocks /
// total_blocks, consulted at allocator entry (spec §4.9).
type SaturationGate struct {
	bitmap *bitmap.Bitmap
	flags  *state.Flags
}

// NewSaturationGate builds a gate over bm, updating the sticky flag in
// flags.
func NewSaturationGate(bm *bitmap.Bitmap, flags *state.Flags) *SaturationGate {
	return &SaturationGate{bitmap: bm, flags: flags}
}

// Usage returns the current used_blocks/total_blocks ratio.
func (g *SaturationGate) Usage() float64 {
	total := g.bitmap.TotalBlocks()
	if total == 0 {
		return 0
	}
	return float64(g.bitmap.UsedBlocks()) / float64(total)
}

// CheckGenesis applies genesis hysteresis: once tripped at
// GenesisThreshold, every subsequent call reports saturated until usage
// drops below RecoveryThreshold, even if it momentarily dips below
// GenesisThreshold in between (spec §4.9: "Hysteresis is on the flag,
// not on individual calls").
func (g *SaturationGate) CheckGenesis() bool {
	usage := g.Usage()
	if g.flags.Has(state.RuntimeSaturated) {
		if usage < RecoveryThreshold {
			g.flags.Clear(state.RuntimeSaturated)
			return false
		}
		return true
	}
	if usage >= GenesisThreshold {
		g.flags.Set(state.RuntimeSaturated)
		return true
	}
	return false
}

// CheckUpdate applies the plain (non-hysteretic) update threshold.
func (g *SaturationGate) CheckUpdate() bool {
	return g.Usage() >= UpdateThreshold
}
