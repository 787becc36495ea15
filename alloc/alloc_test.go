// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hn4-dev/hn4-sub009/bitmap"
	"github.com/hn4-dev/hn4-sub009/geo"
	"github.com/hn4-dev/hn4-sub009/hal"
	"github.com/hn4-dev/hn4-sub009/state"
	"github.com/hn4-dev/hn4-sub009/status"
	"github.com/hn4-dev/hn4-sub009/superblock"
	"github.com/hn4-dev/hn4-sub009/traj"
)

func newTestCore(t *testing.T, g superblock.Geometry) (*Core, *state.Flags) {
	t.Helper()
	flags := &state.Flags{}
	bm := bitmap.New(g.TotalBlocks, 0, false, false, flags, nil)
	qm := bitmap.NewQualityMask(g.TotalBlocks, flags)
	dev := hal.NewMemDeviceGeometry(g.DeviceType, g.SectorSize, g.TotalBlocks, 7)
	return New(bm, qm, g, flags, dev, false, false), flags
}

func defaultGeometry(total uint64) superblock.Geometry {
	return superblock.Geometry{
		LBAFluxStart:    0,
		LBAHorizonStart: total - total/10,
		JournalStart:    total,
		LBACortexStart:  0,
		LBABitmapStart:  0,
		TotalBlocks:     total,
		BlockSize:       4096,
		SectorSize:      512,
		DeviceType:      geo.SSD,
		FormatProfile:   geo.DEFAULT,
	}
}

// TestSaturationHysteresis is scenario S1.
func TestSaturationHysteresis(t *testing.T) {
	g := defaultGeometry(2000)
	c, flags := newTestCore(t, g)

	fill := func(n uint64) {
		for i := uint64(0); i < n; i++ {
			_, _ = c.Bitmap.Op(i, bitmap.SET)
		}
	}
	drain := func(from, to uint64) {
		for i := to; i < from; i++ {
			_, _ = c.Bitmap.Op(i, bitmap.CLEAR)
		}
	}

	fill(1810) // 90.5%
	res := c.AllocGenesis(0, ClassUserData)
	require.Equal(t, status.InfoHorizonFallback, res.Code)
	require.True(t, flags.Has(state.RuntimeSaturated))

	drain(1810, 1750) // 87.5%, still above 85% recovery
	res = c.AllocGenesis(0, ClassUserData)
	require.Equal(t, status.InfoHorizonFallback, res.Code)
	require.True(t, flags.Has(state.RuntimeSaturated))

	drain(1750, 1600) // 80%, below 85% recovery
	res = c.AllocGenesis(0, ClassUserData)
	require.Equal(t, status.OK, res.Code)
	require.False(t, flags.Has(state.RuntimeSaturated))
}

// TestCollisionResolution is scenario S2.
func TestCollisionResolution(t *testing.T) {
	g := superblock.Geometry{
		LBAFluxStart: 100, LBAHorizonStart: 10100, JournalStart: 10200,
		TotalBlocks: 10200, BlockSize: 4096, SectorSize: 512,
		DeviceType: geo.SSD, FormatProfile: geo.DEFAULT,
	}
	c, _ := newTestCore(t, g)

	tgeom := c.trajGeometry()
	jammed, ok := traj.T(tgeom, 5000, 1, 0, 0, 0)
	require.True(t, ok)
	_, _ = c.Bitmap.Op(jammed, bitmap.SET)

	anchor := Anchor{GravityCenter: 5000, OrbitVector: OrbitVector{0, 0, 0, 0, 0, 1}}
	lba, shell, code := c.AllocBlock(anchor, 0)
	require.Equal(t, status.OK, code)
	require.NotEqual(t, 0, shell)
	require.NotEqual(t, HorizonShell, shell)
	require.NotEqual(t, jammed, lba)
}

func jamOrbit(t *testing.T, c *Core, g, v uint64, m uint16, kmax int) {
	t.Helper()
	tgeom := c.trajGeometry()
	for k := 0; k < kmax; k++ {
		lba, ok := traj.T(tgeom, g, v, 0, uint64(m), k)
		require.True(t, ok)
		_, _ = c.Bitmap.Op(lba, bitmap.SET)
	}
}

// TestGravityCollapseToHorizon is scenario S3 (M=0).
func TestGravityCollapseToHorizon(t *testing.T) {
	g := superblock.Geometry{
		LBAFluxStart: 100, LBAHorizonStart: 10100, JournalStart: 10200,
		TotalBlocks: 10200, BlockSize: 4096, SectorSize: 512,
		DeviceType: geo.SSD, FormatProfile: geo.DEFAULT,
	}
	c, _ := newTestCore(t, g)
	jamOrbit(t, c, 5000, 17, 0, 13)

	anchor := Anchor{GravityCenter: 5000, OrbitVector: OrbitVector{0, 0, 0, 0, 0, 17}}
	lba, shell, code := c.AllocBlock(anchor, 0)
	require.Equal(t, status.OK, code)
	require.Equal(t, HorizonShell, shell)
	require.GreaterOrEqual(t, lba, g.LBAHorizonStart)
}

// TestGravityCollapseScaled is scenario S4 (M=4): must fail, not fall
// through to the Horizon.
func TestGravityCollapseScaled(t *testing.T) {
	g := superblock.Geometry{
		LBAFluxStart: 100, LBAHorizonStart: 10100, JournalStart: 10200,
		TotalBlocks: 10200, BlockSize: 4096, SectorSize: 512,
		DeviceType: geo.SSD, FormatProfile: geo.DEFAULT,
	}
	c, _ := newTestCore(t, g)
	jamOrbit(t, c, 5000, 17, 4, 13)

	before := c.HorizonWriteHead()
	anchor := Anchor{GravityCenter: 5000, OrbitVector: OrbitVector{0, 0, 0, 0, 0, 17}, FractalScale: 4}
	_, _, code := c.AllocBlock(anchor, 0)
	require.Equal(t, status.ErrGravityCollapse, code)
	require.Equal(t, before, c.HorizonWriteHead())
}

// TestHorizonBoundedProbe is scenario S6.
func TestHorizonBoundedProbe(t *testing.T) {
	g := superblock.Geometry{
		LBAFluxStart: 0, LBAHorizonStart: 0, JournalStart: 10,
		TotalBlocks: 10, BlockSize: 4096, SectorSize: 512,
		DeviceType: geo.SSD, FormatProfile: geo.DEFAULT,
	}
	c, _ := newTestCore(t, g)

	for i := 0; i < 10; i++ {
		_, code := c.AllocHorizon()
		require.Equal(t, status.OK, code)
	}
	require.Equal(t, uint64(10), c.Bitmap.UsedBlocks())

	_, code := c.AllocHorizon()
	require.Equal(t, status.ErrENOSPC, code)
	require.Equal(t, uint64(10), c.Bitmap.UsedBlocks())
}

func TestHorizonWrapsCleanlyAtMaxUint64(t *testing.T) {
	g := superblock.Geometry{
		LBAFluxStart: 0, LBAHorizonStart: 0, JournalStart: 4,
		TotalBlocks: 4, BlockSize: 4096, SectorSize: 512,
		DeviceType: geo.SSD, FormatProfile: geo.DEFAULT,
	}
	c, _ := newTestCore(t, g)
	c.horizonWriteHead.Store(^uint64(0))

	lba1, code := c.AllocHorizon()
	require.Equal(t, status.OK, code)

	lba2, code := c.AllocHorizon()
	require.Equal(t, status.OK, code)
	require.NotEqual(t, lba1, lba2)
}

func TestAccessDeniedOnReadOnlyVolume(t *testing.T) {
	g := defaultGeometry(1000)
	bmFlags := &state.Flags{}
	bm := bitmap.New(g.TotalBlocks, 0, true, false, bmFlags, nil)
	qm := bitmap.NewQualityMask(g.TotalBlocks, bmFlags)
	dev := hal.NewMemDeviceGeometry(g.DeviceType, g.SectorSize, g.TotalBlocks, 1)
	c := New(bm, qm, g, bmFlags, dev, true, false)

	_, _, code := c.AllocBlock(Anchor{GravityCenter: 1, OrbitVector: OrbitVector{0, 0, 0, 0, 0, 1}}, 0)
	require.Equal(t, status.ErrAccessDenied, code)
}

func TestTimeParadoxOnSnapshot(t *testing.T) {
	g := defaultGeometry(1000)
	bmFlags := &state.Flags{}
	bm := bitmap.New(g.TotalBlocks, 0, false, false, bmFlags, nil)
	qm := bitmap.NewQualityMask(g.TotalBlocks, bmFlags)
	dev := hal.NewMemDeviceGeometry(g.DeviceType, g.SectorSize, g.TotalBlocks, 1)
	c := New(bm, qm, g, bmFlags, dev, false, true)

	_, _, code := c.AllocBlock(Anchor{GravityCenter: 1, OrbitVector: OrbitVector{0, 0, 0, 0, 0, 1}}, 0)
	require.Equal(t, status.ErrTimeParadox, code)
}

func TestFreeBlockOOBTripsPanic(t *testing.T) {
	g := defaultGeometry(100)
	c, flags := newTestCore(t, g)

	for i := 0; i < oobFreePanicThreshold; i++ {
		require.Equal(t, status.ErrGeometry, c.FreeBlock(g.TotalBlocks+1))
	}
	require.True(t, flags.Has(state.Panic))
}

func TestSpeculativeHoldRollback(t *testing.T) {
	g := defaultGeometry(100)
	c, flags := newTestCore(t, g)

	code, changed := c.SpeculativeHold(5)
	require.Equal(t, status.OK, code)
	require.True(t, changed)
	require.Equal(t, uint64(1), c.Bitmap.UsedBlocks())

	flags.Clear(state.Dirty)
	code = c.RollbackHold(5)
	require.Equal(t, status.OK, code)
	require.Equal(t, uint64(0), c.Bitmap.UsedBlocks())
	require.False(t, flags.Has(state.Dirty))
}

func TestAllocRunPacksSequentialSlots(t *testing.T) {
	g := superblock.Geometry{
		LBACortexStart: 0, LBABitmapStart: 1000,
		TotalBlocks: 1000, BlockSize: 4096, SectorSize: 512,
		DeviceType: geo.SSD, FormatProfile: geo.DEFAULT,
	}
	c, _ := newTestCore(t, g)

	first, code := c.AllocRun(1)
	require.Equal(t, status.OK, code)
	require.Equal(t, uint64(0), first)

	second, code := c.AllocRun(1)
	require.Equal(t, status.OK, code)
	require.Equal(t, uint64(1), second)
}

func TestAllocRunExhaustsToENOSPC(t *testing.T) {
	g := superblock.Geometry{
		LBACortexStart: 0, LBABitmapStart: 5,
		TotalBlocks: 1000, BlockSize: 4096, SectorSize: 512,
		DeviceType: geo.SSD, FormatProfile: geo.DEFAULT,
	}
	c, _ := newTestCore(t, g)

	for i := 0; i < 5; i++ {
		_, code := c.AllocRun(1)
		require.Equal(t, status.OK, code)
	}
	_, code := c.AllocRun(1)
	require.Equal(t, status.ErrENOSPC, code)
}

func TestGenesisReturnsCoprimeOrbitVector(t *testing.T) {
	g := defaultGeometry(2000)
	c, _ := newTestCore(t, g)

	res := c.AllocGenesis(0, ClassUserData)
	require.Equal(t, status.OK, res.Code)
	require.Equal(t, uint64(1), gcdUint64(res.OrbitVector, uint64(g.TotalBlocks)))
}

func TestGenesisSystemProfileWindowIsFirstTenPercent(t *testing.T) {
	g := defaultGeometry(2000)
	g.FormatProfile = geo.SYSTEM
	c, _ := newTestCore(t, g)

	for i := 0; i < 20; i++ {
		res := c.AllocGenesis(0, ClassUserData)
		require.Equal(t, status.OK, res.Code)
		require.Less(t, res.GravityCenter, g.TotalBlocks/10)
	}
}
