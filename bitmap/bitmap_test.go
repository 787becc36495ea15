// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hn4-dev/hn4-sub009/armor"
	"github.com/hn4-dev/hn4-sub009/state"
	"github.com/hn4-dev/hn4-sub009/status"
)

func newTestBitmap(t *testing.T, total uint64) (*Bitmap, *state.Flags) {
	t.Helper()
	flags := &state.Flags{}
	return New(total, 0, false, false, flags, nil), flags
}

func TestSetThenTestIdempotent(t *testing.T) {
	b, _ := newTestBitmap(t, 128)

	code, changed := b.Op(5, SET)
	require.Equal(t, status.OK, code)
	require.True(t, changed)
	require.Equal(t, uint64(1), b.UsedBlocks())

	code, changed = b.Op(5, SET)
	require.Equal(t, status.OK, code)
	require.False(t, changed)
	require.Equal(t, uint64(1), b.UsedBlocks())

	code, changed = b.Op(5, TEST)
	require.Equal(t, status.OK, code)
	require.True(t, changed)
}

func TestClearOnClearBitIsBenignInProduction(t *testing.T) {
	b, flags := newTestBitmap(t, 128)
	_, _ = b.Op(5, CLEAR)
	require.False(t, flags.Has(state.Dirty))
}

func TestClearOnClearBitSetsDirtyInStrictAudit(t *testing.T) {
	flags := &state.Flags{}
	b := New(128, 0, false, true, flags, nil)
	_, _ = b.Op(5, CLEAR)
	require.True(t, flags.Has(state.Dirty))
}

func TestForceClearNeverSetsDirty(t *testing.T) {
	b, flags := newTestBitmap(t, 128)
	_, _ = b.Op(5, SET)
	flags.Clear(state.Dirty)
	_, _ = b.Op(5, FORCE_CLEAR)
	require.False(t, flags.Has(state.Dirty))
	require.Equal(t, uint64(0), b.UsedBlocks())
}

func TestOOBReturnsGeometryWithoutPanic(t *testing.T) {
	b, flags := newTestBitmap(t, 64)
	code, changed := b.Op(64, SET)
	require.Equal(t, status.ErrGeometry, code)
	require.False(t, changed)
	require.False(t, flags.Has(state.Panic))
}

func TestL2SetOnFirstBitInRegion(t *testing.T) {
	b, _ := newTestBitmap(t, RegionSize*2)
	_, _ = b.Op(10, SET)
	require.True(t, b.L2().Test(0))
	require.False(t, b.L2().Test(1))
}

func TestL2ClearsWhenRegionEmptied(t *testing.T) {
	b, _ := newTestBitmap(t, RegionSize)
	_, _ = b.Op(3, SET)
	require.True(t, b.L2().Test(0))
	_, _ = b.Op(3, CLEAR)
	require.False(t, b.L2().Test(0))
}

func TestL2FalseNegativeSelfHeals(t *testing.T) {
	b, _ := newTestBitmap(t, RegionSize)
	_, _ = b.Op(0, SET)
	b.L2().Clear(0)

	code, changed := b.Op(0, SET)
	require.Equal(t, status.OK, code)
	require.False(t, changed)
	require.True(t, b.L2().Test(0))
}

// TestECCHealingPersists is scenario S5: a single flipped ECC bit is
// healed on TEST, heal_count increments, and the corrected data is
// returned.
func TestECCHealingPersists(t *testing.T) {
	b, _ := newTestBitmap(t, 64)
	data := uint64(0xCAFEBABE)
	ecc := armor.Hamming(data)
	flipped := ecc ^ 0x80 // flip top bit of ecc
	w := armor.Encode(data, 0)
	w.ECC = flipped
	b.cells[0].Store(&w)

	code, _ := b.Op(0, TEST)
	require.Equal(t, status.InfoHealed, code)
	require.Equal(t, uint64(1), b.HealCount())
	require.Equal(t, armor.Hamming(data), b.cells[0].Load().ECC)
	require.Equal(t, data, b.cells[0].Load().Data)
}

func TestDoubleBitCorruptionPanics(t *testing.T) {
	b, flags := newTestBitmap(t, 64)
	data := uint64(0xCAFEBABE)
	w := armor.Encode(data, 0)
	w.Data ^= (1 << 3) ^ (1 << 40)
	b.cells[0].Store(&w)

	code, _ := b.Op(0, TEST)
	require.Equal(t, status.ErrBitmapCorrupt, code)
	require.True(t, flags.Has(state.Panic))
	require.Equal(t, uint64(0), b.HealCount())
}

// TestConcurrentSetExactlyOneWins exercises the "two concurrent SET"
// boundary behavior from spec §8.
func TestConcurrentSetExactlyOneWins(t *testing.T) {
	b, _ := newTestBitmap(t, 64)
	const n = 64
	results := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, changed := b.Op(7, SET)
			results[i] = changed
		}(i)
	}
	wg.Wait()

	trueCount := 0
	for _, r := range results {
		if r {
			trueCount++
		}
	}
	require.Equal(t, 1, trueCount)
	require.Equal(t, uint64(1), b.UsedBlocks())
}

func TestVerifyDetectsDriftedCounter(t *testing.T) {
	b, _ := newTestBitmap(t, 64)
	_, _ = b.Op(1, SET)
	_, _ = b.Op(2, SET)
	b.usedBlocks.Store(5)

	_, err := b.Verify()
	require.Error(t, err)
}

func TestVerifyCleanBitmap(t *testing.T) {
	b, _ := newTestBitmap(t, RegionSize)
	_, _ = b.Op(1, SET)
	_, _ = b.Op(2, SET)

	stats, err := b.Verify()
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.PopcountBlocks)
	require.Equal(t, uint64(2), stats.UsedBlocksCounter)
}

func TestReadOnlyHealSuppressesWriteback(t *testing.T) {
	flags := &state.Flags{}
	b := New(64, 0, true, false, flags, nil)
	data := uint64(0xCAFEBABE)
	ecc := armor.Hamming(data)
	w := armor.Encode(data, 0)
	w.ECC = ecc ^ 0x80
	b.cells[0].Store(&w)

	code, _ := b.Op(0, TEST)
	require.Equal(t, status.OK, code)
	require.NotEqual(t, armor.Hamming(data), b.cells[0].Load().ECC)
	require.Equal(t, uint64(0), b.HealCount())
}
