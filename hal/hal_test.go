// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hal

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/hn4-dev/hn4-sub009/geo"
)

func TestMemDeviceReadWriteRoundTrip(t *testing.T) {
	d := NewMemDeviceGeometry(geo.SSD, 4096, 1<<20, 1)
	payload := []byte("the quick brown fox")
	n, err := d.WriteAt(payload, 4096*3)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	got := make([]byte, len(payload))
	n, err = d.ReadAt(got, 4096*3)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, got)
}

func TestMemDeviceReadUnwrittenIsZero(t *testing.T) {
	d := NewMemDeviceGeometry(geo.SSD, 4096, 1<<20, 1)
	_, err := d.WriteAt([]byte{1, 2, 3}, 1<<30)
	require.NoError(t, err)

	got := make([]byte, 8)
	_, err = d.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), got)
}

func TestMemDeviceAlignedAllocIsAligned(t *testing.T) {
	d := NewMemDeviceGeometry(geo.SSD, 4096, 1<<20, 1)
	for _, size := range []int{1, 17, 128, 513, 4096} {
		buf, err := d.AlignedAlloc(size)
		require.NoError(t, err)
		require.Len(t, buf, size)
		require.Zero(t, uintptr(unsafe.Pointer(&buf[0]))%AlignTo)
	}
}

func TestMemDeviceRandomU64Deterministic(t *testing.T) {
	a := NewMemDeviceGeometry(geo.SSD, 4096, 1<<20, 42)
	b := NewMemDeviceGeometry(geo.SSD, 4096, 1<<20, 42)
	require.Equal(t, a.RandomU64(), b.RandomU64())
}

func TestMemDeviceSubmitIOInvokesCallback(t *testing.T) {
	d := NewMemDeviceGeometry(geo.SSD, 4096, 1<<20, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	d.SubmitIO(IORequest{Off: 0, Write: []byte("hi")}, func(res IOResult) {
		require.NoError(t, res.Err)
		require.Equal(t, 2, res.N)
		wg.Done()
	})
	wg.Wait()
}

func TestMemDeviceZoneAppendSyncAdvancesPointer(t *testing.T) {
	d := NewMemDeviceGeometry(geo.ZNS, 4096, 1<<20, 1)
	first, err := d.ZoneAppendSync(4096*10, []byte("AAAA"))
	require.NoError(t, err)
	require.Equal(t, int64(4096*10), first)

	second, err := d.ZoneAppendSync(4096*10, []byte("BBBB"))
	require.NoError(t, err)
	require.Equal(t, first+4, second)

	got := make([]byte, 8)
	_, err = d.ReadAt(got, first)
	require.NoError(t, err)
	require.Equal(t, []byte("AAAABBBB"), got)
}

func TestMemDeviceCapsRoundTrip(t *testing.T) {
	d := NewMemDeviceGeometry(geo.HDD, 512, 9999, 1)
	caps := d.Caps()
	require.Equal(t, uint32(512), caps.SectorSize)
	require.Equal(t, uint64(9999), caps.Capacity)
	require.Equal(t, geo.HDD, caps.Device)
}
