// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package armor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordMarshalRoundTrip(t *testing.T) {
	w := Encode(0xDEADBEEFCAFEBABE, 0x123456789ABCDE&((1<<56)-1))
	b := w.Marshal()
	require.Len(t, b, Size)

	got := Unmarshal(b[:])
	require.Equal(t, w, got)
	require.Equal(t, w.Version(), got.Version())
}

func TestVersionMuxIsInvolution(t *testing.T) {
	uuidLow56 := uint64(0xABCDEF0123)
	ver := uint64(42)
	muxed := MuxVersion(ver, uuidLow56)
	require.NotEqual(t, ver, muxed)
	require.Equal(t, ver, MuxVersion(muxed, uuidLow56))
}

func TestWithVersionRoundTrip(t *testing.T) {
	w := Word{Data: 7, ECC: Hamming(7)}
	for _, v := range []uint64{0, 1, 0xFF, 1<<56 - 1} {
		w2 := w.WithVersion(v)
		require.Equal(t, v, w2.Version())
	}
}
