// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hal

import (
	"io"
	"math/rand"
	"sync"
	"unsafe"

	"github.com/cznic/mathutil"

	"github.com/hn4-dev/hn4-sub009/geo"
)

const (
	pgBits = 12
	pgSize = 1 << pgBits
	pgMask = pgSize - 1
)

type memPage = [pgSize]byte

// MemDevice is an in-process fake Device, grounded in lldb.MemFiler's
// page-table-of-byte-slices design: storage is a sparse map of fixed
// size pages rather than one contiguous allocation, so a MemDevice
// sized for a multi-terabyte test volume costs nothing until blocks are
// actually touched.
type MemDevice struct {
	mu    sync.Mutex
	pages map[int64]*memPage
	size  int64
	caps  Capabilities
	rng   *rand.Rand

	zoneMu      sync.Mutex
	appendPtr   map[int64]int64
	closed      bool
}

var _ Device = (*MemDevice)(nil)

// NewMemDevice returns a zeroed MemDevice reporting the given
// capabilities. seed makes RandomU64 deterministic for tests.
func NewMemDevice(caps Capabilities, seed int64) *MemDevice {
	return &MemDevice{
		pages:     make(map[int64]*memPage),
		caps:      caps,
		rng:       rand.New(rand.NewSource(seed)),
		appendPtr: make(map[int64]int64),
	}
}

// Caps implements Device.
func (d *MemDevice) Caps() Capabilities { return d.caps }

// ReadAt implements Device.
func (d *MemDevice) ReadAt(b []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	avail := d.size - off
	if avail <= 0 {
		return 0, io.EOF
	}
	n := len(b)
	var err error
	if int64(n) > avail {
		n = int(avail)
		err = io.EOF
	}

	pgI := off >> pgBits
	pgO := int(off & pgMask)
	rem := n
	out := b
	for rem != 0 {
		pg := d.pages[pgI]
		chunk := pgSize - pgO
		if chunk > rem {
			chunk = rem
		}
		if pg != nil {
			copy(out[:chunk], pg[pgO:pgO+chunk])
		} else {
			for i := 0; i < chunk; i++ {
				out[i] = 0
			}
		}
		out = out[chunk:]
		rem -= chunk
		pgI++
		pgO = 0
	}
	return n, err
}

// WriteAt implements Device.
func (d *MemDevice) WriteAt(b []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(b)
	pgI := off >> pgBits
	pgO := int(off & pgMask)
	rem := n
	in := b
	for rem != 0 {
		pg := d.pages[pgI]
		if pg == nil {
			pg = new(memPage)
			d.pages[pgI] = pg
		}
		chunk := pgSize - pgO
		if chunk > rem {
			chunk = rem
		}
		copy(pg[pgO:pgO+chunk], in[:chunk])
		in = in[chunk:]
		rem -= chunk
		pgI++
		pgO = 0
	}
	d.size = mathutil.MaxInt64(d.size, off+int64(n))
	return n, nil
}

// SubmitIO implements Device. The reference fake runs the operation
// synchronously and invokes cb before returning; real async HAL
// implementations are free to hand off to a worker pool instead.
func (d *MemDevice) SubmitIO(req IORequest, cb func(IOResult)) {
	var n int
	var err error
	if req.Write != nil {
		n, err = d.WriteAt(req.Write, req.Off)
	} else {
		n, err = d.ReadAt(req.Read, req.Off)
	}
	if cb != nil {
		cb(IOResult{N: n, Err: err})
	}
}

// ZoneAppendSync implements Device: writes are appended at the zone's
// current append pointer (keyed by zoneOff), which advances by len(b).
func (d *MemDevice) ZoneAppendSync(zoneOff int64, b []byte) (int64, error) {
	d.zoneMu.Lock()
	at := d.appendPtr[zoneOff]
	if at == 0 {
		at = zoneOff
	}
	d.appendPtr[zoneOff] = at + int64(len(b))
	d.zoneMu.Unlock()

	_, err := d.WriteAt(b, at)
	return at, err
}

// AlignedAlloc implements Device. Go's allocator already word-aligns
// slices well beyond AlignTo for any size class reachable here, but the
// over-allocate-and-slice pattern keeps the guarantee explicit and
// portable to GOOS where that assumption might not hold.
func (d *MemDevice) AlignedAlloc(size int) ([]byte, error) {
	buf := make([]byte, size+AlignTo)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	off := (AlignTo - int(addr%AlignTo)) % AlignTo
	return buf[off : off+size : off+size], nil
}

// RandomU64 implements Device.
func (d *MemDevice) RandomU64() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Uint64()
}

// Flush implements Device: a MemDevice has no external durability to
// sync to, so Flush is a no-op.
func (d *MemDevice) Flush() error { return nil }

// Close implements Device.
func (d *MemDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.pages = nil
	return nil
}

// NewMemDeviceGeometry is a convenience constructor for tests that want
// a device sized in blocks of a given sector size rather than raw bytes.
func NewMemDeviceGeometry(device geo.DeviceType, sectorSize uint32, blocks uint64, seed int64) *MemDevice {
	return NewMemDevice(Capabilities{
		SectorSize: sectorSize,
		Capacity:   blocks,
		Device:     device,
	}, seed)
}
