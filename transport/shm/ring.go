// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import (
	"io"
	"sync/atomic"
	"unsafe"
)

// ringHeaderSize is the fixed control-block size preceding a ring's data
// area inside a segment; the header's fields are padded to 64 bytes (one
// cache line), so indices and sequence counters share that line and the
// data area starts on the next one.
const ringHeaderSize = 64

// ringHeader is laid out at the front of a ring's region of the mmapped
// segment. Every field is accessed atomically since writer and reader
// run concurrently on the same mapped pages (two goroutines here, or two
// processes if the segment were mapped by a peer).
type ringHeader struct {
	capacity uint64
	widx     uint64
	ridx     uint64
	dataSeq  uint32
	spaceSeq uint32
	closed   uint32
	_        uint32
	_        [24]byte
}

func (h *ringHeader) Capacity() uint64   { return atomic.LoadUint64(&h.capacity) }
func (h *ringHeader) WriteIndex() uint64 { return atomic.LoadUint64(&h.widx) }
func (h *ringHeader) ReadIndex() uint64  { return atomic.LoadUint64(&h.ridx) }
func (h *ringHeader) DataSeq() uint32    { return atomic.LoadUint32(&h.dataSeq) }
func (h *ringHeader) SpaceSeq() uint32   { return atomic.LoadUint32(&h.spaceSeq) }
func (h *ringHeader) Closed() bool       { return atomic.LoadUint32(&h.closed) != 0 }

func (h *ringHeader) SetClosed() {
	atomic.StoreUint32(&h.closed, 1)
}

// roundUpPow2 returns the next power of two >= n, minimum 4096 (one page).
func roundUpPow2(n int) uint64 {
	if n < 4096 {
		n = 4096
	}
	x := uint64(n)
	if x&(x-1) == 0 {
		return x
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

// ErrRingClosed is returned by a blocking ring operation once the ring is
// closed and, for reads, fully drained.
var ErrRingClosed = io.EOF

// ring is a single-producer/single-consumer byte ring living inside a
// segment's mmapped bytes, grounded in the pack's futex-driven SPSC ring:
// write/read indices track actual occupancy, dataSeq/spaceSeq are
// futex-wait addresses bumped only on the empty→non-empty and
// full→not-full transitions, so the common case touches no syscall at all.
type ring struct {
	mem      []byte // the segment's mmapped bytes (shared, not copied)
	hdrOff   uintptr
	dataOff  uintptr
	capacity uint64
	mask     uint64
}

func newRing(mem []byte, hdrOff uintptr, capacity uint64) *ring {
	return &ring{
		mem:      mem,
		hdrOff:   hdrOff,
		dataOff:  hdrOff + ringHeaderSize,
		capacity: capacity,
		mask:     capacity - 1,
	}
}

func (r *ring) header() *ringHeader {
	return (*ringHeader)(unsafe.Pointer(uintptr(unsafe.Pointer(&r.mem[0])) + r.hdrOff))
}

func (r *ring) dataPtr() unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(&r.mem[0])) + r.dataOff)
}

func (r *ring) initHeader() {
	h := r.header()
	atomic.StoreUint64(&h.capacity, r.capacity)
}

// WriteBlocking writes all of data, blocking on the ring's space
// sequence (futex_wait) while full. It never partially writes: either the
// whole of data lands atomically from the reader's perspective, or the
// ring is closed and ErrRingClosed is returned first. Data longer than the
// ring's capacity is rejected up front with io.ErrShortBuffer.
func (r *ring) WriteBlocking(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if uint64(len(data)) > r.capacity {
		return io.ErrShortBuffer
	}
	h := r.header()
	for {
		seq := h.SpaceSeq()
		if h.Closed() {
			return ErrRingClosed
		}
		widx, ridx := h.WriteIndex(), h.ReadIndex()
		used := widx - ridx
		if uint64(len(data)) <= r.capacity-used {
			r.copyIn(widx, data)
			atomic.StoreUint64(&h.widx, widx+uint64(len(data)))
			if used == 0 {
				atomic.AddUint32(&h.dataSeq, 1)
				futexWake(&h.dataSeq)
			}
			return nil
		}
		futexWait(&h.spaceSeq, seq)
	}
}

// ReadBlocking reads up to len(buf) bytes, blocking on the ring's data
// sequence (futex_wait) while empty. Returns io.EOF once the ring is
// closed and drained.
func (r *ring) ReadBlocking(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	h := r.header()
	for {
		seq := h.DataSeq()
		widx, ridx := h.WriteIndex(), h.ReadIndex()
		used := widx - ridx
		if used > 0 {
			n := uint64(len(buf))
			if n > used {
				n = used
			}
			r.copyOut(ridx, buf[:n])
			atomic.StoreUint64(&h.ridx, ridx+n)
			if used == r.capacity {
				atomic.AddUint32(&h.spaceSeq, 1)
				futexWake(&h.spaceSeq)
			}
			return int(n), nil
		}
		if h.Closed() {
			return 0, ErrRingClosed
		}
		futexWait(&h.dataSeq, seq)
	}
}

func (r *ring) copyIn(widx uint64, data []byte) {
	pos := widx & r.mask
	n := uint64(len(data))
	if pos+n <= r.capacity {
		dst := unsafe.Slice((*byte)(unsafe.Add(r.dataPtr(), pos)), int(n))
		copy(dst, data)
		return
	}
	first := r.capacity - pos
	dst1 := unsafe.Slice((*byte)(unsafe.Add(r.dataPtr(), pos)), int(first))
	copy(dst1, data[:first])
	dst2 := unsafe.Slice((*byte)(r.dataPtr()), int(n-first))
	copy(dst2, data[first:])
}

func (r *ring) copyOut(ridx uint64, buf []byte) {
	pos := ridx & r.mask
	n := uint64(len(buf))
	if pos+n <= r.capacity {
		src := unsafe.Slice((*byte)(unsafe.Add(r.dataPtr(), pos)), int(n))
		copy(buf, src)
		return
	}
	first := r.capacity - pos
	src1 := unsafe.Slice((*byte)(unsafe.Add(r.dataPtr(), pos)), int(first))
	copy(buf, src1)
	src2 := unsafe.Slice((*byte)(r.dataPtr()), int(n-first))
	copy(buf[first:], src2)
}

// Close marks the ring closed and wakes any blocked reader/writer so they
// can observe it.
func (r *ring) Close() {
	h := r.header()
	h.SetClosed()
	atomic.AddUint32(&h.dataSeq, 1)
	atomic.AddUint32(&h.spaceSeq, 1)
	futexWake(&h.dataSeq)
	futexWake(&h.spaceSeq)
}
