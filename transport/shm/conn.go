// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import (
	"io"

	"github.com/tensorlane/tensorlane"
	"github.com/tensorlane/tensorlane/transport"
)

// ringReadWriter adapts one direction-pair of rings to io.Reader /
// io.WriteCloser so it can ride transport.IO's packet framing instead of
// duplicating it: the ring only needs to behave like a blocking byte
// stream, and transport.streamConn already knows how to frame
// tensorlane.Packet and raw payloads over one.
//
// The fast path (ReadBlocking/WriteBlocking) never touches the reactor at
// all; futex wait/wake is cheaper than a trip through epoll for the common
// case of a peer that is already waiting. closeFd exists purely for the
// reactor's bookkeeping of this connection's lifetime on the slow/close
// path: writing it wakes any epoll_wait a caller may have blocked in while
// watching this connection's liveness.
type ringReadWriter struct {
	read    *ring
	write   *ring
	seg     *segment
	reactor *Reactor
	closeFd int
	metrics *metrics
}

func (rw *ringReadWriter) Read(p []byte) (int, error) {
	n, err := rw.read.ReadBlocking(p)
	rw.metrics.ringBytesRead.Add(int64(n))
	if err == ErrRingClosed {
		return n, io.EOF
	}
	return n, err
}

func (rw *ringReadWriter) Write(p []byte) (int, error) {
	if err := rw.write.WriteBlocking(p); err != nil {
		if err == ErrRingClosed {
			return 0, io.ErrClosedPipe
		}
		return 0, err
	}
	rw.metrics.ringBytesWritten.Add(int64(len(p)))
	return len(p), nil
}

func (rw *ringReadWriter) Close() error {
	rw.write.Close()
	rw.read.Close()
	if rw.reactor != nil {
		rw.reactor.Unregister(rw.closeFd)
		eventfdWrite(rw.closeFd)
		closeFd(rw.closeFd)
	}
	return nil
}

// NewPair builds a connected pair of [tensorlane.Connection] values backed
// by one mmapped segment's two rings, registering each side's close-signal
// eventfd with reactor so its handler table reflects the connection's
// lifetime (invariant: after both sides close, the reactor's handler count
// drops back to counting only its own wakeup fd). ringCapacity bounds each
// direction's buffer, rounded up to a power of two.
func NewPair(reactor *Reactor, ringCapacity int) (a, b tensorlane.Connection, err error) {
	seg, err := newSegment(ringCapacity, ringCapacity)
	if err != nil {
		return nil, nil, err
	}
	m := reactor.metrics

	aFd, err := newEventfd()
	if err != nil {
		seg.Close()
		return nil, nil, err
	}
	bFd, err := newEventfd()
	if err != nil {
		closeFd(aFd)
		seg.Close()
		return nil, nil, err
	}
	if err := reactor.Register(aFd, func(uint32) { eventfdDrain(aFd) }); err != nil {
		closeFd(aFd)
		closeFd(bFd)
		seg.Close()
		return nil, nil, err
	}
	if err := reactor.Register(bFd, func(uint32) { eventfdDrain(bFd) }); err != nil {
		reactor.Unregister(aFd)
		closeFd(aFd)
		closeFd(bFd)
		seg.Close()
		return nil, nil, err
	}

	aSide := &ringReadWriter{read: seg.ringB(), write: seg.ringA(), seg: seg, reactor: reactor, closeFd: aFd, metrics: m}
	bSide := &ringReadWriter{read: seg.ringA(), write: seg.ringB(), seg: seg, reactor: reactor, closeFd: bFd, metrics: m}
	return transport.IO(aSide, aSide), transport.IO(bSide, bSide), nil
}
