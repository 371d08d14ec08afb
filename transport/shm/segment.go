// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import (
	"fmt"
	"os"
)

// segment is an mmap-backed region holding two rings back to back: ringA
// (conventionally the connection initiator's send direction) and ringB
// (the acceptor's send direction). Grounded in the pack's file-backed
// segment, simplified to a single process-local temp file since every
// caller in this module maps it once and hands both ends to goroutines in
// the same process; a cross-process deployment would instead open the
// same path from the peer and mmap it a second time.
type segment struct {
	file *os.File
	mem  []byte
	capA uint64
	capB uint64
}

// newSegment creates a temp-file-backed mmap large enough for two rings of
// at least capA and capB bytes (rounded up to a power of two, minimum one
// page) and initializes both ring headers.
func newSegment(capA, capB int) (*segment, error) {
	ca := roundUpPow2(capA)
	cb := roundUpPow2(capB)
	total := int64(ringHeaderSize)*2 + int64(ca) + int64(cb)

	f, err := os.CreateTemp("", "tensorlane-shm-*")
	if err != nil {
		return nil, fmt.Errorf("shm: create segment file: %w", err)
	}
	if err := f.Truncate(total); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("shm: size segment file: %w", err)
	}
	mem, err := mmapFile(f, int(total))
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("shm: mmap segment: %w", err)
	}
	s := &segment{file: f, mem: mem, capA: ca, capB: cb}
	s.ringA().initHeader()
	s.ringB().initHeader()
	return s, nil
}

func (s *segment) ringA() *ring { return newRing(s.mem, 0, s.capA) }
func (s *segment) ringB() *ring { return newRing(s.mem, uintptr(ringHeaderSize)+uintptr(s.capA), s.capB) }

func (s *segment) Close() error {
	err := munmapMem(s.mem)
	s.file.Close()
	os.Remove(s.file.Name())
	return err
}
