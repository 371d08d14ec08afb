//go:build linux

// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapFile(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func munmapMem(mem []byte) error {
	return unix.Munmap(mem)
}
