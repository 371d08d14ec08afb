//go:build !linux

// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import "os"

func mmapFile(f *os.File, size int) ([]byte, error) { return nil, ErrUnsupported }
func munmapMem(mem []byte) error                    { return ErrUnsupported }
