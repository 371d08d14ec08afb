//go:build !linux

// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

// futexWait and futexWake have no portable equivalent; non-Linux builds
// never reach them because newSegment (and so NewPair) fails with
// ErrUnsupported first.
func futexWait(addr *uint32, val uint32) {}
func futexWake(addr *uint32)             {}
