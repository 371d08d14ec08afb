//go:build linux

// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import (
	"sync/atomic"
	"syscall"
	"unsafe"
)

const (
	futexWaitPrivate = 128 // FUTEX_WAIT | FUTEX_PRIVATE_FLAG
	futexWakePrivate = 129 // FUTEX_WAKE | FUTEX_PRIVATE_FLAG
)

// futexWait blocks while *addr == val, the way the pack's ring buffer
// blocks a producer/consumer on its sequence counters. A mismatch between
// the re-check and the snapshot means a wake already happened; EAGAIN and
// EINTR both just mean "re-check the condition", not a real error, so the
// caller's loop does that uniformly.
func futexWait(addr *uint32, val uint32) {
	if atomic.LoadUint32(addr) != val {
		return
	}
	syscall.Syscall6(syscall.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWaitPrivate, uintptr(val), 0, 0, 0)
}

// futexWake wakes one waiter blocked on addr.
func futexWake(addr *uint32) {
	syscall.RawSyscall6(syscall.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWakePrivate, 1, 0, 0, 0)
}
