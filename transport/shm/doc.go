// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package shm implements the shared-memory transport: a single-threaded
// epoll reactor that multiplexes file descriptors and a deferred-function
// mailbox, plus a ring-buffer Connection whose fast path moves bytes
// through an mmap-backed segment with futex wait/wake instead of read/write
// syscalls. It is grounded in the teacher's Peer goroutine-owns-its-state
// style, generalized from one RPC connection's read loop to an epoll set
// multiplexing many ring-buffer connections at once.
package shm
