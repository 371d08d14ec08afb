// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package tensorlane provides the shared primitives used to build a
// point-to-point tensor-exchange channel: a sticky tagged [Error] type, a
// goroutine-borrowing [Loop] for serialising callbacks onto a single logical
// thread of execution, [LazyCallback] and [EagerCallback] wrappers that
// bridge transport-layer callbacks into an owning object's loop under a
// uniform first-error policy, an [Emitter]/[Receiver] pair for fanning a
// close signal out to subordinate objects, and the [Connection]/[Context]
// interfaces that every transport and channel kind is built against.
//
// # Errors
//
// Every asynchronous operation in this module and its subpackages completes
// with an [Error] rather than the standard error interface directly,
// although Error does implement error so it composes with fmt.Errorf,
// errors.Is, and friends. The zero Error, [Success], means no failure; once
// an object observes a non-Success Error it is sticky, and every subsequent
// operation on that object completes with the same value.
//
// # Loops and callback wrappers
//
// A [Loop] gives an object (a channel, a reactor, a worker context)
// single-threaded-mutator semantics without dedicating a goroutine to it:
// whichever goroutine first calls Defer while the loop is idle drains the
// queue, including anything enqueued reentrantly along the way.
// [LazyCallback] and [EagerCallback] both re-enter a subject's loop and
// apply first-error policy before delegating to an inner callable; they
// differ in whether they hold a strong or registry-mediated weak reference
// to the subject, and in whether the inner callable still runs once the
// subject has errored. See the channel/basic package for the canonical
// consumer of both.
//
// # Subpackages
//
// channel/basic implements the minimal correct channel: out-of-band
// descriptors correlated by operation id, payload carried over the same
// reliable [Connection]. channel/cma implements a channel context backed by
// a single worker goroutine performing cross-process memory reads.
// transport provides in-memory and byte-stream Connection implementations
// used by tests and the loopback demo. transport/shm implements an
// epoll-driven reactor and a shared-memory ring-buffer Connection.
// transport/uv implements the same deferred-function contract on top of a
// dedicated background goroutine. wire implements the packet and descriptor
// framing shared by every Connection implementation. platform isolates the
// process identity (boot id, euid/egid) as a plain Identity value that tests
// can construct directly, plus the process_vm_readv call; the epoll,
// eventfd, mmap, and futex calls live in transport/shm.
package tensorlane
