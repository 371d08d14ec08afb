// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package uv provides the same deferred-function contract as
// [tensorlane.Loop], but backed by a dedicated background goroutine instead
// of goroutine-borrowing. It stands in for wrapping an external
// thread-per-loop event library (the name is a nod to libuv): Go has no
// bundled equivalent, so the background goroutine plus a buffered wakeup
// channel plays the role libuv's own event-loop thread and async handle
// would play in the original design. Grounded in the pack's
// background-goroutine event loop, generalized from its microtask/timer/IO
// machinery down to the one primitive tensorlane actually needs: submit a
// function, run it later, in order, on one thread.
package uv

import (
	"sync"
	"sync/atomic"

	"github.com/creachadair/taskgroup"
)

// A Loop runs deferred functions on its own background goroutine, in
// submission order, rather than borrowing whichever goroutine happens to
// call Defer while idle. Use it where a component needs a persistent
// thread of execution across many callers instead of the borrowing model
// of [tensorlane.Loop].
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}

	terminating atomic.Bool
	handles     atomic.Int64 // live registered handles keeping the loop alive

	tasks *taskgroup.Group
	done  chan struct{}
}

// New starts a Loop's background goroutine.
func New() *Loop {
	l := &Loop{
		wake:  make(chan struct{}, 1),
		tasks: taskgroup.New(nil),
		done:  make(chan struct{}),
	}
	l.tasks.Go(l.run)
	return l
}

// Defer enqueues fn to run on the loop's goroutine. Once Shutdown has been
// called, new submissions are silently dropped, and Defer gives the caller
// no indication of whether fn was accepted.
func (l *Loop) Defer(fn func()) {
	if l.terminating.Load() {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RegisterHandle records one more live user of the loop (e.g. a channel or
// connection whose Close must run on this loop before the loop itself may
// exit). ReleaseHandle drops it. Shutdown waits for the count to reach
// zero before the background goroutine exits, so a handle is never torn
// down mid-callback.
func (l *Loop) RegisterHandle() { l.handles.Add(1) }

// ReleaseHandle drops one previously-registered handle and wakes the loop
// so it can notice a shutdown waiting only on this.
func (l *Loop) ReleaseHandle() {
	l.handles.Add(-1)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Shutdown runs the two-phase protocol: (1) mark terminating so new
// external Defer calls are rejected while already-queued ones still drain;
// (2) once the queue is empty and no handles remain registered, the
// background goroutine exits. Shutdown blocks until that happens.
func (l *Loop) Shutdown() {
	l.terminating.Store(true)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *Loop) run() error {
	for range l.wake {
		l.drain()
		if l.terminating.Load() && l.queueEmpty() && l.handles.Load() == 0 {
			close(l.done)
			return nil
		}
	}
	return nil
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.mu.Unlock()
			return
		}
		next := l.pending[0]
		l.pending = l.pending[1:]
		l.mu.Unlock()
		next()
	}
}

func (l *Loop) queueEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) == 0
}
