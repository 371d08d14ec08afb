// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package tensorlane

import "sync"

// A Loop serialises arbitrary callables onto a single logical
// thread-of-execution belonging to one owning object, without dedicating a
// goroutine to it. It is goroutine-borrowing, not goroutine-owning: whichever
// goroutine happens to call [Loop.Defer] while the loop is idle pays the
// cost of draining the queue, including any callables enqueued reentrantly
// while it does so.
//
// The zero Loop is ready to use.
type Loop struct {
	mu       sync.Mutex
	pending  []func()
	draining bool
	owner    uint64 // goroutine id of the draining goroutine, 0 if idle
}

// Defer schedules fn to run on l's serial executor. If no goroutine is
// currently draining l, the calling goroutine claims that role and runs fn
// (and anything fn or later callables enqueue) before Defer returns.
// Otherwise Defer enqueues fn and returns immediately; the goroutine already
// draining will get to it.
func (l *Loop) Defer(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	if l.draining {
		l.mu.Unlock()
		return
	}
	l.draining = true
	l.owner = goroutineID()
	l.mu.Unlock()

	l.drain()
}

// InLoop reports whether the calling goroutine is the one currently draining
// l's queue, i.e. whether it is safe to touch state that is only ever
// mutated from inside the loop without additional synchronisation.
func (l *Loop) InLoop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.draining && l.owner == goroutineID()
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.draining = false
			l.owner = 0
			l.mu.Unlock()
			return
		}
		next := l.pending[0]
		l.pending = l.pending[1:]
		l.mu.Unlock()

		next()
	}
}
