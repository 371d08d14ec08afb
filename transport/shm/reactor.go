// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import (
	"expvar"
	"sync"
	"sync/atomic"

	"github.com/creachadair/taskgroup"
)

// handle is the reactor's record of one registered fd. The reactor only
// ever holds the callback the owner chose to register, never the owner
// itself: unregistering drops the only reference the reactor keeps.
type handle struct {
	fd int
	cb func(events uint32)
}

// A Reactor is a single-threaded epoll event loop multiplexing registered
// file descriptors with a deferred-function mailbox, the way the teacher's
// Peer multiplexes one connection's read loop with callback dispatch, only
// generalized here to many fds at once.
//
// Registering an already-registered fd falls back to epoll_ctl(MOD) instead
// of ADD, since the kernel rejects a duplicate ADD. Unregistering is
// idempotent and epoll-deletes the fd. The wakeup eventfd is always
// registered, from construction until the epoll goroutine reclaims it last
// on its way out.
type Reactor struct {
	epfd     int
	wakeupFd int

	// pollTimeoutMs bounds each epoll_wait call; 0 (the default) blocks
	// indefinitely, since 0 would otherwise mean "return immediately" to
	// epoll_wait itself.
	pollTimeoutMs int

	mu       sync.Mutex
	handlers []*handle // dense slice indexed by fd; nil where unoccupied
	live     int       // count of non-nil entries, including the wakeup handler

	defMu    sync.Mutex
	deferred []func()

	closed atomic.Bool
	tasks  *taskgroup.Group

	metrics *metrics
}

// NewReactor creates and starts a Reactor's epoll goroutine. pollTimeoutMs
// caps each epoll_wait call in milliseconds; 0 blocks indefinitely, matching
// [config.Config.ReactorPollTimeoutMS]'s documented default.
func NewReactor(pollTimeoutMs int) (*Reactor, error) {
	epfd, err := epollCreate()
	if err != nil {
		return nil, err
	}
	wakeupFd, err := newEventfd()
	if err != nil {
		closeFd(epfd)
		return nil, err
	}
	r := &Reactor{
		epfd:          epfd,
		wakeupFd:      wakeupFd,
		pollTimeoutMs: pollTimeoutMs,
		tasks:         taskgroup.New(nil),
		metrics:       newMetrics(),
	}
	r.registerLocked(wakeupFd, func(uint32) { eventfdDrain(r.wakeupFd) })
	r.tasks.Go(r.run)
	return r, nil
}

// Register adds fd to the epoll set with cb as its event handler. If fd is
// already registered, cb replaces the existing handler (mod-instead-of-add
// fallback) rather than erroring.
func (r *Reactor) Register(fd int, cb func(events uint32)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(fd, cb)
}

func (r *Reactor) registerLocked(fd int, cb func(events uint32)) error {
	for len(r.handlers) <= fd {
		r.handlers = append(r.handlers, nil)
	}
	existing := r.handlers[fd] != nil
	r.handlers[fd] = &handle{fd: fd, cb: cb}
	if !existing {
		r.live++
	}
	if existing {
		return epollMod(r.epfd, fd)
	}
	if err := epollAdd(r.epfd, fd); err != nil {
		r.handlers[fd] = nil
		r.live--
		return err
	}
	r.metrics.fdsRegistered.Add(1)
	return nil
}

// Unregister idempotently drops fd's handler and removes it from epoll.
func (r *Reactor) Unregister(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fd >= len(r.handlers) || r.handlers[fd] == nil {
		return
	}
	r.handlers[fd] = nil
	r.live--
	epollDel(r.epfd, fd)
	r.metrics.fdsUnregistered.Add(1)
}

// handlerCount reports the number of fds currently registered, including
// the wakeup fd.
func (r *Reactor) handlerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Defer enqueues fn to run on the reactor's own goroutine and interrupts
// epoll_wait so it runs promptly.
func (r *Reactor) Defer(fn func()) {
	r.defMu.Lock()
	r.deferred = append(r.deferred, fn)
	r.metrics.deferredDepth.Set(int64(len(r.deferred)))
	r.defMu.Unlock()
	eventfdWrite(r.wakeupFd)
}

func (r *Reactor) drainDeferred() {
	r.defMu.Lock()
	batch := r.deferred
	r.deferred = nil
	r.metrics.deferredDepth.Set(0)
	r.defMu.Unlock()
	for _, fn := range batch {
		fn()
	}
}

// Close marks the reactor closed and wakes it so it can notice. The loop
// only exits once every non-wakeup handler has been unregistered: Close
// does not forcibly unregister them, since a registered fd usually belongs
// to a Connection that must run its own shutdown sequence first.
func (r *Reactor) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		eventfdWrite(r.wakeupFd)
	}
	return nil
}

// Join blocks until the epoll goroutine has exited.
func (r *Reactor) Join() error { return r.tasks.Wait() }

func (r *Reactor) run() error {
	events := make([]epollEvent, 64)
	timeout := -1
	if r.pollTimeoutMs > 0 {
		timeout = r.pollTimeoutMs
	}
	for {
		n, err := epollWait(r.epfd, events, timeout)
		if err == errEINTR {
			continue
		}
		if err != nil {
			break
		}
		for i := 0; i < n; i++ {
			r.dispatch(events[i])
		}
		r.drainDeferred()
		if r.closed.Load() && r.handlerCount() <= 1 {
			break
		}
	}
	r.mu.Lock()
	r.handlers[r.wakeupFd] = nil
	r.live--
	r.mu.Unlock()
	closeFd(r.wakeupFd)
	closeFd(r.epfd)
	return nil
}

// dispatch looks up fd's handler under the table mutex, then invokes the
// callback outside the mutex so a handler that re-enters Register/Unregister
// cannot deadlock against dispatch. The handler may have unregistered
// concurrently; that is a best-effort skip, not an error.
func (r *Reactor) dispatch(ev epollEvent) {
	r.mu.Lock()
	var cb func(events uint32)
	if int(ev.fd) < len(r.handlers) && r.handlers[ev.fd] != nil {
		cb = r.handlers[ev.fd].cb
	}
	r.mu.Unlock()
	if cb != nil {
		cb(ev.events)
	}
}

// Metrics exposes the reactor's live counters.
func (r *Reactor) Metrics() *expvar.Map { return r.metrics.emap }
