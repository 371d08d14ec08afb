// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm_test

import (
	"os"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/tensorlane/tensorlane/transport/shm"
)

func newTestReactor(t *testing.T) *shm.Reactor {
	t.Helper()
	r, err := shm.NewReactor(0)
	if err != nil {
		t.Skipf("shm reactor unavailable on this platform: %v", err)
	}
	return r
}

func TestReactorDeferRunsOnLoop(t *testing.T) {
	defer leaktest.Check(t)()

	r := newTestReactor(t)
	done := make(chan struct{})
	r.Defer(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred function never ran")
	}

	r.Close()
	r.Join()
}

// A nonzero pollTimeoutMs must not change run's dispatch or shutdown
// behavior, only how long an idle epoll_wait can block.
func TestReactorWithPollTimeout(t *testing.T) {
	defer leaktest.Check(t)()

	r, err := shm.NewReactor(50)
	if err != nil {
		t.Skipf("shm reactor unavailable on this platform: %v", err)
	}
	done := make(chan struct{})
	r.Defer(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred function never ran")
	}

	r.Close()
	r.Join()
}

// Invariant 9: register then unregister leaves no strong reference behind,
// and shutdown only completes once the handler count drops to 1 (wakeup
// only).
func TestReactorBookkeeping(t *testing.T) {
	defer leaktest.Check(t)()

	r := newTestReactor(t)
	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer wr.Close()
	fd := int(rd.Fd())
	if err := r.Register(fd, func(uint32) {}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Unregister(fd)
	rd.Close()

	r.Close()
	done := make(chan struct{})
	go func() { r.Join(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reactor did not shut down after last non-wakeup handler unregistered")
	}
}
