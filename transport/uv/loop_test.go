// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package uv_test

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/tensorlane/tensorlane/transport/uv"
)

func TestDeferRunsInOrder(t *testing.T) {
	defer leaktest.Check(t)()

	l := uv.New()
	var got []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		l.Defer(func() {
			got = append(got, i)
			if i == 4 {
				close(done)
			}
		})
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred functions never ran")
	}
	for i, v := range got {
		if v != i {
			t.Errorf("got[%d] = %d, want %d", i, v, i)
		}
	}
	l.Shutdown()
}

// Shutdown must wait for a registered handle to be released before the
// background goroutine exits, even though its queue is already empty.
func TestShutdownWaitsForHandles(t *testing.T) {
	defer leaktest.Check(t)()

	l := uv.New()
	l.RegisterHandle()

	shutdownDone := make(chan struct{})
	go func() {
		l.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("Shutdown returned before the registered handle was released")
	case <-time.After(100 * time.Millisecond):
	}

	l.ReleaseHandle()

	select {
	case <-shutdownDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return after handle release")
	}
}

// A Defer submitted after Shutdown has begun is silently dropped, not run.
func TestDeferAfterShutdownIsDropped(t *testing.T) {
	defer leaktest.Check(t)()

	l := uv.New()
	l.Shutdown()

	ran := false
	l.Defer(func() { ran = true })
	time.Sleep(20 * time.Millisecond)
	if ran {
		t.Error("Defer after Shutdown ran, want dropped")
	}
}
