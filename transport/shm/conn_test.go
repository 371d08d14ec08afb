// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm_test

import (
	"bytes"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/tensorlane/tensorlane"
	"github.com/tensorlane/tensorlane/channel/basic"
	"github.com/tensorlane/tensorlane/transport/shm"
)

// A basic.Channel riding a shm.NewPair connection exercises the ring
// buffer's blocking fast path and the reactor's close bookkeeping together:
// the channel protocol itself does not know its Connection is backed by
// shared memory rather than a socket or an in-memory pipe.
func TestChannelOverRingBuffer(t *testing.T) {
	defer leaktest.Check(t)()

	r, err := shm.NewReactor(0)
	if err != nil {
		t.Skipf("shm reactor unavailable on this platform: %v", err)
	}
	defer func() { r.Close(); r.Join() }()

	a, b, err := shm.NewPair(r, 64*1024)
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}

	sender := basic.New(a, nil)
	receiver := basic.New(b, nil)

	payload := bytes.Repeat([]byte("ring-buffer-payload-"), 64)
	out := make([]byte, len(payload))

	sendDone := make(chan tensorlane.Error, 1)
	recvDone := make(chan tensorlane.Error, 1)

	var descriptor []byte
	sender.Send(payload, func(err tensorlane.Error, d []byte) {
		if !err.IsSuccess() {
			t.Fatalf("descriptorCb: %v", err)
		}
		descriptor = d
	}, func(err tensorlane.Error) { sendDone <- err })

	receiver.Recv(descriptor, out, func(err tensorlane.Error) { recvDone <- err })

	if err := <-recvDone; !err.IsSuccess() {
		t.Errorf("recv completion: %v", err)
	}
	if err := <-sendDone; !err.IsSuccess() {
		t.Errorf("send completion: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Errorf("payload: got %q, want %q", out, payload)
	}

	sender.Close()
	receiver.Close()
	sender.Wait()
	receiver.Wait()
}
