// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package cma_test

import (
	"bytes"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/tensorlane/tensorlane"
	"github.com/tensorlane/tensorlane/channel/cma"
	"github.com/tensorlane/tensorlane/platform"
	"github.com/tensorlane/tensorlane/transport"
)

// E5: a same-process copy (the sender's pid is our own, which
// process_vm_readv always has permission to read) exercises the full
// Request/Reply/Ack handshake end to end.
func TestSameProcessCopySucceeds(t *testing.T) {
	defer leaktest.Check(t)()

	ctx := cma.NewContext(platform.Identity{BootID: "test", EUID: 1, EGID: 1}, 8)

	a, b := transport.Direct()
	sender := cma.New(a, ctx)
	receiver := cma.New(b, ctx)

	payload := bytes.Repeat([]byte("cma-payload-"), 8)
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
	ctx.Join()
}

func TestCloseBeforeCompletion(t *testing.T) {
	defer leaktest.Check(t)()

	ctx := cma.NewContext(platform.Identity{BootID: "test", EUID: 1, EGID: 1}, 8)

	a, b := transport.Direct()
	sender := cma.New(a, ctx)
	receiver := cma.New(b, ctx)

	done := make(chan tensorlane.Error, 1)
	sender.Send(make([]byte, 4096), func(tensorlane.Error, []byte) {}, func(err tensorlane.Error) {
		done <- err
	})

	sender.Close()

	err := <-done
	if err.Kind != tensorlane.KindChannelClosed {
		t.Errorf("completion kind: got %v, want ChannelClosed", err.Kind)
	}

	receiver.Close()
	sender.Wait()
	receiver.Wait()
	ctx.Join()
}
