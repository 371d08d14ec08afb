// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package basic_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"github.com/tensorlane/tensorlane"
	"github.com/tensorlane/tensorlane/channel/basic"
	"github.com/tensorlane/tensorlane/transport"
)

// E1: happy path, single message.
func TestHappyPathSingleMessage(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := transport.Direct()
	sender := basic.New(a, nil)
	receiver := basic.New(b, nil)

	payload := []byte("HELLO")
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

	if err := <-sendDone; !err.IsSuccess() {
		t.Errorf("send completion: %v", err)
	}
	if err := <-recvDone; !err.IsSuccess() {
		t.Errorf("recv completion: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Errorf("payload: got %q, want %q", out, payload)
	}

	sender.Close()
	receiver.Close()
	sender.Wait()
	receiver.Wait()
}

// E2: two messages, reverse pairing.
func TestTwoMessagesReversePairing(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := transport.Direct()
	sender := basic.New(a, nil)
	receiver := basic.New(b, nil)

	s1 := bytes.Repeat([]byte("A"), 16)
	s2 := bytes.Repeat([]byte("B"), 32)

	var d1, d2 []byte
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	sender.Send(s1, func(err tensorlane.Error, d []byte) { d1 = d }, func(err tensorlane.Error) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		wg.Done()
	})
	sender.Send(s2, func(err tensorlane.Error, d []byte) { d2 = d }, func(err tensorlane.Error) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		wg.Done()
	})

	out1 := make([]byte, len(s1))
	out2 := make([]byte, len(s2))
	var recvWG sync.WaitGroup
	recvWG.Add(2)
	// Pair S2 first, then S1.
	receiver.Recv(d2, out2, func(tensorlane.Error) { recvWG.Done() })
	receiver.Recv(d1, out1, func(tensorlane.Error) { recvWG.Done() })

	wg.Wait()
	recvWG.Wait()

	if !bytes.Equal(out1, s1) {
		t.Errorf("S1 payload mismatch")
	}
	if !bytes.Equal(out2, s2) {
		t.Errorf("S2 payload mismatch")
	}
	if diff := cmp.Diff([]int{2, 1}, order); diff != "" {
		t.Errorf("completion order (-want +got):\n%s", diff)
	}

	sender.Close()
	receiver.Close()
	sender.Wait()
	receiver.Wait()
}

// E3: close before completion.
func TestCloseBeforeCompletion(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := transport.Direct()
	sender := basic.New(a, nil)
	receiver := basic.New(b, nil)

	done := make(chan tensorlane.Error, 1)
	sender.Send(make([]byte, 1024), func(tensorlane.Error, []byte) {}, func(err tensorlane.Error) {
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
}

// Invariant 4: sticky error.
func TestStickyErrorAfterClose(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := transport.Direct()
	sender := basic.New(a, nil)
	receiver := basic.New(b, nil)
	sender.Close()

	var got tensorlane.Error
	done := make(chan struct{})
	sender.Send(nil, func(err tensorlane.Error, _ []byte) {
		got = err
		close(done)
	}, func(tensorlane.Error) {})
	<-done

	if got.Kind != tensorlane.KindChannelClosed {
		t.Errorf("post-close Send descriptor error: got %v, want ChannelClosed", got)
	}

	receiver.Close()
	sender.Wait()
	receiver.Wait()
}

// Send gates on sticky state rather than handing out a Success descriptor
// for an operation that can never complete.
func TestSendGatesOnErroredState(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := transport.Direct()
	sender := basic.New(a, nil)
	receiver := basic.New(b, nil)

	sender.Close()
	receiver.Close()
	sender.Wait()
	receiver.Wait()

	called := false
	sender.Send([]byte("x"), func(err tensorlane.Error, d []byte) {
		called = true
		if err.IsSuccess() {
			t.Error("descriptorCb reported Success after Close")
		}
		if d != nil {
			t.Error("descriptorCb handed out a descriptor after Close")
		}
	}, func(tensorlane.Error) {})

	if !called {
		t.Error("descriptorCb was never invoked")
	}
}

// fakeConn delivers a single fixed Packet and then blocks, letting tests
// drive a protocol violation without needing real bytes on the wire.
type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	readOnce sync.Once
	pkt      *tensorlane.Packet
	block    chan struct{}
}

func newFakeConn(pkt *tensorlane.Packet) *fakeConn {
	return &fakeConn{pkt: pkt, block: make(chan struct{})}
}

func (f *fakeConn) ReadPacket(cb func(tensorlane.Error, *tensorlane.Packet)) {
	delivered := false
	f.readOnce.Do(func() {
		delivered = true
		cb(tensorlane.Success, f.pkt)
	})
	if delivered {
		return
	}
	// Every call after the first blocks until Close, then reports the
	// connection as closed, so the pump's read loop never reads twice
	// without a corresponding delivery.
	<-f.block
	cb(tensorlane.ConnectionClosed(), nil)
}
func (f *fakeConn) ReadFull(buf []byte, cb func(tensorlane.Error))             { cb(tensorlane.Success) }
func (f *fakeConn) WritePacket(p *tensorlane.Packet, cb func(tensorlane.Error)) { cb(tensorlane.Success) }
func (f *fakeConn) WriteFull(buf []byte, cb func(tensorlane.Error))            { cb(tensorlane.Success) }
func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.block)
	}
	return nil
}

// Protocol invariant: a fatal protocol violation (an unknown operation id
// in a Reply) sticks the channel's error as ProtocolError and drains any
// pending operations exactly once.
func TestUnknownReplyIDIsFatalProtocolError(t *testing.T) {
	defer leaktest.Check(t)()

	conn := newFakeConn(&tensorlane.Packet{Tag: tensorlane.TagReply, OperationID: 99})
	c := basic.New(conn, nil)

	// Send may lose the race with the pump's protocol-violation failure and
	// never admit the operation at all; either way exactly one of
	// descriptorCb/completeCb reports the resulting sticky error.
	done := make(chan tensorlane.Error, 1)
	var once sync.Once
	report := func(err tensorlane.Error) { once.Do(func() { done <- err }) }
	c.Send(nil, func(err tensorlane.Error, d []byte) {
		if !err.IsSuccess() {
			report(err)
		}
	}, report)

	err := <-done
	if err.Kind != tensorlane.KindProtocolError {
		t.Errorf("pending send completion: got %v, want ProtocolError", err.Kind)
	}
	if got := c.Err(); got.Kind != tensorlane.KindProtocolError {
		t.Errorf("sticky error: got %v, want ProtocolError", got.Kind)
	}

	c.Close()
	c.Wait()
}
