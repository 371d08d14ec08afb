// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package transport_test

import (
	"testing"

	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"
	"github.com/tensorlane/tensorlane"
	"github.com/tensorlane/tensorlane/transport"
)

func TestDirectPacketRoundTrip(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := transport.Direct()

	g := taskgroup.New(nil)
	g.Go(func() error {
		a.WritePacket(&tensorlane.Packet{Tag: tensorlane.TagRequest, OperationID: 7}, func(err tensorlane.Error) {
			if !err.IsSuccess() {
				t.Errorf("a.WritePacket: %v", err)
			}
		})
		return nil
	})
	g.Go(func() error {
		b.ReadPacket(func(err tensorlane.Error, pkt *tensorlane.Packet) {
			if !err.IsSuccess() {
				t.Errorf("b.ReadPacket: %v", err)
				return
			}
			if pkt.Tag != tensorlane.TagRequest || pkt.OperationID != 7 {
				t.Errorf("b.ReadPacket: got %+v, want Request{7}", pkt)
			}
		})
		return nil
	})
	g.Wait()

	a.Close()
	b.Close()
}

func TestDirectPayloadFollowsPacketInOrder(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := transport.Direct()

	payload := []byte("tensor-bytes")
	g := taskgroup.New(nil)
	g.Go(func() error {
		a.WritePacket(&tensorlane.Packet{Tag: tensorlane.TagReply, OperationID: 3}, func(tensorlane.Error) {})
		a.WriteFull(payload, func(tensorlane.Error) {})
		return nil
	})
	g.Go(func() error {
		b.ReadPacket(func(err tensorlane.Error, pkt *tensorlane.Packet) {
			if !err.IsSuccess() || pkt.Tag != tensorlane.TagReply || pkt.OperationID != 3 {
				t.Errorf("b.ReadPacket: got (%v, %+v)", err, pkt)
			}
		})
		got := make([]byte, len(payload))
		b.ReadFull(got, func(err tensorlane.Error) {
			if !err.IsSuccess() {
				t.Errorf("b.ReadFull: %v", err)
			}
			if string(got) != string(payload) {
				t.Errorf("b.ReadFull: got %q, want %q", got, payload)
			}
		})
		return nil
	})
	g.Wait()

	a.Close()
	b.Close()
}

func TestCloseIsIdempotentAndUnblocksPeer(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := transport.Direct()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.ReadPacket(func(err tensorlane.Error, _ *tensorlane.Packet) {
			if err.IsSuccess() {
				t.Error("b.ReadPacket succeeded after a closed")
			}
		})
	}()

	if err := a.Close(); err != nil {
		t.Errorf("a.Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("a.Close (second call): %v", err)
	}
	<-done
	b.Close()
}
