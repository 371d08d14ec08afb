// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package basic implements the minimal correct tensor-exchange channel: the
// out-of-band descriptor carries only an operation id, and the in-band
// payload travels over the same reliable [tensorlane.Connection] as the
// descriptor's correlating Request/Reply packets. It is the reference
// against which faster channel kinds (package channel/cma and the
// transport/shm ring-buffer channel) are measured.
//
// The request/reply correlation, sticky-error propagation, and cascading
// close in this package are grounded in the teacher's Peer.sendReq /
// dispatchRequestLocked / fail machinery, generalised from method-keyed RPC
// calls to id-keyed send/recv operations.
package basic

import (
	"fmt"
	"sync"

	"github.com/creachadair/taskgroup"
	"github.com/tensorlane/tensorlane"
	"github.com/tensorlane/tensorlane/wire"
)

type sendOp struct {
	id         uint64
	buf        []byte
	onComplete func(tensorlane.Error)
}

type recvOp struct {
	id         uint64
	buf        []byte
	onComplete func(tensorlane.Error)
}

// A Channel is a single logical bidirectional tensor-exchange endpoint over
// one [tensorlane.Connection]. The zero Channel is not usable; construct one
// with New.
type Channel struct {
	conn tensorlane.Connection
	loop tensorlane.Loop

	mu     sync.Mutex
	errVal tensorlane.Error

	// nextID, sendOps, and recvOps are only ever read or written from inside
	// a closure running on loop: see Send, Recv, dispatchPacket, and
	// drainPending.
	nextID  uint64
	sendOps map[uint64]*sendOp
	recvOps map[uint64]*recvOp

	reg   *tensorlane.Registry[*Channel]
	regID uint64

	metrics *metrics

	receiver  tensorlane.Receiver
	tasks     *taskgroup.Group
	closeOnce sync.Once
}

// New constructs a Channel over conn and starts its packet pump. If ctx is
// non-nil, the channel registers with ctx's closing emitter so that closing
// ctx also closes this channel.
func New(conn tensorlane.Connection, ctx tensorlane.Context) *Channel {
	c := &Channel{
		conn:    conn,
		sendOps: make(map[uint64]*sendOp),
		recvOps: make(map[uint64]*recvOp),
		metrics: newMetrics(),
		tasks:   taskgroup.New(nil),
	}
	c.reg = tensorlane.NewRegistry[*Channel]()
	c.regID = c.reg.Register(c)
	if ctx != nil {
		c.receiver.Activate(ctx.ClosingEmitter(), func() { c.Close() })
	}
	c.tasks.Go(c.pumpLoop)
	return c
}

// Loop implements tensorlane.ErrorSink.
func (c *Channel) Loop() *tensorlane.Loop { return &c.loop }

// Component implements tensorlane.LogSink.
func (c *Channel) Component() string { return "channel/basic" }

// LogID implements tensorlane.LogSink.
func (c *Channel) LogID() uint64 { return c.regID }

// Err implements tensorlane.ErrorSink.
func (c *Channel) Err() tensorlane.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// TrySetError implements tensorlane.ErrorSink.
func (c *Channel) TrySetError(err tensorlane.Error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.errVal.IsSuccess() {
		return false
	}
	c.errVal = err
	return true
}

// HandleError implements tensorlane.ErrorSink: it closes the underlying
// connection and flushes every outstanding operation with the sticky error.
// It runs at most once per channel, the first time TrySetError succeeds.
func (c *Channel) HandleError() {
	c.conn.Close()
	c.loop.Defer(c.drainPending)
}

func (c *Channel) drainPending() {
	err := c.Err()
	for id, op := range c.sendOps {
		delete(c.sendOps, id)
		c.metrics.sendsFailed.Add(1)
		op.onComplete(err)
	}
	for id, op := range c.recvOps {
		delete(c.recvOps, id)
		c.metrics.recvsFailed.Add(1)
		op.onComplete(err)
	}
}

// Send registers buf as the payload of a fresh send operation and reports
// its descriptor via descriptorCb. If the channel has already observed a
// sticky error, descriptorCb fires synchronously with that error and no
// operation is registered, closing the close-then-send race a caller could
// otherwise hit.
//
// completeCb fires exactly once, once the peer has pulled the payload or
// the channel has errored.
func (c *Channel) Send(buf []byte, descriptorCb func(tensorlane.Error, []byte), completeCb func(tensorlane.Error)) {
	if err := c.Err(); !err.IsSuccess() {
		descriptorCb(err, nil)
		return
	}
	c.loop.Defer(func() {
		if err := c.Err(); !err.IsSuccess() {
			descriptorCb(err, nil)
			return
		}
		c.nextID++
		id := c.nextID
		c.sendOps[id] = &sendOp{id: id, buf: buf, onComplete: completeCb}
		c.metrics.sendsStarted.Add(1)
		c.metrics.descriptorsSent.Add(1)
		descriptorCb(tensorlane.Success, wire.EncodeDescriptor(id))
	})
}

// Recv parses the operation id out of descriptor, registers buf as the
// destination of a fresh recv operation, and transmits a Request for that
// id on the connection. completeCb fires exactly once.
func (c *Channel) Recv(descriptor []byte, buf []byte, completeCb func(tensorlane.Error)) {
	id, err := wire.DecodeDescriptor(descriptor)
	if err != nil {
		completeCb(tensorlane.ProtocolError(err.Error()))
		return
	}
	c.loop.Defer(func() {
		if e := c.Err(); !e.IsSuccess() {
			completeCb(e)
			return
		}
		c.recvOps[id] = &recvOp{id: id, buf: buf, onComplete: completeCb}
		c.metrics.recvsStarted.Add(1)
		c.conn.WritePacket(&tensorlane.Packet{Tag: tensorlane.TagRequest, OperationID: id},
			tensorlane.Eager[*Channel](c).Wrap(func(*Channel, tensorlane.Error) {
				// A write failure here is picked up by the pump's next read
				// failing too; nothing further to do, but Eager ensures the
				// first-error policy still runs promptly even if the pump is
				// blocked in its own read.
			}))
	})
}

// Close idempotently transitions the channel to the Errored state with
// ChannelClosed, closing the underlying connection and flushing any
// outstanding operations.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		if c.TrySetError(tensorlane.ChannelClosed()) {
			c.HandleError()
		}
		c.reg.Unregister(c.regID)
		c.receiver.Deactivate()
	})
	return nil
}

// Wait blocks until the channel's packet pump goroutine has exited, which
// happens once the connection errors or the channel closes.
func (c *Channel) Wait() error { return c.tasks.Wait() }

// pumpLoop arms a single outstanding packet read at a time, dispatches each
// arrival, and re-arms. It never overlaps two ReadPacket calls.
func (c *Channel) pumpLoop() error {
	for {
		type result struct {
			err tensorlane.Error
			pkt *tensorlane.Packet
		}
		resultCh := make(chan result, 1)
		c.conn.ReadPacket(func(err tensorlane.Error, pkt *tensorlane.Packet) {
			resultCh <- result{err, pkt}
		})
		res := <-resultCh

		doneCh := make(chan struct{})
		var stop bool
		c.loop.Defer(func() {
			defer close(doneCh)
			if !res.err.IsSuccess() {
				if c.TrySetError(res.err) {
					c.HandleError()
				}
				stop = true
				return
			}
			if e := c.Err(); !e.IsSuccess() {
				stop = true // channel already errored; drop the packet (lazy semantics)
				return
			}
			c.dispatchPacket(res.pkt)
		})
		<-doneCh
		if stop {
			return nil
		}
	}
}

// dispatchPacket must run on c.loop. It handles a single inbound Request or
// Reply, completing or failing the matching operation.
func (c *Channel) dispatchPacket(pkt *tensorlane.Packet) {
	switch pkt.Tag {
	case tensorlane.TagRequest:
		id := pkt.OperationID
		op, ok := c.sendOps[id]
		if !ok {
			c.fail(tensorlane.ProtocolError(fmt.Sprintf("unknown send operation id %d in Request", id)))
			return
		}
		// The Reply packet is a pure progress signal: if writing it fails,
		// the payload write right behind it will fail too and drive the
		// real completion, so it is wrapped Lazy; losing the notification
		// is safe.
		c.conn.WritePacket(&tensorlane.Packet{Tag: tensorlane.TagReply, OperationID: id},
			tensorlane.Lazy[*Channel](c.reg, c.regID).Wrap(func(*Channel, tensorlane.Error) {}))
		c.conn.WriteFull(op.buf, tensorlane.Eager[*Channel](c).Wrap(func(subject *Channel, _ tensorlane.Error) {
			subject.sendCompleted(id)
		}))
	case tensorlane.TagReply:
		id := pkt.OperationID
		op, ok := c.recvOps[id]
		if !ok {
			c.fail(tensorlane.ProtocolError(fmt.Sprintf("unknown recv operation id %d in Reply", id)))
			return
		}
		c.conn.ReadFull(op.buf, tensorlane.Eager[*Channel](c).Wrap(func(subject *Channel, _ tensorlane.Error) {
			subject.recvCompleted(id)
		}))
	}
}

func (c *Channel) fail(err tensorlane.Error) {
	c.metrics.protocolErrors.Add(1)
	if c.TrySetError(err) {
		c.HandleError()
	}
}

// sendCompleted and recvCompleted must run on c.loop (they are always
// invoked from inside an Eager wrapper's Defer).
func (c *Channel) sendCompleted(id uint64) {
	op, ok := c.sendOps[id]
	if !ok {
		return // already flushed by drainPending during a concurrent error
	}
	delete(c.sendOps, id)
	err := c.Err()
	if err.IsSuccess() {
		c.metrics.sendsCompleted.Add(1)
	} else {
		c.metrics.sendsFailed.Add(1)
	}
	op.onComplete(err)
}

func (c *Channel) recvCompleted(id uint64) {
	op, ok := c.recvOps[id]
	if !ok {
		return
	}
	delete(c.recvOps, id)
	err := c.Err()
	if err.IsSuccess() {
		c.metrics.recvsCompleted.Add(1)
	} else {
		c.metrics.recvsFailed.Add(1)
	}
	op.onComplete(err)
}
