// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package cma

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

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

// A Channel is a single cma channel endpoint over one
// [tensorlane.Connection], backed by ctx's worker for the actual bulk
// copies. The wire protocol is a three-step handshake per operation:
// Request (receiver asks for the sender-side buffer behind a descriptor),
// Reply+CMAInfo (sender answers with its pid/address/length), Ack+result
// (receiver reports how the copy came out once ctx has run it, so the
// sender knows it is safe to reuse its buffer).
type Channel struct {
	conn tensorlane.Connection
	ctx  *Context
	loop tensorlane.Loop

	mu     sync.Mutex
	errVal tensorlane.Error

	nextID  uint64
	sendOps map[uint64]*sendOp
	recvOps map[uint64]*recvOp

	reg   *tensorlane.Registry[*Channel]
	regID uint64

	receiver  tensorlane.Receiver
	tasks     *taskgroup.Group
	closeOnce sync.Once
}

// New constructs a Channel over conn, owned by ctx.
func New(conn tensorlane.Connection, ctx *Context) *Channel {
	c := &Channel{
		conn:    conn,
		ctx:     ctx,
		sendOps: make(map[uint64]*sendOp),
		recvOps: make(map[uint64]*recvOp),
		tasks:   taskgroup.New(nil),
	}
	c.reg = tensorlane.NewRegistry[*Channel]()
	c.regID = c.reg.Register(c)
	c.receiver.Activate(ctx.ClosingEmitter(), func() { c.Close() })
	c.tasks.Go(c.pumpLoop)
	return c
}

// Loop implements tensorlane.ErrorSink.
func (c *Channel) Loop() *tensorlane.Loop { return &c.loop }

// Component implements tensorlane.LogSink.
func (c *Channel) Component() string { return "channel/cma" }

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

// HandleError implements tensorlane.ErrorSink.
func (c *Channel) HandleError() {
	c.conn.Close()
	c.loop.Defer(c.drainPending)
}

func (c *Channel) drainPending() {
	err := c.Err()
	for id, op := range c.sendOps {
		delete(c.sendOps, id)
		op.onComplete(err)
	}
	for id, op := range c.recvOps {
		delete(c.recvOps, id)
		op.onComplete(err)
	}
}

// Send registers buf as the sender-side source of a fresh copy operation.
// The peer will read directly out of buf via process_vm_readv, so buf must
// remain valid and unmodified until completeCb fires.
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
		descriptorCb(tensorlane.Success, wire.EncodeDescriptor(id))
	})
}

// Recv parses the operation id out of descriptor and requests the sender's
// buffer info over the connection; the actual copy runs on ctx's worker
// once the sender replies.
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
		c.conn.WritePacket(&tensorlane.Packet{Tag: tensorlane.TagRequest, OperationID: id},
			tensorlane.Lazy[*Channel](c.reg, c.regID).Wrap(func(*Channel, tensorlane.Error) {}))
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

// Wait blocks until the channel's packet pump goroutine has exited.
func (c *Channel) Wait() error { return c.tasks.Wait() }

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
				stop = true
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

func (c *Channel) dispatchPacket(pkt *tensorlane.Packet) {
	switch pkt.Tag {
	case tensorlane.TagRequest:
		c.handleRequest(pkt.OperationID)
	case tensorlane.TagReply:
		c.handleReply(pkt.OperationID)
	case tensorlane.TagAck:
		c.handleAck(pkt.OperationID)
	}
}

// handleRequest answers a peer's Request with our sendOp's buffer info, so
// the peer can pull the bytes directly. Both writes are Lazy: a failure here
// surfaces through the pump's next read failing too, which drives the real
// cleanup.
func (c *Channel) handleRequest(id uint64) {
	op, ok := c.sendOps[id]
	if !ok {
		c.fail(tensorlane.ProtocolError(fmt.Sprintf("unknown send operation id %d in Request", id)))
		return
	}
	info := wire.CMAInfo{RemotePID: int32(os.Getpid()), RemoteAddr: bufferAddr(op.buf), RemoteLength: uint64(len(op.buf))}
	c.conn.WritePacket(&tensorlane.Packet{Tag: tensorlane.TagReply, OperationID: id},
		tensorlane.Lazy[*Channel](c.reg, c.regID).Wrap(func(*Channel, tensorlane.Error) {}))
	c.conn.WriteFull(info.Bytes(), tensorlane.Lazy[*Channel](c.reg, c.regID).Wrap(func(*Channel, tensorlane.Error) {}))
}

// handleReply reads the sender's buffer info and hands the actual copy to
// ctx. The recv operation completes from the copy's own result, not from
// any further read on the connection.
func (c *Channel) handleReply(id uint64) {
	op, ok := c.recvOps[id]
	if !ok {
		c.fail(tensorlane.ProtocolError(fmt.Sprintf("unknown recv operation id %d in Reply", id)))
		return
	}
	infoBuf := make([]byte, wire.CMAInfoLen())
	c.conn.ReadFull(infoBuf, tensorlane.Eager[*Channel](c).Wrap(func(subject *Channel, connErr tensorlane.Error) {
		if !connErr.IsSuccess() {
			subject.completeRecv(id, connErr)
			return
		}
		info, decodeErr := wire.DecodeCMAInfo(infoBuf)
		if decodeErr != nil {
			protoErr := tensorlane.ProtocolError(decodeErr.Error())
			subject.fail(protoErr)
			subject.completeRecv(id, protoErr)
			return
		}
		copyErr := subject.ctx.RequestCopy(int(info.RemotePID), uintptr(info.RemoteAddr), op.buf, int(info.RemoteLength),
			func(result tensorlane.Error) {
				subject.loop.Defer(func() {
					subject.completeRecv(id, result)
					subject.sendAck(id, result)
				})
			})
		if !copyErr.IsSuccess() {
			// The mailbox rejected the request or the context is closed; the
			// worker never runs, so no callback will fire on its own.
			subject.completeRecv(id, copyErr)
			subject.sendAck(id, copyErr)
		}
	}))
}

// sendAck reports how the receiver's copy came out, so the sender can
// release its buffer.
func (c *Channel) sendAck(id uint64, result tensorlane.Error) {
	c.conn.WritePacket(&tensorlane.Packet{Tag: tensorlane.TagAck, OperationID: id},
		tensorlane.Lazy[*Channel](c.reg, c.regID).Wrap(func(*Channel, tensorlane.Error) {}))
	c.conn.WriteFull([]byte{byte(result.Kind)}, tensorlane.Lazy[*Channel](c.reg, c.regID).Wrap(func(*Channel, tensorlane.Error) {}))
}

// handleAck completes the matching sendOp once the receiver's result byte
// arrives. The reconstructed Error carries only Kind: ShortRead's
// Expected/Got are known to the receiver, not worth a wider wire format for
// a value the sender only passes on to its completion callback.
func (c *Channel) handleAck(id uint64) {
	_, ok := c.sendOps[id]
	if !ok {
		c.fail(tensorlane.ProtocolError(fmt.Sprintf("unknown send operation id %d in Ack", id)))
		return
	}
	resultBuf := make([]byte, 1)
	c.conn.ReadFull(resultBuf, tensorlane.Eager[*Channel](c).Wrap(func(subject *Channel, connErr tensorlane.Error) {
		if !connErr.IsSuccess() {
			subject.completeSend(id, connErr)
			return
		}
		subject.completeSend(id, tensorlane.Error{Kind: tensorlane.Kind(resultBuf[0])})
	}))
}

func (c *Channel) fail(err tensorlane.Error) {
	if c.TrySetError(err) {
		c.HandleError()
	}
}

func (c *Channel) completeSend(id uint64, err tensorlane.Error) {
	op, ok := c.sendOps[id]
	if !ok {
		return
	}
	delete(c.sendOps, id)
	op.onComplete(err)
}

func (c *Channel) completeRecv(id uint64, err tensorlane.Error) {
	op, ok := c.recvOps[id]
	if !ok {
		return
	}
	delete(c.recvOps, id)
	op.onComplete(err)
}

func bufferAddr(buf []byte) uint64 {
	if len(buf) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}
