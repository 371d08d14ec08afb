// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package transport provides reference [tensorlane.Connection]
// implementations: an in-memory loopback pair for tests, and a generic
// wrapper around any io.Reader/io.WriteCloser pair (e.g. a net.Conn or a
// pair of pipes) for anything that behaves like a byte stream. Both are
// adapted from the teacher's channel/channel.go, generalised from
// exchanging whole application packets to the split packet-header /
// raw-payload reads and writes the channel protocol engine needs.
package transport

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tensorlane/tensorlane"
	"github.com/tensorlane/tensorlane/wire"
)

// streamConn adapts a buffered byte stream into a tensorlane.Connection.
// Reads and writes run synchronously in the caller's goroutine and invoke
// the supplied callback before returning; callers that want true
// concurrency between independent connections simply run each connection's
// packet pump on its own goroutine, as channel/basic does.
type streamConn struct {
	br *bufio.Reader
	bw *bufio.Writer
	c  io.Closer

	// wmu serialises writes, so each packet or payload lands on the wire
	// as one unbroken run of bytes. It is held per call, not across a Reply
	// packet and the payload behind it; those two stay adjacent because the
	// channel issues them back-to-back from its own Loop.
	wmu sync.Mutex

	closed atomic.Bool
}

// IO wraps r (for reads) and wc (for writes and Close) as a
// tensorlane.Connection. The teacher's equivalent combinator is
// channel.IO; ownership of wc passes to the returned Connection.
func IO(r io.Reader, wc io.WriteCloser) tensorlane.Connection {
	return &streamConn{br: bufio.NewReader(r), bw: bufio.NewWriter(wc), c: wc}
}

// Direct returns a pair of connected, in-memory Connections. Writes on one
// side become readable on the other with ordinary io.Pipe blocking
// semantics; it is intended for tests and single-process demos, not cross
// process use.
func Direct() (a, b tensorlane.Connection) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return IO(ar, pipeCloser{aw, bw}), IO(br, pipeCloser{bw, aw})
}

// pipeCloser closes both ends of a Direct() pair's write side so that a
// Close on either connection unblocks any pending read on the peer.
type pipeCloser struct {
	own  *io.PipeWriter
	peer *io.PipeWriter
}

func (p pipeCloser) Write(b []byte) (int, error) { return p.own.Write(b) }
func (p pipeCloser) Close() error {
	p.peer.CloseWithError(io.ErrClosedPipe)
	return p.own.Close()
}

func (c *streamConn) ReadPacket(cb func(tensorlane.Error, *tensorlane.Packet)) {
	if c.closed.Load() {
		cb(tensorlane.ConnectionClosed(), nil)
		return
	}
	var wp wire.Packet
	_, err := wp.ReadFrom(c.br)
	if err != nil {
		cb(classifyReadErr(err), nil)
		return
	}
	pkt := &tensorlane.Packet{OperationID: wp.OperationID}
	switch wp.Tag {
	case wire.TagRequest:
		pkt.Tag = tensorlane.TagRequest
	case wire.TagReply:
		pkt.Tag = tensorlane.TagReply
	case wire.TagAck:
		pkt.Tag = tensorlane.TagAck
	}
	cb(tensorlane.Success, pkt)
}

func (c *streamConn) ReadFull(buf []byte, cb func(tensorlane.Error)) {
	if c.closed.Load() {
		cb(tensorlane.ConnectionClosed())
		return
	}
	n, err := io.ReadFull(c.br, buf)
	if err != nil {
		cb(shortReadErr(len(buf), n, err))
		return
	}
	cb(tensorlane.Success)
}

func (c *streamConn) WritePacket(p *tensorlane.Packet, cb func(tensorlane.Error)) {
	wp := wire.Packet{OperationID: p.OperationID}
	switch p.Tag {
	case tensorlane.TagRequest:
		wp.Tag = wire.TagRequest
	case tensorlane.TagReply:
		wp.Tag = wire.TagReply
	case tensorlane.TagAck:
		wp.Tag = wire.TagAck
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed.Load() {
		cb(tensorlane.ConnectionClosed())
		return
	}
	if _, err := wp.WriteTo(c.bw); err != nil {
		cb(tensorlane.ConnectionClosed())
		return
	}
	if err := c.bw.Flush(); err != nil {
		cb(tensorlane.ConnectionClosed())
		return
	}
	cb(tensorlane.Success)
}

func (c *streamConn) WriteFull(buf []byte, cb func(tensorlane.Error)) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed.Load() {
		cb(tensorlane.ConnectionClosed())
		return
	}
	n, err := c.bw.Write(buf)
	if err == nil {
		err = c.bw.Flush()
	}
	if err != nil {
		cb(tensorlane.ShortWrite(len(buf), n))
		return
	}
	cb(tensorlane.Success)
}

func (c *streamConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.c.Close()
}

func classifyReadErr(err error) tensorlane.Error {
	if errors.Is(err, io.EOF) {
		return tensorlane.EOFError()
	}
	return tensorlane.ConnectionClosed()
}

func shortReadErr(expected, got int, err error) tensorlane.Error {
	if errors.Is(err, io.EOF) && got == 0 {
		return tensorlane.EOFError()
	}
	if got < expected {
		return tensorlane.ShortRead(expected, got)
	}
	return tensorlane.ConnectionClosed()
}
