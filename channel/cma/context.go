// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package cma implements the cross-memory-attach channel: instead of
// carrying payload bytes over the connection, the receiver reads them
// directly out of the sender's address space with the kernel's
// process_vm_readv primitive, and the connection only ever carries small
// fixed-size control messages. It is grounded in the teacher's Peer worker
// goroutine and mailbox-of-callbacks pattern, adapted from RPC dispatch to a
// single-purpose copy-request queue.
package cma

import (
	"sync/atomic"

	"github.com/creachadair/taskgroup"
	"github.com/tensorlane/tensorlane"
	"github.com/tensorlane/tensorlane/platform"
)

// copyRequest is a single queued remote-memory copy. Shutdown is signalled
// on closeCh, not by a tombstone value in the mailbox.
type copyRequest struct {
	remotePID  int
	remoteAddr uintptr
	local      []byte
	length     int
	onComplete func(tensorlane.Error)
}

// A Context is the per-process factory and lifetime owner for cma channels.
// Two Contexts can only negotiate a channel between them if their
// DomainDescriptor values are byte-equal, since process_vm_readv requires
// matching credentials and kernel boot id on both ends.
type Context struct {
	domainDescriptor string
	capacity         int

	requests chan *copyRequest
	closeCh  chan struct{}
	emitter  *tensorlane.Emitter

	closed atomic.Bool
	tasks  *taskgroup.Group

	metrics *metrics
}

// DefaultMailboxCapacity is used when NewContext is called with capacity <=
// 0. It is deliberately generous: the mailbox is bounded so that a runaway
// producer gets synchronous backpressure instead of unbounded growth, not so
// that ordinary pipelines ever observe MailboxFull.
const DefaultMailboxCapacity = 4096

// NewContext starts a cma context's worker goroutine, using id (typically
// platform.CurrentIdentity()) to derive its domain descriptor.
func NewContext(id platform.Identity, capacity int) *Context {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	c := &Context{
		domainDescriptor: id.DomainDescriptor(),
		capacity:         capacity,
		requests:         make(chan *copyRequest, capacity),
		closeCh:          make(chan struct{}),
		emitter:          tensorlane.NewEmitter(),
		tasks:            taskgroup.New(nil),
		metrics:          newMetrics(),
	}
	c.tasks.Go(c.handleCopyRequests)
	return c
}

// DomainDescriptor implements tensorlane.Context.
func (c *Context) DomainDescriptor() string { return c.domainDescriptor }

// ClosingEmitter implements tensorlane.Context.
func (c *Context) ClosingEmitter() *tensorlane.Emitter { return c.emitter }

// RequestCopy enqueues a request to copy length bytes from remoteAddr in
// remotePID's address space into local. It returns ChannelClosed once the
// context has been closed, and MailboxFull immediately if the bounded
// mailbox is at capacity; otherwise it returns Success and cb
// fires exactly once, from the worker goroutine's perspective serialised
// with every other request.
func (c *Context) RequestCopy(remotePID int, remoteAddr uintptr, local []byte, length int, cb func(tensorlane.Error)) tensorlane.Error {
	if c.closed.Load() {
		return tensorlane.ChannelClosed()
	}
	req := &copyRequest{remotePID: remotePID, remoteAddr: remoteAddr, local: local, length: length, onComplete: cb}
	select {
	case c.requests <- req:
		c.metrics.copiesQueued.Add(1)
		return tensorlane.Success
	default:
		c.metrics.mailboxFull.Add(1)
		return tensorlane.MailboxFull("cma: copy request mailbox full")
	}
}

// Close idempotently stops accepting new requests and signals the closing
// emitter. It never blocks, even if the mailbox is full: shutdown is
// signalled on a dedicated channel rather than by pushing a tombstone
// through the bounded mailbox. Requests already queued still run; Join
// waits for the worker to drain them and exit.
func (c *Context) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.emitter.Close()
		close(c.closeCh)
	}
	return nil
}

// Join closes c (if not already) and blocks until the worker goroutine has
// exited.
func (c *Context) Join() {
	c.Close()
	c.tasks.Wait()
}

func (c *Context) handleCopyRequests() error {
	for {
		select {
		case req := <-c.requests:
			c.runCopy(req)
		case <-c.closeCh:
			c.drainQueued()
			return nil
		}
	}
}

// drainQueued runs every request already sitting in the mailbox at close
// time, then returns as soon as it finds the mailbox empty.
func (c *Context) drainQueued() {
	for {
		select {
		case req := <-c.requests:
			c.runCopy(req)
		default:
			return
		}
	}
}

func (c *Context) runCopy(req *copyRequest) {
	c.metrics.copiesStarted.Add(1)
	n, err := platform.ReadRemoteMemory(req.remotePID, req.remoteAddr, req.local, req.length)
	result := classifyCopy(req.length, n, err)
	switch result.Kind {
	case tensorlane.KindSystemError:
		c.metrics.copiesFailed.Add(1)
	case tensorlane.KindShortRead:
		c.metrics.copiesShort.Add(1)
	default:
		c.metrics.copiesSucceeded.Add(1)
	}
	req.onComplete(result)
}

// classifyCopy implements the reference classification of a
// process_vm_readv result: an error means SystemError, a short count means
// ShortRead, and an exact count means Success.
func classifyCopy(length, n int, err error) tensorlane.Error {
	if err != nil {
		return tensorlane.SystemError("cma", err)
	}
	if n != length {
		return tensorlane.ShortRead(length, n)
	}
	return tensorlane.Success
}
