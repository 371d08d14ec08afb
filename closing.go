// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package tensorlane

import "sync"

// token identifies a receiver registered with an Emitter. The Emitter hands
// out tokens from a per-emitter counter starting at 1; 0 is the inert token
// returned by Subscribe on an already-closed emitter.
type token uint64

// An Emitter fans a single "the owning context is closing" signal out to
// every subordinate object that has subscribed. It is owned by exactly one
// Context and is safe for concurrent use.
type Emitter struct {
	mu     sync.Mutex
	closed bool
	next   token
	thunks map[token]func()
}

// NewEmitter constructs an empty, open Emitter.
func NewEmitter() *Emitter { return &Emitter{thunks: make(map[token]func())} }

// Subscribe registers thunk to run when the emitter closes, and returns a
// token that can later be passed to Unsubscribe. If the emitter has already
// closed, thunk runs synchronously and the returned token is inert.
func (e *Emitter) Subscribe(thunk func()) token {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		thunk()
		return 0
	}
	e.next++
	tok := e.next
	e.thunks[tok] = thunk
	e.mu.Unlock()
	return tok
}

// Unsubscribe removes a previously registered thunk. It is a no-op if tok is
// unknown (already unsubscribed, or fired at close time).
func (e *Emitter) Unsubscribe(tok token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.thunks, tok)
}

// Close runs every registered thunk exactly once and marks the emitter
// closed; subsequent Subscribe calls invoke their thunk immediately.
// Close is idempotent: calling it more than once has no additional effect.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	thunks := e.thunks
	e.thunks = nil
	e.mu.Unlock()

	for _, thunk := range thunks {
		thunk()
	}
}

// A Receiver activates a close thunk against an Emitter and unregisters
// itself once. The zero Receiver is inert; call Activate to arm it.
type Receiver struct {
	mu   sync.Mutex
	em   *Emitter
	tok  token
	done bool
}

// Activate subscribes onClose with em. It is safe to call Activate at most
// once per Receiver; a second Activate is a programming error and panics,
// even after Deactivate.
func (r *Receiver) Activate(em *Emitter, onClose func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.em != nil {
		panic("tensorlane: Receiver already activated")
	}
	r.em = em
	r.tok = em.Subscribe(onClose)
}

// Deactivate unsubscribes the receiver from its emitter. It is idempotent
// and safe to call on a Receiver that was never activated.
func (r *Receiver) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.em == nil || r.done {
		return
	}
	r.em.Unsubscribe(r.tok)
	r.done = true
}
