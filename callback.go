// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package tensorlane

import "sync"

// An ErrorSink is any object that owns a sticky [Error] and a [Loop]. Both
// callback wrapper flavors (Lazy and Eager) use these three methods to apply
// the first-error-wins policy uniformly, without either flavor needing to
// know the concrete type of the object it is protecting.
type ErrorSink interface {
	// Loop returns the object's serial executor.
	Loop() *Loop
	// Err returns the object's current sticky error.
	Err() Error
	// TrySetError sets the object's sticky error to err if it is still
	// Success, and reports whether this call was the one that set it.
	TrySetError(err Error) bool
	// HandleError is invoked exactly once, the first time TrySetError
	// returns true, to close whatever underlying resource backs the object.
	HandleError()
}

// A Registry is a handle table mapping small integer ids to subjects of type
// S. Lazy callbacks resolve their subject through a Registry rather than
// holding a strong Go reference to it. The Registry itself holds the
// subject until its id is unregistered; after that, callbacks still in
// flight no longer reach it or keep it alive, and a resolve against the
// evicted id is simply a no-op.
type Registry[S ErrorSink] struct {
	mu   sync.Mutex
	next uint64
	objs map[uint64]S
}

// NewRegistry constructs an empty Registry.
func NewRegistry[S ErrorSink]() *Registry[S] {
	return &Registry[S]{objs: make(map[uint64]S)}
}

// Register assigns subject a fresh handle id and returns it.
func (r *Registry[S]) Register(subject S) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.objs[id] = subject
	return id
}

// Unregister evicts id from the registry. Safe to call more than once.
func (r *Registry[S]) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objs, id)
}

// Resolve returns the subject registered under id, if it is still present.
func (r *Registry[S]) Resolve(id uint64) (S, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.objs[id]
	return s, ok
}

func applyFirstError(s ErrorSink, err Error) {
	if err.IsSuccess() {
		return
	}
	if s.TrySetError(err) {
		logStickyError(s, err)
		s.HandleError()
	}
}

// LazyCallback bridges a transport-layer callback into a subject's loop
// while holding only a weak (registry-mediated) reference to it. Use Lazy
// wrappers for callbacks that exist purely to report progress: if the
// subject has already been torn down, or has already entered the error
// state, the wrapped inner callable is silently skipped.
type LazyCallback[S ErrorSink] struct {
	reg *Registry[S]
	id  uint64
}

// Lazy constructs a LazyCallback resolving id through reg at fire time.
func Lazy[S ErrorSink](reg *Registry[S], id uint64) LazyCallback[S] {
	return LazyCallback[S]{reg: reg, id: id}
}

// Wrap returns a func(Error) that, when invoked, resolves the subject (no-op
// if gone), re-enters its loop, applies the first-error policy, and, only
// if the subject is still in the Success state, calls inner with the
// subject and the incoming error.
func (lc LazyCallback[S]) Wrap(inner func(subject S, err Error)) func(Error) {
	return func(err Error) {
		subject, ok := lc.reg.Resolve(lc.id)
		if !ok {
			return
		}
		subject.Loop().Defer(func() {
			applyFirstError(subject, err)
			if subject.Err().IsSuccess() {
				inner(subject, err)
			}
		})
	}
}

// EagerCallback bridges a transport-layer callback into a subject's loop
// while holding a strong reference, keeping the subject alive until the
// callback fires. Use Eager wrappers whenever the inner callable is
// responsible for releasing a caller-owned resource (e.g. completing a
// user's Send/Recv buffer), since it must run even after the subject has
// entered the error state.
type EagerCallback[S ErrorSink] struct {
	subject S
}

// Eager constructs an EagerCallback holding subject directly.
func Eager[S ErrorSink](subject S) EagerCallback[S] {
	return EagerCallback[S]{subject: subject}
}

// Wrap returns a func(Error) that re-enters the subject's loop, applies the
// first-error policy, and unconditionally calls inner with the subject and
// the incoming error (which may differ from the subject's sticky error, if
// the subject was already errored by something else).
func (ec EagerCallback[S]) Wrap(inner func(subject S, err Error)) func(Error) {
	return func(err Error) {
		ec.subject.Loop().Defer(func() {
			applyFirstError(ec.subject, err)
			inner(ec.subject, err)
		})
	}
}
