// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import "expvar"

// metrics records reactor and ring activity, exported through an
// expvar.Map the way the teacher's peerMetrics does for *chirp.Peer.
type metrics struct {
	fdsRegistered   expvar.Int
	fdsUnregistered expvar.Int
	deferredDepth   expvar.Int

	ringBytesWritten expvar.Int
	ringBytesRead    expvar.Int
	ringFutexWaits   expvar.Int

	emap *expvar.Map
}

func newMetrics() *metrics {
	m := &metrics{emap: new(expvar.Map)}
	m.emap.Set("fds_registered", &m.fdsRegistered)
	m.emap.Set("fds_unregistered", &m.fdsUnregistered)
	m.emap.Set("deferred_depth", &m.deferredDepth)
	m.emap.Set("ring_bytes_written", &m.ringBytesWritten)
	m.emap.Set("ring_bytes_read", &m.ringBytesRead)
	m.emap.Set("ring_futex_waits", &m.ringFutexWaits)
	return m
}

// Expvar returns the live counters for tests and diagnostics.
func (m *metrics) Expvar() *expvar.Map { return m.emap }
