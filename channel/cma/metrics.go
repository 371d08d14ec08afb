// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package cma

import "expvar"

// metrics records per-context CMA activity, exported through an expvar.Map
// the way the teacher's peerMetrics does for *chirp.Peer.
type metrics struct {
	copiesQueued    expvar.Int
	copiesStarted   expvar.Int
	copiesSucceeded expvar.Int
	copiesShort     expvar.Int
	copiesFailed    expvar.Int
	mailboxFull     expvar.Int

	emap *expvar.Map
}

func newMetrics() *metrics {
	m := &metrics{emap: new(expvar.Map)}
	m.emap.Set("copies_queued", &m.copiesQueued)
	m.emap.Set("copies_started", &m.copiesStarted)
	m.emap.Set("copies_succeeded", &m.copiesSucceeded)
	m.emap.Set("copies_short", &m.copiesShort)
	m.emap.Set("copies_failed", &m.copiesFailed)
	m.emap.Set("mailbox_full", &m.mailboxFull)
	return m
}

// Metrics returns the context's live counters for tests and diagnostics.
func (c *Context) Metrics() *expvar.Map { return c.metrics.emap }
