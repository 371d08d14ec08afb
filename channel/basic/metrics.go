// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package basic

import "expvar"

// metrics records per-channel activity counters, exported through an
// expvar.Map the way the teacher's peerMetrics does for *chirp.Peer.
type metrics struct {
	sendsStarted    expvar.Int
	sendsCompleted  expvar.Int
	sendsFailed     expvar.Int
	recvsStarted    expvar.Int
	recvsCompleted  expvar.Int
	recvsFailed     expvar.Int
	protocolErrors  expvar.Int
	descriptorsSent expvar.Int

	emap *expvar.Map
}

func newMetrics() *metrics {
	m := &metrics{emap: new(expvar.Map)}
	m.emap.Set("sends_started", &m.sendsStarted)
	m.emap.Set("sends_completed", &m.sendsCompleted)
	m.emap.Set("sends_failed", &m.sendsFailed)
	m.emap.Set("recvs_started", &m.recvsStarted)
	m.emap.Set("recvs_completed", &m.recvsCompleted)
	m.emap.Set("recvs_failed", &m.recvsFailed)
	m.emap.Set("protocol_errors", &m.protocolErrors)
	m.emap.Set("descriptors_sent", &m.descriptorsSent)
	return m
}

// Metrics returns the channel's live counters for tests and diagnostics.
func (c *Channel) Metrics() *expvar.Map { return c.metrics.emap }
