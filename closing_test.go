// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package tensorlane_test

import (
	"strings"
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/tensorlane/tensorlane"
)

func TestReceiverActivateTwicePanics(t *testing.T) {
	em := tensorlane.NewEmitter()
	var r tensorlane.Receiver
	r.Activate(em, func() {})

	got := mtest.MustPanic(t, func() { r.Activate(em, func() {}) }).(string)
	if !strings.Contains(got, "already activated") {
		t.Errorf("Activate: got %q, want a message about already being activated", got)
	}
}

func TestEmitterCloseRunsEveryThunk(t *testing.T) {
	em := tensorlane.NewEmitter()
	var a, b tensorlane.Receiver
	var fired [2]bool
	a.Activate(em, func() { fired[0] = true })
	b.Activate(em, func() { fired[1] = true })

	em.Close()
	if !fired[0] || !fired[1] {
		t.Errorf("fired: got %v, want both true", fired)
	}
}

func TestReceiverDeactivateIsIdempotent(t *testing.T) {
	em := tensorlane.NewEmitter()
	var r tensorlane.Receiver
	fired := false
	r.Activate(em, func() { fired = true })
	r.Deactivate()
	r.Deactivate()

	em.Close()
	if fired {
		t.Error("onClose ran after Deactivate")
	}
}
