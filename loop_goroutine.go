// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package tensorlane

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the numeric id of the calling goroutine from its
// stack trace header ("goroutine 123 [running]:"). Go deliberately has no
// supported public API for this; it is used here only as an InLoop
// diagnostic, never for correctness-critical scheduling decisions (the mutex
// and draining flag in Loop are what actually make Defer safe).
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
