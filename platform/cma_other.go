// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

//go:build !linux

package platform

import "errors"

// ErrUnsupported is returned by ReadRemoteMemory on platforms without
// process_vm_readv.
var ErrUnsupported = errors.New("cma: process_vm_readv not supported on this platform")

func ReadRemoteMemory(remotePid int, remotePtr uintptr, local []byte, length int) (int, error) {
	return 0, ErrUnsupported
}
