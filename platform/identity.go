// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package platform isolates the OS-level facts and the syscall that the CMA
// channel needs: the process Identity (a plain value, so callers can be
// tested with a constructed one instead of real kernel state) and
// ReadRemoteMemory.
package platform

import "fmt"

// Identity holds the process-global facts a CMA context's domain descriptor
// is derived from: the kernel boot id (which changes on every reboot, so
// descriptors never match across machine restarts) and the caller's
// effective user and group id (which process_vm_readv's ptrace-mode access
// check requires to agree on both ends of a channel).
type Identity struct {
	BootID string
	EUID   int
	EGID   int
}

// DomainDescriptor renders id in the "cma:<boot_id>/<euid>/<egid>" form two
// CMA contexts compare for equality to decide whether they share an address
// space domain.
func (id Identity) DomainDescriptor() string {
	return fmt.Sprintf("cma:%s/%d/%d", id.BootID, id.EUID, id.EGID)
}

// CurrentIdentity reads the real process identity. On Linux this reads the
// kernel boot id and the real effective ids; on other platforms it returns
// a fixed placeholder Identity (boot id "unsupported", ids 0), so every
// such process reports the same descriptor, and ReadRemoteMemory fails
// with ErrUnsupported there.
func CurrentIdentity() (Identity, error) {
	return currentIdentity()
}
