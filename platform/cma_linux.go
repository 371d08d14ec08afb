// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

//go:build linux

package platform

import "golang.org/x/sys/unix"

// ReadRemoteMemory copies length bytes from remotePtr in remotePid's address
// space into local, using process_vm_readv. It returns the number of bytes
// actually copied and the raw syscall error, if any; callers classify the
// result (system error, short read, success) themselves.
func ReadRemoteMemory(remotePid int, remotePtr uintptr, local []byte, length int) (int, error) {
	localIov := []unix.Iovec{{Base: &local[0], Len: uint64(length)}}
	remoteIov := []unix.RemoteIovec{{Base: remotePtr, Len: length}}
	return unix.ProcessVMReadv(remotePid, localIov, remoteIov, 0)
}
