//go:build linux

// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

// epollEvent is the portable shape the reactor dispatches on; fd and
// events are pulled out of unix.EpollEvent so reactor.go itself stays
// free of build tags.
type epollEvent struct {
	fd     int32
	events uint32
}

var errEINTR = unix.EINTR

func epollCreate() (int, error) {
	return unix.EpollCreate1(unix.EPOLL_CLOEXEC)
}

func epollAdd(epfd, fd int) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)})
}

func epollMod(epfd, fd int) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)})
}

func epollDel(epfd, fd int) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func epollWait(epfd int, out []epollEvent, timeoutMs int) (int, error) {
	raw := make([]unix.EpollEvent, len(out))
	n, err := unix.EpollWait(epfd, raw, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, errEINTR
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		out[i] = epollEvent{fd: raw[i].Fd, events: raw[i].Events}
	}
	return n, nil
}

func newEventfd() (int, error) {
	return unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

func eventfdWrite(fd int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	unix.Write(fd, buf[:])
}

func eventfdDrain(fd int) {
	var buf [8]byte
	unix.Read(fd, buf[:])
}

func closeFd(fd int) { unix.Close(fd) }
