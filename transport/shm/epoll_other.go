//go:build !linux

// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package shm

import "errors"

// epollEvent mirrors the linux build's shape so reactor.go compiles
// unchanged; it is never populated on this platform.
type epollEvent struct {
	fd     int32
	events uint32
}

var errEINTR = errors.New("shm: interrupted (unsupported platform)")

// ErrUnsupported is returned by every reactor/ring primitive on platforms
// without epoll, eventfd, and futex.
var ErrUnsupported = errors.New("shm: unsupported on this platform")

func epollCreate() (int, error)                             { return -1, ErrUnsupported }
func epollAdd(epfd, fd int) error                            { return ErrUnsupported }
func epollMod(epfd, fd int) error                            { return ErrUnsupported }
func epollDel(epfd, fd int) error                            { return ErrUnsupported }
func epollWait(epfd int, out []epollEvent, ms int) (int, error) { return 0, ErrUnsupported }
func newEventfd() (int, error)                               { return -1, ErrUnsupported }
func eventfdWrite(fd int)                                     {}
func eventfdDrain(fd int)                                     {}
func closeFd(fd int)                                          {}
