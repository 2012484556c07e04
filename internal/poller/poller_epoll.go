// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build linux
// +build linux

package poller

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const defaultEventCap = 128

func newBackend(capacity int) (Backend, error) {
	// Provide EPOLL_CLOEXEC for consistency with the Go runtime's own
	// netpoller.
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	size := capacity
	if size <= 0 {
		size = defaultEventCap
	}
	return &epoll{
		fd:     fd,
		events: make([]unix.EpollEvent, size),
		watch:  make(map[int]Mask),
	}, nil
}

type epoll struct {
	fd     int
	events []unix.EpollEvent
	watch  map[int]Mask // current mask registered per fd, since EPOLL_CTL_MOD replaces rather than unions
}

func toEpollEvents(mask Mask) uint32 {
	var e uint32
	if mask&Readable != 0 {
		e |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if mask&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	return e | unix.EPOLLHUP | unix.EPOLLERR
}

func (ep *epoll) Add(fd int, mask Mask) error {
	union := ep.watch[fd] | mask
	evt := unix.EpollEvent{Events: toEpollEvents(union), Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if _, tracked := ep.watch[fd]; tracked {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(ep.fd, op, fd, &evt); err != nil {
		if op == unix.EPOLL_CTL_ADD && err == unix.EEXIST {
			err = unix.EpollCtl(ep.fd, unix.EPOLL_CTL_MOD, fd, &evt)
		}
		if err != nil {
			return errors.Wrap(os.NewSyscallError("epoll_ctl add", err), "poller: add")
		}
	}
	ep.watch[fd] = union
	return nil
}

// Del clears mask's bits for fd. EPOLL_CTL_MOD replaces the watched set
// rather than unioning with it, so the remaining mask (if any) is tracked
// per fd and resubmitted in full; only once nothing remains watched does
// this fall back to EPOLL_CTL_DEL.
func (ep *epoll) Del(fd int, mask Mask) error {
	remaining := ep.watch[fd] &^ mask
	if remaining == 0 {
		delete(ep.watch, fd)
		if err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			if err == unix.ENOENT {
				return nil
			}
			return errors.Wrap(os.NewSyscallError("epoll_ctl del", err), "poller: del")
		}
		return nil
	}
	evt := unix.EpollEvent{Events: toEpollEvents(remaining), Fd: int32(fd)}
	if err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_MOD, fd, &evt); err != nil {
		return errors.Wrap(os.NewSyscallError("epoll_ctl mod", err), "poller: del")
	}
	ep.watch[fd] = remaining
	return nil
}

// Poll blocks for at most timeout and fills fired with ready descriptors.
// A poll error leaves fired untouched, matching the contract the original
// event loop's aeApiPoll relies on.
func (ep *epoll) Poll(timeout *time.Duration, fired []ReadyFD) (int, error) {
	msec := -1
	if timeout != nil {
		msec = int(timeout.Milliseconds())
		if msec < 0 {
			msec = 0
		}
	}
	n, err := unix.EpollWait(ep.fd, ep.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	max := n
	if max > len(fired) {
		max = len(fired)
	}
	for i := 0; i < max; i++ {
		var m Mask
		e := ep.events[i].Events
		if e&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLPRI) != 0 {
			m |= Readable
		}
		if e&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			m |= Writable
		}
		fired[i] = ReadyFD{FD: int(ep.events[i].Fd), Mask: m}
	}
	return max, nil
}

func (ep *epoll) Resize(capacity int) error {
	if capacity <= len(ep.events) {
		return nil
	}
	grown := make([]unix.EpollEvent, capacity)
	copy(grown, ep.events)
	ep.events = grown
	return nil
}

func (ep *epoll) Close() error {
	return os.NewSyscallError("close", unix.Close(ep.fd))
}

func (ep *epoll) Name() string {
	return "epoll"
}
