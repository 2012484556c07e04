// Tencent is pleased to support the open source community by making tnet available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tnet source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package poller

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const defaultKevent = 128

func newBackend(capacity int) (Backend, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		return nil, err
	}
	size := capacity
	if size <= 0 {
		size = defaultKevent
	}
	return &kqueue{fd: fd, events: make([]unix.Kevent_t, size)}, nil
}

type kqueue struct {
	fd     int
	events []unix.Kevent_t
}

func (k *kqueue) Add(fd int, mask Mask) error {
	var changes []unix.Kevent_t
	if mask&Readable != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_READ,
			Flags: unix.EV_ADD | unix.EV_ENABLE,
		})
	}
	if mask&Writable != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_WRITE,
			Flags: unix.EV_ADD | unix.EV_ENABLE,
		})
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(k.fd, changes, nil, nil); err != nil {
		return errors.Wrap(os.NewSyscallError("kevent add", err), "poller: add")
	}
	return nil
}

func (k *kqueue) Del(fd int, mask Mask) error {
	var changes []unix.Kevent_t
	if mask&Readable != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE,
		})
	}
	if mask&Writable != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE,
		})
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(k.fd, changes, nil, nil); err != nil && err != unix.ENOENT {
		return errors.Wrap(os.NewSyscallError("kevent del", err), "poller: del")
	}
	return nil
}

func (k *kqueue) Poll(timeout *time.Duration, fired []ReadyFD) (int, error) {
	var ts *unix.Timespec
	if timeout != nil {
		spec := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &spec
	}
	n, err := unix.Kevent(k.fd, nil, k.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("kevent wait", err)
	}
	max := n
	if max > len(fired) {
		max = len(fired)
	}
	for i := 0; i < max; i++ {
		evt := k.events[i]
		var m Mask
		switch evt.Filter {
		case unix.EVFILT_READ:
			m = Readable
		case unix.EVFILT_WRITE:
			m = Writable
		}
		if evt.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			m |= Readable | Writable
		}
		fired[i] = ReadyFD{FD: int(evt.Ident), Mask: m}
	}
	return max, nil
}

func (k *kqueue) Resize(capacity int) error {
	if capacity <= len(k.events) {
		return nil
	}
	grown := make([]unix.Kevent_t, capacity)
	copy(grown, k.events)
	k.events = grown
	return nil
}

func (k *kqueue) Close() error {
	return os.NewSyscallError("close", unix.Close(k.fd))
}

func (k *kqueue) Name() string {
	return "kqueue"
}
