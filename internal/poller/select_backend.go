// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build linux || freebsd || dragonfly || darwin || netbsd || openbsd || solaris || aix
// +build linux freebsd dragonfly darwin netbsd openbsd solaris aix

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// NewSelectBackend constructs the portable select(2) backend directly,
// bypassing platform auto-selection. It exists so tests can exercise the
// one backend implementation every platform shares, and so a caller can
// force it explicitly (e.g. to stay under FD_SETSIZE on a constrained
// sandbox).
func NewSelectBackend(capacity int) (Backend, error) {
	return newSelectBackend(capacity)
}

func newSelectBackend(capacity int) (Backend, error) {
	return &selectBackend{watch: make(map[int]Mask, capacity)}, nil
}

type selectBackend struct {
	watch map[int]Mask
}

func (s *selectBackend) Add(fd int, mask Mask) error {
	s.watch[fd] |= mask
	return nil
}

func (s *selectBackend) Del(fd int, mask Mask) error {
	remaining := s.watch[fd] &^ mask
	if remaining == 0 {
		delete(s.watch, fd)
	} else {
		s.watch[fd] = remaining
	}
	return nil
}

func (s *selectBackend) Poll(timeout *time.Duration, fired []ReadyFD) (int, error) {
	var rfds, wfds unix.FdSet
	maxFD := -1
	for fd, mask := range s.watch {
		if mask&Readable != 0 {
			fdSet(&rfds, fd)
		}
		if mask&Writable != 0 {
			fdSet(&wfds, fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}
	var tv *unix.Timeval
	if timeout != nil {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}
	if maxFD < 0 {
		// Nothing to watch; just honor the requested sleep.
		if timeout != nil {
			time.Sleep(*timeout)
		}
		return 0, nil
	}
	n, err := unix.Select(maxFD+1, &rfds, &wfds, nil, tv)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	count := 0
	for fd, mask := range s.watch {
		if count >= len(fired) {
			break
		}
		var m Mask
		if mask&Readable != 0 && fdIsSet(&rfds, fd) {
			m |= Readable
		}
		if mask&Writable != 0 && fdIsSet(&wfds, fd) {
			m |= Writable
		}
		if m != 0 {
			fired[count] = ReadyFD{FD: fd, Mask: m}
			count++
		}
	}
	return count, nil
}

func (s *selectBackend) Resize(capacity int) error {
	return nil
}

func (s *selectBackend) Close() error {
	return nil
}

func (s *selectBackend) Name() string {
	return "select"
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
