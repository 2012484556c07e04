// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package poller provides the uniform readiness API the event loop drives:
// one of {epoll, kqueue, select} depending on platform, chosen in that
// order by performance. The event loop consumes one readiness
// notification per descriptor per Poll call regardless of whether the
// underlying backend is edge- or level-triggered; it is the loop's job to
// re-poll on the next cycle, not the backend's.
package poller

import "time"

// Mask is a set of readiness bits a backend is asked to watch for.
type Mask uint8

// Readiness bits. Backends only ever see Readable/Writable; Barrier is an
// ae-level dispatch-ordering concept that never reaches the kernel.
const (
	Readable Mask = 1 << iota
	Writable
)

// String implements fmt.Stringer for log messages.
func (m Mask) String() string {
	switch m {
	case Readable:
		return "Readable"
	case Writable:
		return "Writable"
	case Readable | Writable:
		return "ReadWritable"
	default:
		return "None"
	}
}

// ReadyFD is one (fd, delivered mask) pair produced by a Poll call.
type ReadyFD struct {
	FD   int
	Mask Mask
}

// Backend is the contract between the event loop and a platform-specific
// multiplexer. Every method reports success/error; none block callers
// other than Poll, and Poll blocks only the caller that invoked it.
type Backend interface {
	// Add ensures the backend is watching fd for the union of mask with
	// whatever bits are already requested for fd.
	Add(fd int, mask Mask) error
	// Del removes mask's bits from fd's watched set; if none remain, the
	// backend stops watching fd entirely.
	Del(fd int, mask Mask) error
	// Poll blocks up to timeout (nil means block indefinitely, a zero
	// duration means don't block at all), and fills fired starting at
	// index 0. It returns how many entries it populated. A non-nil
	// error leaves fired's prior contents untouched.
	Poll(timeout *time.Duration, fired []ReadyFD) (int, error)
	// Resize grows or shrinks backing storage so every descriptor below
	// capacity can be represented. Backends with no fixed capacity
	// (epoll, kqueue) may treat this as a no-op.
	Resize(capacity int) error
	// Close tears down the backend.
	Close() error
	// Name identifies the backend, e.g. "epoll", "kqueue", "select".
	Name() string
}

// New selects the first available backend for the current platform, in
// the performance order epoll > kqueue > select, and sizes it for
// capacity file descriptors.
func New(capacity int) (Backend, error) {
	return newBackend(capacity)
}
