// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package kvreactor wires the event loop, socket helpers, and slow log
// into a runnable single-threaded key-value server. The core packages
// (internal/ae, internal/poller, internal/netutil, internal/list,
// internal/slowlog) have no dependency on this package; it is the
// assembly point a command dispatcher would sit behind.
package kvreactor

import "time"

const (
	defaultSetSize        = 1024
	defaultTCPKeepAlive   = 300 * time.Second
	defaultSlowLogMaxLen  = 128
	defaultSlowLogThreshs = 10 * time.Millisecond
)

// Option configures a Server at construction time.
type Option struct {
	f func(*config)
}

type config struct {
	setSize          int
	tcpKeepAlive     time.Duration
	slowLogThreshold time.Duration
	slowLogMaxLen    int
	slowLogExport    func(id int64, argv []string)
}

func (c *config) setDefault() {
	c.setSize = defaultSetSize
	c.tcpKeepAlive = defaultTCPKeepAlive
	c.slowLogThreshold = defaultSlowLogThreshs
	c.slowLogMaxLen = defaultSlowLogMaxLen
}

// WithSetSize sets the event loop's file-descriptor capacity.
func WithSetSize(n int) Option {
	return Option{func(c *config) { c.setSize = n }}
}

// WithTCPKeepAlive sets the keep-alive probe cadence applied to accepted
// connections. A value <= 0 disables keep-alive.
func WithTCPKeepAlive(d time.Duration) Option {
	return Option{func(c *config) { c.tcpKeepAlive = d }}
}

// WithSlowLogThreshold sets the minimum command duration recorded in the
// slow log. A negative value disables the slow log.
func WithSlowLogThreshold(d time.Duration) Option {
	return Option{func(c *config) { c.slowLogThreshold = d }}
}

// WithSlowLogMaxLen bounds how many slow log entries are retained.
func WithSlowLogMaxLen(n int) Option {
	return Option{func(c *config) { c.slowLogMaxLen = n }}
}

// WithSlowLogExport installs a callback invoked, off the reactor's
// goroutine, for slow log entries evicted by overflow. An entry evicted
// while every export worker is busy is dropped without being exported.
func WithSlowLogExport(fn func(id int64, argv []string)) Option {
	return Option{func(c *config) { c.slowLogExport = fn }}
}
