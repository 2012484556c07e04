//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

//go:build darwin
// +build darwin

package netutil

import (
	"golang.org/x/sys/unix"
)

const keepAliveProbeCount = 3

// KeepAlive turns on the keep-alive option for fd and sets its probe
// cadence: the first probe fires after intervalSecs of idleness,
// subsequent probes space out by intervalSecs/3 (minimum 1), and
// keepAliveProbeCount consecutive failures mark the peer dead. Older
// Darwin kernels lack fine-grained probe spacing/count controls, so
// ENOPROTOOPT on those is tolerated and only the coarse idle timer sticks.
func KeepAlive(fd, intervalSecs int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	// TCP_KEEPALIVE: seconds idle before the first probe.
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPALIVE, intervalSecs); err != nil {
		return err
	}
	probeSpacing := intervalSecs / 3
	if probeSpacing < 1 {
		probeSpacing = 1
	}
	switch err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, probeSpacing); err {
	case nil, unix.ENOPROTOOPT: // OS X 10.7 and earlier don't support this option.
	default:
		return err
	}
	switch err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, keepAliveProbeCount); err {
	case nil, unix.ENOPROTOOPT:
		return nil
	default:
		return err
	}
}
