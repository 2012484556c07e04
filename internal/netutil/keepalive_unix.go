// Tencent is pleased to support the open source community by making tnet available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tnet source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build linux || freebsd || dragonfly
// +build linux freebsd dragonfly

package netutil

import "golang.org/x/sys/unix"

// keepAliveProbeCount is the number of failed probes before the peer is
// declared dead.
const keepAliveProbeCount = 3

// KeepAlive turns on the keep-alive option for fd and sets its probe
// cadence: the first probe fires after intervalSecs of idleness,
// subsequent probes space out by intervalSecs/3 (minimum 1), and
// keepAliveProbeCount consecutive failures mark the peer dead.
func KeepAlive(fd, intervalSecs int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	probeSpacing := intervalSecs / 3
	if probeSpacing < 1 {
		probeSpacing = 1
	}
	// TCP_KEEPIDLE: seconds idle before the first probe.
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, intervalSecs); err != nil {
		return err
	}
	// TCP_KEEPINTVL: seconds between subsequent probes.
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, probeSpacing); err != nil {
		return err
	}
	// TCP_KEEPCNT: probes lost before the connection is considered dead.
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, keepAliveProbeCount)
}
