// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

//go:build netbsd || openbsd || solaris || aix
// +build netbsd openbsd solaris aix

package poller

// newBackend falls back to the portable select(2) backend on unix
// platforms with neither an epoll nor a kqueue implementation here.
func newBackend(capacity int) (Backend, error) {
	return newSelectBackend(capacity)
}
