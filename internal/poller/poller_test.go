// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestBackendAddPollDel(t *testing.T) {
	backend, err := New(64)
	require.NoError(t, err)
	defer backend.Close()
	require.NotEmpty(t, backend.Name())

	a, b := socketpair(t)
	require.NoError(t, backend.Add(a, Readable))

	zero := time.Duration(0)
	fired := make([]ReadyFD, 4)
	n, err := backend.Poll(&zero, fired)
	require.NoError(t, err)
	require.Equal(t, 0, n, "nothing written yet, no readiness expected")

	_, err = unix.Write(b, []byte("hi"))
	require.NoError(t, err)

	n, err = backend.Poll(&zero, fired)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, a, fired[0].FD)
	require.NotZero(t, fired[0].Mask&Readable)

	require.NoError(t, backend.Del(a, Readable))
	n, err = backend.Poll(&zero, fired)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestBackendWritableAlwaysReady(t *testing.T) {
	backend, err := New(64)
	require.NoError(t, err)
	defer backend.Close()

	a, _ := socketpair(t)
	require.NoError(t, backend.Add(a, Writable))

	zero := time.Duration(0)
	fired := make([]ReadyFD, 4)
	n, err := backend.Poll(&zero, fired)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NotZero(t, fired[0].Mask&Writable)
}

func TestBackendDelIsPerMaskNotPerFD(t *testing.T) {
	backend, err := New(64)
	require.NoError(t, err)
	defer backend.Close()

	a, b := socketpair(t)
	require.NoError(t, backend.Add(a, Readable|Writable))
	require.NoError(t, backend.Del(a, Writable))

	_, err = unix.Write(b, []byte("hi"))
	require.NoError(t, err)

	zero := time.Duration(0)
	fired := make([]ReadyFD, 4)
	n, err := backend.Poll(&zero, fired)
	require.NoError(t, err)
	require.Equal(t, 1, n, "fd must still be watched for Readable after Del(Writable)")
	require.NotZero(t, fired[0].Mask&Readable)
}

func TestBackendResize(t *testing.T) {
	backend, err := New(8)
	require.NoError(t, err)
	defer backend.Close()
	require.NoError(t, backend.Resize(256))
}

func TestMaskString(t *testing.T) {
	require.Equal(t, "Readable", Readable.String())
	require.Equal(t, "Writable", Writable.String())
	require.Equal(t, "ReadWritable", (Readable | Writable).String())
	require.Equal(t, "None", Mask(0).String())
}
