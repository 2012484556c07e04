// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package ae

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// socketpair returns two connected, non-blocking Unix domain socket fds,
// closed automatically at test cleanup.
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

func newLoop(t *testing.T) *EventLoop {
	t.Helper()
	loop, err := NewEventLoop(1024)
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })
	return loop
}

func TestRegisterUnregisterFile(t *testing.T) {
	loop := newLoop(t)
	a, _ := socketpair(t)

	require.NoError(t, loop.RegisterFile(a, MaskReadable, func(*EventLoop, int, any, FileMask) error { return nil }, nil, nil))
	require.Equal(t, MaskReadable, loop.FileEvents(a))
	require.Equal(t, a, loop.MaxFD())

	loop.UnregisterFile(a, MaskReadable)
	require.Equal(t, MaskNone, loop.FileEvents(a))
	require.Equal(t, -1, loop.MaxFD())
}

func TestRegisterFileOverCapacity(t *testing.T) {
	loop := newLoop(t)
	err := loop.RegisterFile(2000, MaskReadable, func(*EventLoop, int, any, FileMask) error { return nil }, nil, nil)
	require.ErrorIs(t, err, ErrCapacity)
}

func TestDispatchReadable(t *testing.T) {
	loop := newLoop(t)
	a, b := socketpair(t)

	fired := 0
	err := loop.RegisterFile(a, MaskReadable, func(l *EventLoop, fd int, user any, mask FileMask) error {
		fired++
		require.Equal(t, MaskReadable, mask)
		buf := make([]byte, 16)
		n, _ := syscall.Read(fd, buf)
		require.Equal(t, "hi", string(buf[:n]))
		return nil
	}, nil, nil)
	require.NoError(t, err)

	_, err = syscall.Write(b, []byte("hi"))
	require.NoError(t, err)

	n := loop.ProcessEvents(FileEvents | DontWait)
	require.Equal(t, 1, n)
	require.Equal(t, 1, fired)
}

func TestDispatchBarrierReversesOrder(t *testing.T) {
	loop := newLoop(t)
	a, b := socketpair(t)
	_, err := syscall.Write(b, []byte("x"))
	require.NoError(t, err)

	var order []string
	onReadable := func(l *EventLoop, fd int, user any, mask FileMask) error {
		order = append(order, "read")
		return nil
	}
	onWritable := func(l *EventLoop, fd int, user any, mask FileMask) error {
		order = append(order, "write")
		return nil
	}
	require.NoError(t, loop.RegisterFile(a, MaskReadable|MaskWritable|MaskBarrier, onReadable, onWritable, nil))

	n := loop.ProcessEvents(FileEvents | DontWait)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"write", "read"}, order)
}

func TestDispatchWithoutBarrierReadsBeforeWrites(t *testing.T) {
	loop := newLoop(t)
	a, b := socketpair(t)
	_, err := syscall.Write(b, []byte("x"))
	require.NoError(t, err)

	var order []string
	onReadable := func(l *EventLoop, fd int, user any, mask FileMask) error {
		order = append(order, "read")
		return nil
	}
	onWritable := func(l *EventLoop, fd int, user any, mask FileMask) error {
		order = append(order, "write")
		return nil
	}
	require.NoError(t, loop.RegisterFile(a, MaskReadable|MaskWritable, onReadable, onWritable, nil))

	n := loop.ProcessEvents(FileEvents | DontWait)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"read", "write"}, order)
}

func TestDispatchSameHandlerFiresOnce(t *testing.T) {
	loop := newLoop(t)
	a, b := socketpair(t)
	_, err := syscall.Write(b, []byte("x"))
	require.NoError(t, err)

	fired := 0
	shared := func(l *EventLoop, fd int, user any, mask FileMask) error {
		fired++
		return nil
	}
	require.NoError(t, loop.RegisterFile(a, MaskReadable|MaskWritable, shared, shared, nil))

	n := loop.ProcessEvents(FileEvents | DontWait)
	require.Equal(t, 1, n)
	require.Equal(t, 1, fired)
}

// TestDispatchSameHandlerSeesBothBits covers spec scenario 4: a descriptor
// ready for both directions, sharing one handler for both, must invoke
// that handler exactly once with both MaskReadable and MaskWritable set,
// not with just whichever direction happened to trigger the call.
func TestDispatchSameHandlerSeesBothBits(t *testing.T) {
	loop := newLoop(t)
	a, b := socketpair(t)
	_, err := syscall.Write(b, []byte("x"))
	require.NoError(t, err)

	fired := 0
	var gotMask FileMask
	shared := func(l *EventLoop, fd int, user any, mask FileMask) error {
		fired++
		gotMask = mask
		return nil
	}
	require.NoError(t, loop.RegisterFile(a, MaskReadable|MaskWritable, shared, shared, nil))

	n := loop.ProcessEvents(FileEvents | DontWait)
	require.Equal(t, 1, n)
	require.Equal(t, 1, fired)
	require.Equal(t, MaskReadable|MaskWritable, gotMask)
}

// TestDispatchDistinctHandlersEachSeeBothBits covers the same delivered
// mask when the read and write handlers differ: ae.c passes the full
// fired mask to rfileProc/wfileProc alike, not just the bit that caused
// that particular call, so a handler branching on its mask parameter to
// decide read-vs-write work doesn't silently skip half of it.
func TestDispatchDistinctHandlersEachSeeBothBits(t *testing.T) {
	loop := newLoop(t)
	a, b := socketpair(t)
	_, err := syscall.Write(b, []byte("x"))
	require.NoError(t, err)

	var readMask, writeMask FileMask
	onReadable := func(l *EventLoop, fd int, user any, mask FileMask) error {
		readMask = mask
		return nil
	}
	onWritable := func(l *EventLoop, fd int, user any, mask FileMask) error {
		writeMask = mask
		return nil
	}
	require.NoError(t, loop.RegisterFile(a, MaskReadable|MaskWritable, onReadable, onWritable, nil))

	n := loop.ProcessEvents(FileEvents | DontWait)
	require.Equal(t, 2, n)
	require.Equal(t, MaskReadable|MaskWritable, readMask)
	require.Equal(t, MaskReadable|MaskWritable, writeMask)
}

func TestTimerScenarioFromSpec(t *testing.T) {
	loop := newLoop(t)
	delays := []time.Duration{
		100 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		10 * time.Millisecond,
		80 * time.Millisecond,
	}
	fired := make(map[int64]bool)
	for _, d := range delays {
		loop.CreateTimer(d, func(l *EventLoop, id int64, user any) int64 {
			fired[id] = true
			return NoMore
		}, nil, nil)
	}

	time.Sleep(60 * time.Millisecond)
	loop.ProcessEvents(TimeEvents | DontWait)

	require.Len(t, fired, 3, "expected only the 10ms/20ms/50ms timers to have fired by 60ms")
}

func TestTimerSelfDeleteDuringHandler(t *testing.T) {
	loop := newLoop(t)
	fireCount := 0
	var id int64
	id = loop.CreateTimer(0, func(l *EventLoop, firedID int64, user any) int64 {
		fireCount++
		require.True(t, l.DeleteTimer(id))
		return NoMore
	}, nil, nil)

	time.Sleep(5 * time.Millisecond)
	loop.ProcessEvents(TimeEvents | DontWait)
	require.Equal(t, 1, fireCount)

	loop.ProcessEvents(TimeEvents | DontWait)
	require.Equal(t, 1, fireCount, "a self-deleted one-shot timer must not fire again")
}

func TestTimerCreatedDuringCycleDoesNotFireSameCycle(t *testing.T) {
	loop := newLoop(t)
	var nested int64 = -1
	loop.CreateTimer(0, func(l *EventLoop, id int64, user any) int64 {
		nested = l.CreateTimer(0, func(*EventLoop, int64, any) int64 {
			t.Fatal("timer created during dispatch must not fire in the same cycle")
			return NoMore
		}, nil, nil)
		return NoMore
	}, nil, nil)

	time.Sleep(5 * time.Millisecond)
	loop.ProcessEvents(TimeEvents | DontWait)
	require.NotEqual(t, int64(-1), nested)
}

func TestTimerRearm(t *testing.T) {
	loop := newLoop(t)
	fires := 0
	loop.CreateTimer(0, func(l *EventLoop, id int64, user any) int64 {
		fires++
		if fires < 3 {
			return 0
		}
		return NoMore
	}, nil, nil)

	for i := 0; i < 3; i++ {
		time.Sleep(2 * time.Millisecond)
		loop.ProcessEvents(TimeEvents | DontWait)
	}
	require.Equal(t, 3, fires)
}

func TestProcessEventsNoWorkReturnsZero(t *testing.T) {
	loop := newLoop(t)
	require.Equal(t, 0, loop.ProcessEvents(0))
}

func TestStopLoopHaltsRun(t *testing.T) {
	loop := newLoop(t)
	done := make(chan struct{})
	loop.CreateTimer(0, func(l *EventLoop, id int64, user any) int64 {
		l.StopLoop()
		return NoMore
	}, nil, nil)
	go func() {
		loop.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
