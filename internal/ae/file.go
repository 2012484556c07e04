// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package ae

import (
	"github.com/kvreactor/kvreactor/internal/poller"
	"github.com/kvreactor/kvreactor/log"
)

func toBackendMask(mask FileMask) poller.Mask {
	var m poller.Mask
	if mask&MaskReadable != 0 {
		m |= poller.Readable
	}
	if mask&MaskWritable != 0 {
		m |= poller.Writable
	}
	return m
}

// RegisterFile sets the bits in mask for fd, atomically with respect to
// the backend: the backend is asked to observe the new bits first, and
// only on success are they OR'd into the stored mask. On failure the
// stored mask is unchanged. onReadable and onWritable may be the same
// function; MaskBarrier changes dispatch order within a cycle but is only
// meaningful together with MaskWritable.
func (l *EventLoop) RegisterFile(fd int, mask FileMask, onReadable, onWritable FileHandler, user any) error {
	if fd >= l.setSize {
		return ErrCapacity
	}
	fe := &l.events[fd]
	union := fe.mask | mask
	if err := l.backend.Add(fd, toBackendMask(union)); err != nil {
		return err
	}
	fe.mask = union
	if mask&MaskReadable != 0 {
		fe.onReadable = onReadable
	}
	if mask&MaskWritable != 0 {
		fe.onWritable = onWritable
	}
	fe.user = user
	if fd > l.maxFD {
		l.maxFD = fd
	}
	log.Debugf("ae: registered fd=%d mask=%d", fd, union)
	return nil
}

// UnregisterFile clears the bits in mask for fd. It is idempotent.
// Clearing MaskWritable implicitly also clears MaskBarrier. Handlers are
// never invoked synchronously by this call.
func (l *EventLoop) UnregisterFile(fd int, mask FileMask) {
	if fd >= l.setSize {
		return
	}
	fe := &l.events[fd]
	if fe.mask == MaskNone {
		return
	}
	if mask&MaskWritable != 0 {
		mask |= MaskBarrier
	}
	_ = l.backend.Del(fd, toBackendMask(mask&(MaskReadable|MaskWritable)))
	fe.mask &^= mask
	if fe.mask&MaskReadable == 0 {
		fe.onReadable = nil
	}
	if fe.mask&MaskWritable == 0 {
		fe.onWritable = nil
	}
	if fd == l.maxFD && fe.mask == MaskNone {
		j := l.maxFD - 1
		for ; j >= 0; j-- {
			if l.events[j].mask != MaskNone {
				break
			}
		}
		l.maxFD = j
	}
}

// FileEvents returns the mask currently registered for fd.
func (l *EventLoop) FileEvents(fd int) FileMask {
	if fd >= l.setSize {
		return MaskNone
	}
	return l.events[fd].mask
}
